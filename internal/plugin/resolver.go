// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/oops"
)

// Compile-time interface checks.
var (
	_ Resolver   = (*StaticResolver)(nil)
	_ Discoverer = (*StaticResolver)(nil)
	_ Resolver   = ChainResolver(nil)
	_ Discoverer = ChainDiscoverer(nil)
)

// errUnknownSource marks a resolver miss so ChainResolver can try the next one.
var errUnknownSource = errors.New("unknown plugin source")

// ErrUnknownSource creates the error resolvers return for identifiers they do not serve.
func ErrUnknownSource(sourceID string) error {
	return oops.Code(CodeResolveFailed).
		In("plugin").
		With("source", sourceID).
		Wrap(errUnknownSource)
}

// IsUnknownSource reports whether err is a resolver miss.
func IsUnknownSource(err error) bool {
	return errors.Is(err, errUnknownSource)
}

// StaticResolver serves plugins compiled into the host binary.
type StaticResolver struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	order []string
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{ctors: make(map[string]Constructor)}
}

// Register makes ctor loadable as sourceID. Registering the same identifier
// again replaces the constructor but keeps its discovery position.
func (s *StaticResolver) Register(sourceID string, ctor Constructor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ctors[sourceID]; !ok {
		s.order = append(s.order, sourceID)
	}
	s.ctors[sourceID] = ctor
}

// Resolve implements Resolver.
func (s *StaticResolver) Resolve(_ context.Context, sourceID string) (Constructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctor, ok := s.ctors[sourceID]
	if !ok {
		return nil, ErrUnknownSource(sourceID)
	}
	return ctor, nil
}

// Discover implements Discoverer, in registration order.
func (s *StaticResolver) Discover(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...), nil
}

// ChainResolver tries each resolver in turn, moving on only on a miss.
type ChainResolver []Resolver

// Resolve implements Resolver.
func (c ChainResolver) Resolve(ctx context.Context, sourceID string) (Constructor, error) {
	for _, r := range c {
		ctor, err := r.Resolve(ctx, sourceID)
		if err == nil {
			return ctor, nil
		}
		if !IsUnknownSource(err) {
			return nil, err
		}
	}
	return nil, ErrUnknownSource(sourceID)
}

// ChainDiscoverer concatenates discoverers, dropping duplicate identifiers.
type ChainDiscoverer []Discoverer

// Discover implements Discoverer.
func (c ChainDiscoverer) Discover(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range c {
		ids, err := d.Discover(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}
