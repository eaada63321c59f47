// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/holomush/plugbus/internal/plugin"
	"github.com/holomush/plugbus/internal/plugin/capability"
	"github.com/holomush/plugbus/internal/plugin/hostfunc"
)

var _ plugin.Resolver = (*Resolver)(nil)

// RunFunction is the global every Lua plugin must define.
const RunFunction = "run"

// Resolver turns a source directory into a plugin constructor. The manifest
// is validated and the entry script compiled once per Resolve; every
// constructed plugin shares the compiled chunk but holds its own
// capability grants, so nothing outlives the plugin instance.
type Resolver struct {
	dir         string
	hostVersion string
	factory     *StateFactory
	denyAll     *hostfunc.Functions
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHostVersion sets the version checked against manifest engine constraints.
func WithHostVersion(v string) ResolverOption {
	return func(r *Resolver) {
		r.hostVersion = v
	}
}

// NewResolver creates a resolver for sources under dir.
func NewResolver(dir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		dir:     dir,
		factory: NewStateFactory(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.denyAll = hostfunc.New(capability.NewEnforcer())
	return r
}

// Resolve loads the source named sourceID. Identifiers without a manifest
// under the resolver's directory are reported with plugin.ErrUnknownSource.
func (r *Resolver) Resolve(ctx context.Context, sourceID string) (plugin.Constructor, error) {
	if sourceID == "" || strings.ContainsAny(sourceID, `/\`) || sourceID == "." || sourceID == ".." {
		return nil, plugin.ErrUnknownSource(sourceID)
	}
	root := filepath.Join(r.dir, sourceID)

	data, err := os.ReadFile(filepath.Join(root, plugin.ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, plugin.ErrUnknownSource(sourceID)
		}
		return nil, oops.Code(plugin.CodeResolveFailed).In("lua").With("source", sourceID).Wrapf(err, "read manifest")
	}

	m, err := r.manifest(sourceID, data)
	if err != nil {
		return nil, err
	}

	proto, err := r.compile(ctx, sourceID, root, m)
	if err != nil {
		return nil, err
	}

	return func(context.Context) (plugin.Plugin, error) {
		enforcer := capability.NewEnforcer()
		if err := enforcer.SetGrants(m.Name, m.Capabilities); err != nil {
			return nil, oops.Code(plugin.CodeInvalidPlugin).In("lua").With("plugin", m.Name).Wrap(err)
		}
		return &luaPlugin{manifest: m, proto: proto, factory: r.factory, funcs: hostfunc.New(enforcer)}, nil
	}, nil
}

func (r *Resolver) manifest(sourceID string, data []byte) (*plugin.Manifest, error) {
	if err := plugin.ValidateSchema(data); err != nil {
		return nil, oops.Code(plugin.CodeInvalidPlugin).
			In("lua").
			With("source", sourceID).
			Hint(plugin.FormatSchemaError(err)).
			Wrapf(err, "manifest does not match schema")
	}
	m, err := plugin.ParseManifest(data)
	if err != nil {
		return nil, oops.Code(plugin.CodeInvalidPlugin).In("lua").With("source", sourceID).Wrap(err)
	}
	ok, err := m.SupportsHost(r.hostVersion)
	if err != nil {
		return nil, oops.Code(plugin.CodeInvalidPlugin).In("lua").With("source", sourceID).Wrap(err)
	}
	if !ok {
		return nil, oops.Code(plugin.CodeInvalidPlugin).
			In("lua").
			With("source", sourceID).
			With("engine", m.Engine).
			With("host_version", r.hostVersion).
			Errorf("plugin %s requires host %s", m.Name, m.Engine)
	}
	return m, nil
}

// compile parses the entry script and checks, in a throwaway state, that it
// defines run and every declared command handler.
func (r *Resolver) compile(ctx context.Context, sourceID, root string, m *plugin.Manifest) (*lua.FunctionProto, error) {
	entry := filepath.Join(root, filepath.Clean(m.Entry))
	code, err := os.ReadFile(entry)
	if err != nil {
		return nil, oops.Code(plugin.CodeResolveFailed).In("lua").With("source", sourceID).With("entry", m.Entry).Wrapf(err, "read entry script")
	}

	chunk, err := parse.Parse(strings.NewReader(string(code)), m.Entry)
	if err != nil {
		return nil, oops.Code(plugin.CodeInvalidPlugin).In("lua").With("source", sourceID).Wrapf(err, "syntax error")
	}
	proto, err := lua.Compile(chunk, m.Entry)
	if err != nil {
		return nil, oops.Code(plugin.CodeInvalidPlugin).In("lua").With("source", sourceID).Wrapf(err, "compile error")
	}

	L, err := r.factory.NewState(ctx)
	if err != nil {
		return nil, oops.Code(plugin.CodeResolveFailed).In("lua").Wrap(err)
	}
	defer L.Close()
	r.denyAll.Register(L, m.Name, nil)

	if err := execute(L, proto); err != nil {
		return nil, oops.Code(plugin.CodeInvalidPlugin).In("lua").With("source", sourceID).Wrapf(err, "entry script failed")
	}

	required := []string{RunFunction}
	for _, c := range m.Commands {
		required = append(required, c.Handler)
	}
	for _, fn := range required {
		if L.GetGlobal(fn).Type() != lua.LTFunction {
			return nil, oops.Code(plugin.CodeInvalidPlugin).
				In("lua").
				With("source", sourceID).
				With("function", fn).
				Errorf("entry script does not define function %s", fn)
		}
	}
	return proto, nil
}

// execute runs a compiled chunk in L.
func execute(L *lua.LState, proto *lua.FunctionProto) error {
	L.Push(L.NewFunctionFromProto(proto))
	return L.PCall(0, lua.MultRet, nil)
}
