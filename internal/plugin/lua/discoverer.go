// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/plugbus/internal/plugin"
)

var _ plugin.Discoverer = (*Discoverer)(nil)

// Discoverer enumerates Lua plugin sources in a directory. A source is a
// subdirectory holding a plugin.yaml; its identifier is the directory name.
type Discoverer struct {
	dir     string
	include []glob.Glob
	exclude []glob.Glob
}

// NewDiscoverer creates a discoverer for dir. Sources must match at least one
// include pattern (all sources when include is empty) and no exclude pattern.
func NewDiscoverer(dir string, include, exclude []string) (*Discoverer, error) {
	inc, err := compileGlobs(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileGlobs(exclude)
	if err != nil {
		return nil, err
	}
	return &Discoverer{dir: dir, include: inc, exclude: exc}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code(plugin.CodeInvalidPlugin).
				In("lua").
				With("pattern", p).
				Wrapf(err, "invalid source pattern")
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Discover returns matching source identifiers in lexical order. A missing
// directory yields no sources.
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.Code(plugin.CodeResolveFailed).
			In("lua").
			With("dir", d.dir).
			Wrapf(err, "read plugin directory")
	}

	var sources []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || !d.matches(e.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.dir, e.Name(), plugin.ManifestFile)); err != nil {
			continue
		}
		sources = append(sources, e.Name())
	}
	return sources, nil
}

func (d *Discoverer) matches(name string) bool {
	for _, g := range d.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(d.include) == 0 {
		return true
	}
	for _, g := range d.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}
