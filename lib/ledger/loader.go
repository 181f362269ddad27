// Copyright 2021 Silvio Böhler
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/syntax"
	"github.com/sboehler/kasse/lib/syntax/directives"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Loader parses the main ledger file and everything it includes, and
// caches the result until it is invalidated.
type Loader struct {
	main   string
	logger *slog.Logger

	mu         sync.RWMutex
	cached     *Ledger
	generation uint64

	group singleflight.Group
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger of the loader.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader for the given main file.
func NewLoader(main string, opts ...LoaderOption) *Loader {
	l := &Loader{
		main:   Canonicalize(main),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Main returns the absolute path of the main file.
func (l *Loader) Main() string {
	return l.main
}

// Load returns the ledger. Unless force is set, a cached ledger is
// returned if available. Concurrent loads share a single parse.
func (l *Loader) Load(ctx context.Context, force bool) (*Ledger, error) {
	l.mu.RLock()
	cached, gen := l.cached, l.generation
	l.mu.RUnlock()
	if cached != nil && !force {
		return cached, nil
	}
	ch := l.group.DoChan(fmt.Sprint(gen), func() (any, error) {
		res, err := l.parse(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.generation == gen {
			l.cached = res
		}
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, fault.Wrap(fault.Transient, "loading ledger", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Ledger), nil
	}
}

// Invalidate drops the cached ledger. Mutations call it after writing.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
	l.generation++
}

func (l *Loader) parse(ctx context.Context) (*Ledger, error) {
	start := time.Now()
	if _, err := os.Stat(l.main); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.SourceMissing, "loading ledger", "main file %s does not exist", l.main)
		}
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	root, err := parseTree(ctx, l.main, nil)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "loading ledger", err)
	}
	b := newBuilder(l.main)
	b.visit(root)
	res := b.build()
	l.logger.Debug("loaded ledger",
		"component", "loader",
		"files", len(res.Files),
		"entries", len(res.Entries),
		"diagnostics", len(res.Diagnostics),
		"duration", time.Since(start))
	return res, nil
}

// node is a parsed file with its parsed includes.
type node struct {
	path    string
	file    directives.File
	readErr error
	errs    error
	cycle   bool

	// includes maps the index of an include directive to the included
	// files, in glob order.
	includes map[int][]*node
}

// parseTree parses the file at path and, concurrently, all the files it
// includes. Files which appear in ancestors are not descended into.
func parseTree(ctx context.Context, path string, ancestors []string) (*node, error) {
	n := &node{path: path, includes: make(map[int][]*node)}
	for _, a := range ancestors {
		if a == path {
			n.cycle = true
			return n, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		n.readErr = err
		return n, nil
	}
	n.file, n.errs = syntax.ParseText(string(text), path)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	chain := append(append([]string(nil), ancestors...), path)
	for i, d := range n.file.Directives {
		inc, ok := d.Directive.(directives.Include)
		if !ok {
			continue
		}
		for _, p := range resolveInclude(path, inc.IncludePath.Unquote()) {
			i, p := i, p
			g.Go(func() error {
				child, err := parseTree(ctx, p, chain)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				n.includes[i] = append(n.includes[i], child)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, children := range n.includes {
		order := resolveInclude(path, n.file.Directives[i].Directive.(directives.Include).IncludePath.Unquote())
		sort.Slice(children, func(a, b int) bool {
			return indexOf(order, children[a].path) < indexOf(order, children[b].path)
		})
	}
	return n, nil
}

// resolveInclude returns the canonical paths an include directive refers
// to. Glob patterns expand to their sorted matches.
func resolveInclude(from, include string) []string {
	p := include
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(from), p)
	}
	if !strings.ContainsAny(p, "*?[") {
		return []string{Canonicalize(p)}
	}
	matches, err := filepath.Glob(p)
	if err != nil {
		return []string{Canonicalize(p)}
	}
	sort.Strings(matches)
	res := make([]string, 0, len(matches))
	for _, m := range matches {
		res = append(res, Canonicalize(m))
	}
	return res
}

// Canonicalize returns the absolute path of p with symlinks resolved.
func Canonicalize(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

func indexOf(ss []string, s string) int {
	for i, c := range ss {
		if c == s {
			return i
		}
	}
	return len(ss)
}
