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
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/store"
	"github.com/sboehler/kasse/lib/sync/github"
	"github.com/sourcegraph/conc/pool"
)

// Restore replaces the local ledger files with their state at a commit,
// or at the head of the branch if commit is empty. Without force, local
// changes which were never synced are a conflict and nothing is written.
func (s *Service) Restore(ctx context.Context, commit string, force bool) (res Result, err error) {
	r, err := s.remote(ctx)
	if err != nil {
		return Result{}, err
	}
	s.run.Lock()
	defer s.run.Unlock()
	res.Op = s.begin()
	defer func() { s.finish(ctx, KindRestore, res, err) }()

	ref := r.cfg.Branch
	if commit != "" {
		c, err := r.client.Commit(ctx, commit)
		if err != nil {
			return res, fmt.Errorf("resolving commit %s: %w", commit, err)
		}
		ref = c.SHA
	}
	tree, err := r.client.Tree(ctx, ref)
	if err != nil {
		return res, err
	}
	var (
		sel     = Selector{Include: r.cfg.Include, Exclude: r.cfg.Exclude}
		entries []github.Entry
	)
	for _, e := range tree {
		if sel.Selects(e.Path) {
			entries = append(entries, e)
		}
	}
	if !force {
		if res.Conflicts, err = s.unsynced(ctx, entries); err != nil {
			return res, err
		}
		if len(res.Conflicts) > 0 {
			return res, fault.New(fault.Conflict, "restoring", "local changes in %s were never synced", strings.Join(res.Conflicts, ", "))
		}
	}

	type blob struct {
		entry   github.Entry
		content []byte
	}
	if s.Progress != nil {
		s.Progress.Start(len(entries))
		defer s.Progress.Finish()
	}
	p := pool.NewWithResults[blob]().WithContext(ctx).WithMaxGoroutines(4).WithCancelOnError()
	for _, e := range entries {
		e := e
		p.Go(func(ctx context.Context) (blob, error) {
			content, err := r.client.Blob(ctx, e.SHA)
			if err != nil {
				return blob{}, fmt.Errorf("fetching %s: %w", e.Path, err)
			}
			if s.Progress != nil {
				s.Progress.Increment()
			}
			return blob{e, content}, nil
		})
	}
	blobs, err := p.Wait()
	if err != nil {
		return res, err
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].entry.Path < blobs[j].entry.Path })
	for _, b := range blobs {
		if err := s.write(b.entry.Path, b.content); err != nil {
			return res, err
		}
		if err := store.SetSyncFile(ctx, s.db, store.SyncFile{Path: b.entry.Path, RemoteSHA: b.entry.SHA, SyncedAt: s.Now()}); err != nil {
			return res, err
		}
		res.Pulled = append(res.Pulled, b.entry.Path)
	}
	s.loader.Invalidate()
	return res, nil
}

// unsynced returns the files which differ from the restored state and
// whose local content does not match their last sync.
func (s *Service) unsynced(ctx context.Context, entries []github.Entry) ([]string, error) {
	var res []string
	for _, e := range entries {
		local, err := s.read(e.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sha := github.BlobSHA(local)
		if sha == e.SHA {
			continue
		}
		last, ok, err := store.GetSyncFile(ctx, s.db, e.Path)
		if err != nil {
			return nil, err
		}
		if !ok || last.RemoteSHA != sha {
			res = append(res, e.Path)
		}
	}
	return res, nil
}

func writeFile(path string, content []byte) error {
	return atomic.WriteFile(path, bytes.NewReader(content))
}
