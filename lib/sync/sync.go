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

// Package sync mirrors the ledger files to a GitHub repository.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/ledger"
	"github.com/sboehler/kasse/lib/store"
	"github.com/sboehler/kasse/lib/sync/github"
	"github.com/sboehler/kasse/lib/tasks"
	"github.com/sboehler/kasse/lib/textedit"
	"github.com/teris-io/shortid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// States of the synchroniser.
const (
	Idle     = "idle"
	Syncing  = "syncing"
	Success  = "success"
	Failed   = "failed"
	Conflict = "conflict"
)

// Conflict policies.
const (
	PreferLocal  = "prefer_local"
	PreferRemote = "prefer_remote"
	Manual       = "manual"
)

// Policies lists the conflict policies.
var Policies = []string{PreferLocal, PreferRemote, Manual}

// History kinds.
const (
	KindManual   = "manual"
	KindAuto     = "auto"
	KindRestore  = "restore"
	KindConflict = "conflict"
)

// Defaults.
const (
	DefaultBranch     = "main"
	DefaultInterval   = 5 * time.Minute
	DefaultWatchDelay = 2 * time.Second
)

// Config configures the synchroniser.
type Config struct {
	Repository     string
	Branch         string
	Token          string
	Include        []string
	Exclude        []string
	AutoSync       bool
	ConflictPolicy string
	Interval       time.Duration
	Paused         bool
}

// LogValue leaves out the token.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("repository", c.Repository),
		slog.String("branch", c.Branch),
		slog.Bool("auto_sync", c.AutoSync),
		slog.String("conflict_policy", c.ConflictPolicy),
	)
}

// Status is the state of the synchroniser.
type Status struct {
	State        string
	Configured   bool
	Paused       bool
	PendingFiles []string
	Conflicts    []string
	LastSync     *time.Time
	CurrentOp    string
	Message      string
}

// Result summarizes a sync or restore.
type Result struct {
	Op        string
	Pushed    []string
	Pulled    []string
	Conflicts []string
}

// Progress observes the files of a running operation. Increment may be
// called concurrently.
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

// Service synchronises the data directory with a repository.
type Service struct {
	db      *sql.DB
	dir     string
	keyPath string
	loader  *ledger.Loader
	locks   *textedit.Locks
	logger  *slog.Logger

	BaseURL    string
	WatchDelay time.Duration
	Now        func() time.Time
	Progress   Progress

	// run serializes syncs and restores.
	run sync.Mutex

	mu      sync.Mutex
	status  Status
	pending map[string]bool
	backoff *backoff.ExponentialBackOff
	tasks   *tasks.Scheduler
}

// New creates a service for the data directory dir. The token is
// encrypted with the key stored at keyPath.
func New(db *sql.DB, dir, keyPath string, loader *ledger.Loader, locks *textedit.Locks, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:         db,
		dir:        dir,
		keyPath:    keyPath,
		loader:     loader,
		locks:      locks,
		logger:     logger.With("component", "sync"),
		WatchDelay: DefaultWatchDelay,
		Now:        time.Now,
		status:     Status{State: Idle},
		pending:    make(map[string]bool),
	}
}

var repositoryRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

func (c *Config) check(haveToken bool) []string {
	var diags []string
	c.Repository = strings.TrimSpace(c.Repository)
	if !repositoryRegex.MatchString(c.Repository) {
		diags = append(diags, fmt.Sprintf("invalid repository %q, want owner/name", c.Repository))
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = Manual
	}
	if !slices.Contains(Policies, c.ConflictPolicy) {
		diags = append(diags, fmt.Sprintf("invalid conflict policy %q, want one of %s", c.ConflictPolicy, strings.Join(Policies, ", ")))
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Interval < 10*time.Second {
		diags = append(diags, "sync interval must be at least 10s")
	}
	for _, p := range append(slices.Clone(c.Include), c.Exclude...) {
		if _, err := path.Match(p, ""); err != nil {
			diags = append(diags, fmt.Sprintf("invalid glob %q", p))
		}
	}
	if c.Token == "" && !haveToken {
		diags = append(diags, "token is required")
	}
	return diags
}

// Configure checks access to the repository and stores the configuration.
// An empty token keeps the stored one.
func (s *Service) Configure(ctx context.Context, c Config) error {
	const op = "configuring sync"
	old, exists, err := store.GetSyncConfig(ctx, s.db)
	if err != nil {
		return err
	}
	if diags := c.check(exists); len(diags) > 0 {
		return fault.Invalid(op, diags)
	}
	key, err := loadKey(s.keyPath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	token := []byte(c.Token)
	if c.Token == "" {
		if token, err = unseal(key, old.Token); err != nil {
			return fault.Wrap(fault.Validation, op, err)
		}
	}
	if err := checkAccess(ctx, github.New(s.BaseURL, c.Repository, string(token)), c.Branch); err != nil {
		return err
	}
	sealed, err := seal(key, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = store.SaveSyncConfig(ctx, s.db, store.SyncConfig{
		Repository:      c.Repository,
		Branch:          c.Branch,
		Token:           sealed,
		Include:         c.Include,
		Exclude:         c.Exclude,
		AutoSync:        c.AutoSync,
		ConflictPolicy:  c.ConflictPolicy,
		IntervalSeconds: int(c.Interval / time.Second),
		Paused:          old.Paused,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	s.backoff = nil
	s.mu.Unlock()
	s.logger.Info("configured sync", "op", "configure", "config", c)
	return nil
}

// Config returns the stored configuration without its token.
func (s *Service) Config(ctx context.Context) (Config, bool, error) {
	c, ok, err := store.GetSyncConfig(ctx, s.db)
	if err != nil || !ok {
		return Config{}, ok, err
	}
	return Config{
		Repository:     c.Repository,
		Branch:         c.Branch,
		Include:        c.Include,
		Exclude:        c.Exclude,
		AutoSync:       c.AutoSync,
		ConflictPolicy: c.ConflictPolicy,
		Interval:       time.Duration(c.IntervalSeconds) * time.Second,
		Paused:         c.Paused,
	}, true, nil
}

func checkAccess(ctx context.Context, client *github.Client, branch string) error {
	const op = "checking repository access"
	if _, err := client.Repository(ctx); err != nil {
		return accessError(op, err)
	}
	if _, err := client.ListContents(ctx, "", branch); err != nil {
		return accessError(op, err)
	}
	return nil
}

func accessError(op string, err error) error {
	switch fault.KindOf(err) {
	case fault.NotFound, fault.RemoteFailure:
		return fault.Wrap(fault.Validation, op, err)
	}
	return err
}

// TestConnection checks access with the stored configuration.
func (s *Service) TestConnection(ctx context.Context) error {
	r, err := s.remote(ctx)
	if err != nil {
		return err
	}
	return checkAccess(ctx, r.client, r.cfg.Branch)
}

type remote struct {
	cfg    store.SyncConfig
	client *github.Client
}

func (s *Service) remote(ctx context.Context) (remote, error) {
	cfg, ok, err := store.GetSyncConfig(ctx, s.db)
	if err != nil {
		return remote{}, err
	}
	if !ok {
		return remote{}, fault.New(fault.Validation, "sync", "sync is not configured")
	}
	key, err := loadKey(s.keyPath)
	if err != nil {
		return remote{}, err
	}
	token, err := unseal(key, cfg.Token)
	if err != nil {
		return remote{}, fault.Wrap(fault.Validation, "sync", fmt.Errorf("%w, configure the token again", err))
	}
	return remote{cfg: cfg, client: github.New(s.BaseURL, cfg.Repository, string(token))}, nil
}

// Status returns the current status.
func (s *Service) Status(ctx context.Context) (Status, error) {
	cfg, ok, err := store.GetSyncConfig(ctx, s.db)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.status
	res.Configured, res.Paused = ok, cfg.Paused
	res.PendingFiles = maps.Keys(s.pending)
	sort.Strings(res.PendingFiles)
	res.Conflicts = slices.Clone(s.status.Conflicts)
	return res, nil
}

// History returns the latest n history entries.
func (s *Service) History(ctx context.Context, n int) ([]store.HistoryEntry, error) {
	return store.ListHistory(ctx, s.db, n)
}

// Pause suspends automatic syncs.
func (s *Service) Pause(ctx context.Context) error {
	if err := s.setPaused(ctx, true); err != nil {
		return err
	}
	s.mu.Lock()
	if s.tasks != nil {
		s.tasks.Cancel(retryKey)
	}
	s.mu.Unlock()
	return nil
}

// Resume resumes automatic syncs, syncing the files changed meanwhile.
func (s *Service) Resume(ctx context.Context) error {
	if err := s.setPaused(ctx, false); err != nil {
		return err
	}
	s.mu.Lock()
	pending, ts := maps.Keys(s.pending), s.tasks
	s.mu.Unlock()
	if len(pending) > 0 && ts != nil {
		ts.Schedule(retryKey, s.Now(), func(ctx context.Context) { s.AutoSync(ctx, nil) })
	}
	return nil
}

func (s *Service) setPaused(ctx context.Context, paused bool) error {
	if _, ok, err := store.GetSyncConfig(ctx, s.db); err != nil {
		return err
	} else if !ok {
		return fault.New(fault.Validation, "sync", "sync is not configured")
	}
	if err := store.SetSyncPaused(ctx, s.db, paused); err != nil {
		return err
	}
	s.logger.Info("paused sync", "op", "pause", "paused", paused)
	return nil
}

// Sync pushes local changes of the given files, or of all ledger files if
// files is empty. With force, local content wins every conflict.
func (s *Service) Sync(ctx context.Context, kind string, files []string, force bool) (Result, error) {
	var policy string
	if force {
		policy = PreferLocal
	}
	return s.sync(ctx, kind, files, policy)
}

// ResolveConflict syncs one file with the given policy.
func (s *Service) ResolveConflict(ctx context.Context, file, policy string) (Result, error) {
	if policy != PreferLocal && policy != PreferRemote {
		return Result{}, fault.Invalid("resolving conflict", []string{fmt.Sprintf("invalid policy %q, want %s or %s", policy, PreferLocal, PreferRemote)})
	}
	return s.sync(ctx, KindManual, []string{file}, policy)
}

// AutoSync syncs the given files, or all pending files if files is empty,
// if automatic syncs are enabled. Failures are retried with exponential
// backoff, capped at the sync interval.
func (s *Service) AutoSync(ctx context.Context, files []string) {
	cfg, ok, err := store.GetSyncConfig(ctx, s.db)
	if err != nil {
		s.logger.Error("reading sync config", "op", "auto", "error", err)
		return
	}
	if !ok || !cfg.AutoSync || cfg.Paused {
		return
	}
	if len(files) == 0 {
		s.mu.Lock()
		files = maps.Keys(s.pending)
		s.mu.Unlock()
		sort.Strings(files)
	}
	_, err = s.sync(ctx, KindAuto, files, "")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil || fault.Is(err, fault.Conflict) {
		s.backoff = nil
		return
	}
	if s.backoff == nil {
		s.backoff = backoff.NewExponentialBackOff()
		s.backoff.InitialInterval = 5 * time.Second
		s.backoff.MaxInterval = time.Duration(cfg.IntervalSeconds) * time.Second
		s.backoff.MaxElapsedTime = 0
		s.backoff.Reset()
	}
	delay := s.backoff.NextBackOff()
	s.logger.Warn("auto sync failed", "op", "auto", "retry_in", delay, "error", err)
	if s.tasks != nil {
		s.tasks.Schedule(retryKey, s.Now().Add(delay), func(ctx context.Context) { s.AutoSync(ctx, nil) })
	}
}

// Changed requests a sync of all files after the ledger changed.
func (s *Service) Changed(ctx context.Context) {
	files, err := s.selected(ctx)
	if err != nil {
		s.logger.Error("listing files", "op", "auto", "error", err)
		return
	}
	s.AutoSync(ctx, files)
}

func (s *Service) selected(ctx context.Context) ([]string, error) {
	cfg, ok, err := store.GetSyncConfig(ctx, s.db)
	if err != nil || !ok {
		return nil, err
	}
	return Selector{Include: cfg.Include, Exclude: cfg.Exclude}.List(s.dir)
}

const retryKey = "sync-retry"

type change struct {
	path      string
	content   []byte
	remoteSHA string
	pull      bool
}

func (s *Service) sync(ctx context.Context, kind string, files []string, policy string) (res Result, err error) {
	r, err := s.remote(ctx)
	if err != nil {
		return Result{}, err
	}
	if policy == "" {
		policy = r.cfg.ConflictPolicy
	}
	s.run.Lock()
	defer s.run.Unlock()
	res.Op = s.begin()
	defer func() { s.finish(ctx, kind, res, err) }()

	sel := Selector{Include: r.cfg.Include, Exclude: r.cfg.Exclude}
	if len(files) == 0 {
		if files, err = sel.List(s.dir); err != nil {
			return res, fmt.Errorf("listing files: %w", err)
		}
	}
	var changes []change
	for _, f := range files {
		if !sel.Selects(f) {
			continue
		}
		c, conflict, err := s.plan(ctx, r, f, policy)
		if err != nil {
			return res, err
		}
		if conflict {
			res.Conflicts = append(res.Conflicts, f)
		} else if c != nil {
			changes = append(changes, *c)
		}
	}
	if len(res.Conflicts) > 0 {
		return res, fault.New(fault.Conflict, "syncing", "local and remote changes conflict in %s", strings.Join(res.Conflicts, ", "))
	}
	if s.Progress != nil {
		s.Progress.Start(len(changes))
		defer s.Progress.Finish()
	}
	for _, c := range changes {
		if c.pull {
			if err := s.write(c.path, c.content); err != nil {
				return res, err
			}
			res.Pulled = append(res.Pulled, c.path)
		} else {
			sha, err := r.client.PutContents(ctx, c.path, r.cfg.Branch, c.remoteSHA, fmt.Sprintf("Update %s", c.path), c.content)
			if err != nil {
				return res, fmt.Errorf("pushing %s: %w", c.path, err)
			}
			c.remoteSHA = sha
			res.Pushed = append(res.Pushed, c.path)
		}
		if err := store.SetSyncFile(ctx, s.db, store.SyncFile{Path: c.path, RemoteSHA: c.remoteSHA, SyncedAt: s.Now()}); err != nil {
			return res, err
		}
		if s.Progress != nil {
			s.Progress.Increment()
		}
	}
	if len(res.Pulled) > 0 {
		s.loader.Invalidate()
	}
	s.mu.Lock()
	for _, f := range files {
		delete(s.pending, f)
	}
	s.mu.Unlock()
	return res, nil
}

// plan decides how to reconcile a file. It returns nil if the file is in
// sync.
func (s *Service) plan(ctx context.Context, r remote, file, policy string) (*change, bool, error) {
	local, err := s.read(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	remoteFile, err := r.client.GetContents(ctx, file, r.cfg.Branch)
	if err != nil && !fault.Is(err, fault.NotFound) {
		return nil, false, fmt.Errorf("fetching %s: %w", file, err)
	}
	localSHA := github.BlobSHA(local)
	switch {
	case remoteFile.SHA == "":
		return &change{path: file, content: local}, false, nil
	case remoteFile.SHA == localSHA:
		return nil, false, store.SetSyncFile(ctx, s.db, store.SyncFile{Path: file, RemoteSHA: localSHA, SyncedAt: s.Now()})
	}
	last, known, err := store.GetSyncFile(ctx, s.db, file)
	if err != nil {
		return nil, false, err
	}
	switch {
	case known && last.RemoteSHA == remoteFile.SHA:
		// only the local file changed
		return &change{path: file, content: local, remoteSHA: remoteFile.SHA}, false, nil
	case known && last.RemoteSHA == localSHA:
		// only the remote file changed
		return &change{path: file, content: remoteFile.Content, remoteSHA: remoteFile.SHA, pull: true}, false, nil
	}
	switch policy {
	case PreferLocal:
		return &change{path: file, content: local, remoteSHA: remoteFile.SHA}, false, nil
	case PreferRemote:
		return &change{path: file, content: remoteFile.Content, remoteSHA: remoteFile.SHA, pull: true}, false, nil
	}
	return nil, true, nil
}

func (s *Service) abs(file string) string {
	return filepath.Join(s.dir, filepath.FromSlash(file))
}

func (s *Service) read(file string) ([]byte, error) {
	p := s.abs(file)
	defer s.locks.Lock(p)()
	return os.ReadFile(p)
}

func (s *Service) write(file string, content []byte) error {
	p := s.abs(file)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	defer s.locks.Lock(p)()
	return writeFile(p, content)
}

func (s *Service) begin() string {
	op := shortid.MustGenerate()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = Syncing
	s.status.CurrentOp = op
	s.status.Message = ""
	return op
}

func (s *Service) finish(ctx context.Context, kind string, res Result, err error) {
	var (
		now   = s.Now()
		files = len(res.Pushed) + len(res.Pulled)
		entry = store.HistoryEntry{Timestamp: now, Kind: kind, FilesCount: files}
	)
	s.mu.Lock()
	s.status.CurrentOp = ""
	switch {
	case err == nil:
		s.status.State = Success
		s.status.LastSync = &now
		s.status.Conflicts = nil
		s.status.Message = fmt.Sprintf("pushed %d, pulled %d files", len(res.Pushed), len(res.Pulled))
		entry.Status = Success
	case fault.Is(err, fault.Conflict) && len(res.Conflicts) > 0:
		s.status.State = Conflict
		s.status.Conflicts = res.Conflicts
		s.status.Message = err.Error()
		entry.Kind, entry.Status, entry.FilesCount = KindConflict, Conflict, len(res.Conflicts)
	default:
		s.status.State = Failed
		s.status.Message = err.Error()
		entry.Status = Failed
	}
	entry.Message = s.status.Message
	s.mu.Unlock()

	if _, herr := store.AddHistory(context.WithoutCancel(ctx), s.db, entry); herr != nil {
		s.logger.Error("recording history", "op", kind, "error", herr)
	}
	if err != nil {
		s.logger.Warn("sync failed", "op", kind, "sync_op", res.Op, "error", err)
		return
	}
	s.logger.Info("synced", "op", kind, "sync_op", res.Op, "pushed", len(res.Pushed), "pulled", len(res.Pulled))
}
