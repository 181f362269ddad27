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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SyncConfig is the persisted configuration of the repository sync. The
// token is stored encrypted.
type SyncConfig struct {
	Repository      string
	Branch          string
	Token           []byte
	Include         []string
	Exclude         []string
	AutoSync        bool
	ConflictPolicy  string
	IntervalSeconds int
	Paused          bool
}

// HistoryEntry is an entry of the sync history.
type HistoryEntry struct {
	ID         int64
	Timestamp  time.Time
	Kind       string
	Status     string
	FilesCount int
	Message    string
}

// SyncFile records the remote revision of a file at its last sync.
type SyncFile struct {
	Path      string
	RemoteSHA string
	SyncedAt  time.Time
}

// HistoryLimit is the number of history entries which are kept.
const HistoryLimit = 100

// GetSyncConfig returns the sync configuration, and whether one exists.
func GetSyncConfig(ctx context.Context, db db) (SyncConfig, bool, error) {
	var (
		c                SyncConfig
		include, exclude string
	)
	err := db.QueryRowContext(ctx, `
	  SELECT repository, branch, token, include_globs, exclude_globs, auto_sync, conflict_policy, interval_seconds, paused
	  FROM github_sync_config WHERE id = 1`).
		Scan(&c.Repository, &c.Branch, &c.Token, &include, &exclude, &c.AutoSync, &c.ConflictPolicy, &c.IntervalSeconds, &c.Paused)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncConfig{}, false, nil
	}
	if err != nil {
		return SyncConfig{}, false, err
	}
	if err := json.Unmarshal([]byte(include), &c.Include); err != nil {
		return SyncConfig{}, false, err
	}
	if err := json.Unmarshal([]byte(exclude), &c.Exclude); err != nil {
		return SyncConfig{}, false, err
	}
	return c, true, nil
}

// SaveSyncConfig creates or replaces the sync configuration.
func SaveSyncConfig(ctx context.Context, db db, c SyncConfig) error {
	include, err := marshalStrings(c.Include)
	if err != nil {
		return err
	}
	exclude, err := marshalStrings(c.Exclude)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
	  INSERT INTO github_sync_config (id, repository, branch, token, include_globs, exclude_globs, auto_sync, conflict_policy, interval_seconds, paused)
	  VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	  ON CONFLICT (id) DO UPDATE SET
	    repository = excluded.repository, branch = excluded.branch, token = excluded.token,
	    include_globs = excluded.include_globs, exclude_globs = excluded.exclude_globs,
	    auto_sync = excluded.auto_sync, conflict_policy = excluded.conflict_policy,
	    interval_seconds = excluded.interval_seconds, paused = excluded.paused`,
		c.Repository, c.Branch, c.Token, include, exclude, c.AutoSync, c.ConflictPolicy, c.IntervalSeconds, c.Paused)
	return err
}

// SetSyncPaused pauses or resumes automatic syncs.
func SetSyncPaused(ctx context.Context, db db, paused bool) error {
	_, err := db.ExecContext(ctx, "UPDATE github_sync_config SET paused = ? WHERE id = 1", paused)
	return err
}

// AddHistory appends an entry to the sync history and drops all but the
// latest HistoryLimit entries.
func AddHistory(ctx context.Context, db db, h HistoryEntry) (HistoryEntry, error) {
	err := db.QueryRowContext(ctx, `
	  INSERT INTO sync_history (timestamp, kind, status, files_count, message)
	  VALUES (?, ?, ?, ?, ?) RETURNING id`,
		h.Timestamp.UTC().Format(time.RFC3339Nano), h.Kind, h.Status, h.FilesCount, h.Message).Scan(&h.ID)
	if err != nil {
		return HistoryEntry{}, err
	}
	_, err = db.ExecContext(ctx, `
	  DELETE FROM sync_history WHERE id NOT IN (SELECT id FROM sync_history ORDER BY id DESC LIMIT ?)`, HistoryLimit)
	return h, err
}

// ListHistory returns the latest n history entries, latest first.
func ListHistory(ctx context.Context, db db, n int) ([]HistoryEntry, error) {
	if n <= 0 || n > HistoryLimit {
		n = HistoryLimit
	}
	rows, err := db.QueryContext(ctx, `
	  SELECT id, timestamp, kind, status, files_count, message
	  FROM sync_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []HistoryEntry
	for rows.Next() {
		var (
			h  HistoryEntry
			ts string
		)
		if err := rows.Scan(&h.ID, &ts, &h.Kind, &h.Status, &h.FilesCount, &h.Message); err != nil {
			return nil, err
		}
		if h.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// GetSyncFile returns the sync record of a file, and whether it exists.
func GetSyncFile(ctx context.Context, db db, path string) (SyncFile, bool, error) {
	var (
		f  = SyncFile{Path: path}
		ts string
	)
	err := db.QueryRowContext(ctx, "SELECT remote_sha, synced_at FROM sync_files WHERE path = ?", path).Scan(&f.RemoteSHA, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncFile{}, false, nil
	}
	if err != nil {
		return SyncFile{}, false, err
	}
	if f.SyncedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return SyncFile{}, false, err
	}
	return f, true, nil
}

// SetSyncFile records the remote revision of a file.
func SetSyncFile(ctx context.Context, db db, f SyncFile) error {
	_, err := db.ExecContext(ctx, `
	  INSERT INTO sync_files (path, remote_sha, synced_at) VALUES (?, ?, ?)
	  ON CONFLICT (path) DO UPDATE SET remote_sha = excluded.remote_sha, synced_at = excluded.synced_at`,
		f.Path, f.RemoteSHA, f.SyncedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	return string(b), err
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}
