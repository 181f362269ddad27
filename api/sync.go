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
package api

import (
	"net/http"
	"time"

	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/sync"
	"github.com/sboehler/kasse/lib/store"
)

type syncConfigJSON struct {
	Repository      string   `json:"repository"`
	Branch          string   `json:"branch"`
	Token           string   `json:"token,omitempty"`
	Include         []string `json:"include"`
	Exclude         []string `json:"exclude"`
	AutoSync        bool     `json:"auto_sync"`
	ConflictPolicy  string   `json:"conflict_policy"`
	IntervalSeconds int      `json:"interval_seconds"`
	Paused          bool     `json:"paused"`
	Configured      bool     `json:"configured"`
}

type syncStatusJSON struct {
	State        string   `json:"state"`
	Configured   bool     `json:"configured"`
	Paused       bool     `json:"paused"`
	PendingFiles []string `json:"pending_files"`
	Conflicts    []string `json:"conflicts"`
	LastSync     string   `json:"last_sync,omitempty"`
	CurrentOp    string   `json:"current_op,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type syncResultJSON struct {
	Op        string   `json:"op"`
	Pushed    []string `json:"pushed"`
	Pulled    []string `json:"pulled"`
	Conflicts []string `json:"conflicts"`
}

type syncConflictJSON struct {
	errorJSON
	Conflicts []string `json:"conflicts"`
}

type historyJSON struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	FilesCount int    `json:"files_count"`
	Message    string `json:"message,omitempty"`
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func (s *Server) getSyncConfig(w http.ResponseWriter, r *http.Request) {
	c, ok, err := s.Sync.Config(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncConfigJSON{
		Repository:      c.Repository,
		Branch:          c.Branch,
		Include:         nonNil(c.Include),
		Exclude:         nonNil(c.Exclude),
		AutoSync:        c.AutoSync,
		ConflictPolicy:  c.ConflictPolicy,
		IntervalSeconds: int(c.Interval / time.Second),
		Paused:          c.Paused,
		Configured:      ok,
	})
}

// configureSync stores the configuration. An empty token keeps the stored
// one.
func (s *Server) configureSync(w http.ResponseWriter, r *http.Request) {
	var req syncConfigJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.Sync.Configure(r.Context(), sync.Config{
		Repository:     req.Repository,
		Branch:         req.Branch,
		Token:          req.Token,
		Include:        req.Include,
		Exclude:        req.Exclude,
		AutoSync:       req.AutoSync,
		ConflictPolicy: req.ConflictPolicy,
		Interval:       time.Duration(req.IntervalSeconds) * time.Second,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getSyncConfig(w, r)
}

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.TestConnection(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeSyncResult writes the result of a sync, listing the conflicting
// files if the sync stopped on conflicts.
func (s *Server) writeSyncResult(w http.ResponseWriter, r *http.Request, res sync.Result, err error) {
	if err != nil && fault.Is(err, fault.Conflict) && len(res.Conflicts) > 0 {
		writeJSON(w, http.StatusConflict, syncConflictJSON{
			errorJSON: errorJSON{Error: fault.Conflict.String(), Message: err.Error()},
			Conflicts: res.Conflicts,
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResultJSON{
		Op:        res.Op,
		Pushed:    nonNil(res.Pushed),
		Pulled:    nonNil(res.Pulled),
		Conflicts: nonNil(res.Conflicts),
	})
}

type manualSyncJSON struct {
	Files []string `json:"files"`
	Force bool     `json:"force"`
}

func (s *Server) manualSync(w http.ResponseWriter, r *http.Request) {
	var req manualSyncJSON
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	res, err := s.Sync.Sync(r.Context(), sync.KindManual, req.Files, req.Force)
	s.writeSyncResult(w, r, res, err)
}

type resolveJSON struct {
	Path   string `json:"path"`
	Policy string `json:"policy"`
}

func (s *Server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.Sync.ResolveConflict(r.Context(), req.Path, req.Policy)
	s.writeSyncResult(w, r, res, err)
}

type restoreJSON struct {
	Commit string `json:"commit"`
	Force  bool   `json:"force"`
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	var req restoreJSON
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	res, err := s.Sync.Restore(r.Context(), req.Commit, req.Force)
	s.writeSyncResult(w, r, res, err)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Sync.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := syncStatusJSON{
		State:        st.State,
		Configured:   st.Configured,
		Paused:       st.Paused,
		PendingFiles: nonNil(st.PendingFiles),
		Conflicts:    nonNil(st.Conflicts),
		CurrentOp:    st.CurrentOp,
		Message:      st.Message,
	}
	if st.LastSync != nil {
		res.LastSync = st.LastSync.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) syncHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query(), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hs, err := s.Sync.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]historyJSON, 0, len(hs))
	for _, h := range hs {
		res = append(res, toHistoryJSON(h))
	}
	writeJSON(w, http.StatusOK, res)
}

func toHistoryJSON(h store.HistoryEntry) historyJSON {
	return historyJSON{
		ID:         h.ID,
		Timestamp:  h.Timestamp.Format(time.RFC3339),
		Kind:       h.Kind,
		Status:     h.Status,
		FilesCount: h.FilesCount,
		Message:    h.Message,
	}
}

func (s *Server) pauseSync(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.Pause(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.syncStatus(w, r)
}

func (s *Server) resumeSync(w http.ResponseWriter, r *http.Request) {
	if err := s.Sync.Resume(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.syncStatus(w, r)
}
