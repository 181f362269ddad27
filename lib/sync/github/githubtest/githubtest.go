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

// Package githubtest provides an in-memory GitHub API server for tests.
package githubtest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/sboehler/kasse/lib/sync/github"
	"golang.org/x/exp/maps"
)

// Server serves a single repository with a single branch.
type Server struct {
	*httptest.Server

	Owner, Name, Branch, Token string

	mu      sync.Mutex
	blobs   map[string][]byte
	commits []commit
	puts    []string
}

type commit struct {
	sha     string
	message string
	files   map[string]string
}

// New starts a server for owner/name with an initial empty commit.
func New(owner, name, token string) *Server {
	s := &Server{
		Owner:  owner,
		Name:   name,
		Branch: "main",
		Token:  token,
		blobs:  make(map[string][]byte),
	}
	s.commits = []commit{{sha: hash("commit", "initial"), message: "initial", files: map[string]string{}}}
	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Route("/repos/{owner}/{name}", func(r chi.Router) {
		r.Use(s.repository)
		r.Get("/", s.getRepository)
		r.Get("/contents", s.getContents)
		r.Get("/contents/*", s.getContents)
		r.Put("/contents/*", s.putContents)
		r.Get("/git/trees/{ref}", s.getTree)
		r.Get("/git/blobs/{sha}", s.getBlob)
		r.Get("/commits/{ref}", s.getCommit)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// Repo returns "owner/name".
func (s *Server) Repo() string {
	return s.Owner + "/" + s.Name
}

// SetFile commits a file directly on the branch, as another client would.
func (s *Server) SetFile(path string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(path, content, "set "+path)
}

// File returns the content of a file at the head of the branch.
func (s *Server) File(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha, ok := s.head().files[path]
	if !ok {
		return nil, false
	}
	return s.blobs[sha], true
}

// Puts returns the paths of all content updates, in order.
func (s *Server) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

// Head returns the sha of the head commit.
func (s *Server) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head().sha
}

func (s *Server) head() commit {
	return s.commits[len(s.commits)-1]
}

func (s *Server) commit(path string, content []byte, message string) string {
	sha := github.BlobSHA(content)
	s.blobs[sha] = content
	files := maps.Clone(s.head().files)
	files[path] = sha
	s.commits = append(s.commits, commit{
		sha:     hash("commit", fmt.Sprintf("%d %s", len(s.commits), message)),
		message: message,
		files:   files,
	})
	return sha
}

func (s *Server) lookup(ref string) (commit, bool) {
	if ref == "" || ref == s.Branch {
		return s.head(), true
	}
	for _, c := range s.commits {
		if c.sha == ref {
			return c, true
		}
	}
	return commit{}, false
}

func hash(kind, content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00%s", kind, len(content), content)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) repository(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "owner") != s.Owner || chi.URLParam(r, "name") != s.Name {
			reply(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusOK, map[string]any{"full_name": s.Repo(), "default_branch": s.Branch, "private": true})
}

func (s *Server) getContents(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	c, ok := s.lookup(r.URL.Query().Get("ref"))
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "No commit found for the ref"})
		return
	}
	if path == "" {
		var (
			entries []map[string]string
			dirs    = make(map[string]bool)
		)
		for _, p := range sortedKeys(c.files) {
			dir, _, nested := strings.Cut(p, "/")
			switch {
			case !nested:
				entries = append(entries, map[string]string{"type": "file", "path": p, "sha": c.files[p]})
			case !dirs[dir]:
				dirs[dir] = true
				entries = append(entries, map[string]string{"type": "dir", "path": dir, "sha": hash("tree", dir)})
			}
		}
		reply(w, http.StatusOK, entries)
		return
	}
	sha, ok := c.files[path]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	reply(w, http.StatusOK, map[string]string{
		"type":     "file",
		"path":     path,
		"sha":      sha,
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString(s.blobs[sha]),
	})
}

func (s *Server) putContents(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if req.Branch != "" && req.Branch != s.Branch {
		reply(w, http.StatusNotFound, map[string]string{"message": "Branch not found"})
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	current, exists := s.head().files[path]
	switch {
	case exists && req.SHA == "":
		reply(w, http.StatusUnprocessableEntity, map[string]string{"message": `"sha" wasn't supplied.`})
		return
	case exists && req.SHA != current, !exists && req.SHA != "":
		reply(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match %s", path, req.SHA)})
		return
	}
	sha := s.commit(path, content, req.Message)
	s.puts = append(s.puts, path)
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	reply(w, status, map[string]any{
		"content": map[string]string{"path": path, "sha": sha},
		"commit":  map[string]string{"sha": s.head().sha, "message": req.Message},
	})
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(chi.URLParam(r, "ref"))
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	var tree []map[string]any
	for _, p := range sortedKeys(c.files) {
		tree = append(tree, map[string]any{"path": p, "type": "blob", "sha": c.files[p], "size": len(s.blobs[c.files[p]])})
	}
	reply(w, http.StatusOK, map[string]any{"sha": c.sha, "tree": tree, "truncated": false})
}

func (s *Server) getBlob(w http.ResponseWriter, r *http.Request) {
	content, ok := s.blobs[chi.URLParam(r, "sha")]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	reply(w, http.StatusOK, map[string]string{"encoding": "base64", "content": base64.StdEncoding.EncodeToString(content)})
}

func (s *Server) getCommit(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(chi.URLParam(r, "ref"))
	if !ok {
		reply(w, http.StatusUnprocessableEntity, map[string]string{"message": "No commit found for SHA"})
		return
	}
	reply(w, http.StatusOK, map[string]any{
		"sha":    c.sha,
		"commit": map[string]any{"message": c.message, "tree": map[string]string{"sha": hash("tree", c.sha)}},
	})
}

func sortedKeys(m map[string]string) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
