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
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/store"
)

type savedQueryJSON struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Criteria criteriaJSON `json:"criteria"`
}

func toSavedQueryJSON(q store.SavedQuery) (savedQueryJSON, error) {
	res := savedQueryJSON{ID: q.ID, Name: q.Name}
	if err := json.Unmarshal([]byte(q.Criteria), &res.Criteria); err != nil {
		return savedQueryJSON{}, fault.Wrap(fault.Unknown, "reading saved query", err)
	}
	return res, nil
}

// savedQuery validates the request and serializes its criteria.
func (qj savedQueryJSON) savedQuery() (store.SavedQuery, error) {
	if strings.TrimSpace(qj.Name) == "" {
		return store.SavedQuery{}, fault.New(fault.Validation, "saving query", "name must not be empty")
	}
	if _, err := qj.Criteria.criteria(); err != nil {
		return store.SavedQuery{}, err
	}
	b, err := json.Marshal(qj.Criteria)
	if err != nil {
		return store.SavedQuery{}, err
	}
	return store.SavedQuery{ID: qj.ID, Name: strings.TrimSpace(qj.Name), Criteria: string(b)}, nil
}

func (s *Server) writeSavedQuery(w http.ResponseWriter, r *http.Request, status int, q store.SavedQuery) {
	res, err := toSavedQueryJSON(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, res)
}

func (s *Server) listQueries(w http.ResponseWriter, r *http.Request) {
	qs, err := store.ListQueries(r.Context(), s.DB)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]savedQueryJSON, 0, len(qs))
	for _, q := range qs {
		qj, err := toSavedQueryJSON(q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res = append(res, qj)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createQuery(w http.ResponseWriter, r *http.Request) {
	var req savedQueryJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := req.savedQuery()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if q, err = store.CreateQuery(r.Context(), s.DB, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSavedQuery(w, r, http.StatusCreated, q)
}

func (s *Server) getQuery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := store.GetQuery(r.Context(), s.DB, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSavedQuery(w, r, http.StatusOK, q)
}

func (s *Server) updateQuery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req savedQueryJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ID = id
	q, err := req.savedQuery()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if q, err = store.UpdateQuery(r.Context(), s.DB, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSavedQuery(w, r, http.StatusOK, q)
}

func (s *Server) deleteQuery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := store.DeleteQuery(r.Context(), s.DB, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runQuery lists the transactions matching a saved query, paginated by
// the query parameters.
func (s *Server) runQuery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, size, err := parsePage(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := store.GetQuery(r.Context(), s.DB, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	qj, err := toSavedQueryJSON(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTransactions(w, r, qj.Criteria, page, size)
}
