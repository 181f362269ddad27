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

	"github.com/sboehler/kasse/lib/yearfile"
)

type yearJSON struct {
	Year int    `json:"year"`
	File string `json:"file"`
}

func (s *Server) listYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.Years.ListYears()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := make([]yearJSON, 0, len(years))
	for _, y := range years {
		res = append(res, yearJSON{y, yearfile.FileName(y)})
	}
	writeJSON(w, http.StatusOK, res)
}

type migrateJSON struct {
	Moved map[int]int `json:"moved"`
	Total int         `json:"total"`
}

func (s *Server) migrateFiles(w http.ResponseWriter, r *http.Request) {
	res, err := s.Years.Migrate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mj := migrateJSON{Moved: res.Moved}
	if mj.Moved == nil {
		mj.Moved = map[int]int{}
	}
	for _, n := range res.Moved {
		mj.Total += n
	}
	writeJSON(w, http.StatusOK, mj)
}

type cleanupJSON struct {
	Removed []int `json:"removed"`
}

func (s *Server) cleanupFiles(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Years.Cleanup(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if removed == nil {
		removed = []int{}
	}
	writeJSON(w, http.StatusOK, cleanupJSON{removed})
}

type orderJSON struct {
	Categories    []string            `json:"categories"`
	Subcategories map[string][]string `json:"subcategories"`
	Accounts      map[string][]string `json:"accounts"`
}

type namesJSON struct {
	Names []string `json:"names"`
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Order.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderJSON(o))
}

func (s *Server) setCategories(w http.ResponseWriter, r *http.Request) {
	var req namesJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Order.SetCategories(r.Context(), req.Names); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getOrder(w, r)
}

func (s *Server) setSubcategories(w http.ResponseWriter, r *http.Request) {
	var req namesJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Order.SetSubcategories(r.Context(), pathParam(r, "category"), req.Names); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getOrder(w, r)
}

func (s *Server) setAccountOrder(w http.ResponseWriter, r *http.Request) {
	var req namesJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Order.SetAccounts(r.Context(), pathParam(r, "category"), pathParam(r, "subcategory"), req.Names); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getOrder(w, r)
}
