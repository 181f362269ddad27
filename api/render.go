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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/shopspring/decimal"
)

type errorJSON struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

var statuses = map[fault.Kind]int{
	fault.SourceMissing:   http.StatusInternalServerError,
	fault.ParseDiagnostic: http.StatusBadRequest,
	fault.NotFound:        http.StatusNotFound,
	fault.Validation:      http.StatusBadRequest,
	fault.Conflict:        http.StatusConflict,
	fault.RemoteFailure:   http.StatusBadGateway,
	fault.Transient:       http.StatusServiceUnavailable,
}

// StatusOf returns the HTTP status of an error.
func StatusOf(err error) int {
	if status, ok := statuses[fault.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	kind := fault.KindOf(err)
	if _, ok := statuses[kind]; !ok {
		kind = fault.Unknown
	}
	writeJSON(w, status, errorJSON{
		Error:       kind.String(),
		Message:     err.Error(),
		Diagnostics: fault.DiagnosticsOf(err),
	})
}

// decode decodes a JSON request body, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.New(fault.Validation, "decoding request", "invalid request body: %v", err)
	}
	return nil
}

func getOne(query url.Values, key string) (string, bool, error) {
	values, ok := query[key]
	if !ok {
		return "", ok, nil
	}
	if len(values) != 1 {
		return "", false, badParam(key, fmt.Errorf("expected one value, got %v", values))
	}
	return values[0], true, nil
}

func badParam(key string, err error) error {
	return fault.New(fault.Validation, "parsing parameters", "invalid parameter %q: %v", key, err)
}

func parseString(query url.Values, key string) (string, error) {
	s, _, err := getOne(query, key)
	return s, err
}

func parseDate(query url.Values, key string) (*time.Time, error) {
	s, ok, err := getOne(query, key)
	if err != nil || !ok || s == "" {
		return nil, err
	}
	t, err := date.Parse(s)
	if err != nil {
		return nil, badParam(key, err)
	}
	return &t, nil
}

func parseInt(query url.Values, key string) (int, error) {
	s, ok, err := getOne(query, key)
	if err != nil || !ok || s == "" {
		return 0, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, badParam(key, err)
	}
	return i, nil
}

func parseBool(query url.Values, key string) (bool, error) {
	s, ok, err := getOne(query, key)
	if err != nil || !ok || s == "" {
		return false, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, badParam(key, err)
	}
	return b, nil
}

func parseDecimal(query url.Values, key string) (*decimal.Decimal, error) {
	s, ok, err := getOne(query, key)
	if err != nil || !ok || s == "" {
		return nil, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, badParam(key, err)
	}
	return &d, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fault.New(fault.Validation, "parsing id", "invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// pathParam returns an unescaped path parameter.
func pathParam(r *http.Request, key string) string {
	s := chi.URLParam(r, key)
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func parseDay(key, s string) (time.Time, error) {
	t, err := date.Parse(s)
	if err != nil {
		return time.Time{}, fault.New(fault.Validation, "parsing request", "invalid %s %q, want YYYY-MM-DD", key, s)
	}
	return t, nil
}

func parseOptionalDay(key string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDay(key, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatOptionalDay(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := date.Format(*t)
	return &s
}
