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
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sboehler/kasse/lib/common/fault"
)

var keys = []string{
	"KASSE_DATA_DIR", "KASSE_MAIN_FILE", "KASSE_CURRENCY", "KASSE_DB_PATH", "KASSE_KEY_FILE", "KASSE_ADDR",
	"KASSE_GITHUB_URL", "KASSE_LLM_API_KEY", "KASSE_TICK_INTERVAL", "KASSE_SYNC_DELAY", "KASSE_DEBUG", "KASSE_ALLOWED_ORIGINS",
}

// clearEnv unsets all variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	got, err := Load("")

	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	want := Default()
	want.DBPath = filepath.Join("..", "data", "kasse.db")
	want.KeyFile = filepath.Join("..", ".sync.key")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Load() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
	if got, want := got.MainPath(), filepath.Join("..", "data", "main.beancount"); got != want {
		t.Fatalf("MainPath() = %q, want %q", got, want)
	}
}

func TestLoadLayers(t *testing.T) {
	clearEnv(t)
	file := writeFile(t, "kasse.yaml", "data_dir: /srv/ledger\ncurrency: EUR\ntick_interval: 30m\n")
	env := writeFile(t, ".env", "KASSE_CURRENCY=USD\nKASSE_LLM_API_KEY=secret\n")
	t.Setenv("KASSE_SYNC_DELAY", "2s")
	t.Setenv("KASSE_DEBUG", "true")
	t.Setenv("KASSE_ALLOWED_ORIGINS", "http://localhost:3000,https://kasse.example.com")

	got, err := Load(file, env)

	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	want := Default()
	want.DataDir = "/srv/ledger"
	want.Currency = "USD"
	want.TickInterval = 30 * time.Minute
	want.SyncDelay = 2 * time.Second
	want.LLMAPIKey = "secret"
	want.Debug = true
	want.AllowedOrigins = []string{"http://localhost:3000", "https://kasse.example.com"}
	want.DBPath = "/srv/ledger/kasse.db"
	want.KeyFile = "/srv/.sync.key"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Load() returned unexpected diff (-want/+got):\n%s\n", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		desc string
		yaml string
		env  map[string]string
	}{
		{desc: "unknown field", yaml: "dta_dir: /srv\n"},
		{desc: "invalid currency", yaml: "currency: euro\n"},
		{desc: "invalid duration", env: map[string]string{"KASSE_TICK_INTERVAL": "often"}},
		{desc: "invalid bool", env: map[string]string{"KASSE_DEBUG": "sometimes"}},
		{desc: "zero tick", yaml: "tick_interval: 0s\n"},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			clearEnv(t)
			for k, v := range test.env {
				t.Setenv(k, v)
			}
			var file string
			if test.yaml != "" {
				file = writeFile(t, "kasse.yaml", test.yaml)
			}

			if _, err := Load(file); err == nil {
				t.Fatalf("Load() succeeded, want an error")
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("KASSE_CURRENCY", "cny")

	_, err := Load("")

	if !fault.Is(err, fault.Validation) {
		t.Fatalf("Load() returned %v, want a validation error", err)
	}
}
