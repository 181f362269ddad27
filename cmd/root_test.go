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
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := strings.Join([]string{
		`option "operating_currency" "CNY"`,
		`2024-01-01 open Assets:Cash CNY`,
		`2024-01-01 open Expenses:Food CNY`,
		`2024-03-15 * "Lunch"`,
		`  Expenses:Food  30.00 CNY`,
		`  Assets:Cash`,
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, "main.beancount"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	env := filepath.Join(dir, "test.env")
	if err := os.WriteFile(env, []byte("KASSE_DATA_DIR="+dir+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KASSE_DATA_DIR", dir)
	t.Setenv("KASSE_DB_PATH", filepath.Join(dir, "kasse.db"))
	t.Setenv("KASSE_KEY_FILE", filepath.Join(dir, ".sync.key"))
	return env
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	c := CreateRootCmd()
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetArgs(args)
	if err := c.Execute(); err != nil {
		t.Fatalf("%v returned unexpected error: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCheck(t *testing.T) {
	env := setup(t)

	got := execute(t, "--env", env, "check", "--color=false")

	if want := "1 transactions, 0 diagnostics\n"; got != want {
		t.Fatalf("check printed %q, want %q", got, want)
	}
}

func TestBalance(t *testing.T) {
	env := setup(t)

	got := execute(t, "--env", env, "balance", "--color=false", "--date", "2024-03-31")

	for _, want := range []string{"Assets:Cash", "-30.00"} {
		if !strings.Contains(got, want) {
			t.Errorf("balance output does not contain %q:\n%s", want, got)
		}
	}
}

func TestFilesYears(t *testing.T) {
	env := setup(t)

	got := execute(t, "--env", env, "files", "migrate")

	if want := "moved 1 transactions to transactions_2024.beancount\n"; got != want {
		t.Fatalf("files migrate printed %q, want %q", got, want)
	}
	if got, want := execute(t, "--env", env, "files", "years"), "2024\ttransactions_2024.beancount\n"; got != want {
		t.Fatalf("files years printed %q, want %q", got, want)
	}
}

func TestIncomeCSV(t *testing.T) {
	env := setup(t)

	got := execute(t, "--env", env, "income", "--csv", "--from", "2024-03-01", "--to", "2024-03-31")

	for _, want := range []string{"Account,2024-03-01 - 2024-03-31 (CNY)\n", "  Expenses:Food,", "Net Income,"} {
		if !strings.Contains(got, want) {
			t.Errorf("income output does not contain %q:\n%s", want, got)
		}
	}
}
