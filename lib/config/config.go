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
// Package config loads the server configuration from a .env file, an
// optional YAML file and KASSE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sboehler/kasse/lib/common/fault"
	"github.com/sboehler/kasse/lib/model"
	"gopkg.in/yaml.v2"
)

// Config is the configuration of kasse.
type Config struct {
	DataDir      string        `yaml:"data_dir"`
	MainFile     string        `yaml:"main_file"`
	Currency     string        `yaml:"currency"`
	DBPath       string        `yaml:"db_path"`
	KeyFile      string        `yaml:"key_file"`
	Addr         string        `yaml:"addr"`
	TickInterval time.Duration `yaml:"tick_interval"`
	SyncDelay    time.Duration `yaml:"sync_delay"`
	GitHubURL    string        `yaml:"github_url"`
	LLMAPIKey    string        `yaml:"llm_api_key"`
	Debug        bool          `yaml:"debug"`

	// AllowedOrigins are the origins allowed to call the API from a
	// browser. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir:      "../data",
		MainFile:     "main.beancount",
		Currency:     "CNY",
		Addr:         "localhost:9001",
		TickInterval: time.Hour,
		SyncDelay:    5 * time.Second,
		GitHubURL:    "https://api.github.com",
	}
}

// Load loads the configuration. The given env files must exist; without
// any, a .env file in the working directory is loaded if present. Variables
// which are already set are not overridden by env files. An empty file
// skips the YAML layer.
func Load(file string, envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	c := Default()
	if file != "" {
		if err := c.readFile(file); err != nil {
			return Config{}, err
		}
	}
	if err := c.readEnv(); err != nil {
		return Config{}, err
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "kasse.db")
	}
	if c.KeyFile == "" {
		c.KeyFile = filepath.Join(filepath.Dir(filepath.Clean(c.DataDir)), ".sync.key")
	}
	if diags := c.check(); len(diags) > 0 {
		return Config{}, fault.Invalid("loading config", diags)
	}
	return c, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func (c *Config) readEnv() error {
	for key, dest := range map[string]*string{
		"KASSE_DATA_DIR":    &c.DataDir,
		"KASSE_MAIN_FILE":   &c.MainFile,
		"KASSE_CURRENCY":    &c.Currency,
		"KASSE_DB_PATH":     &c.DBPath,
		"KASSE_KEY_FILE":    &c.KeyFile,
		"KASSE_ADDR":        &c.Addr,
		"KASSE_GITHUB_URL":  &c.GitHubURL,
		"KASSE_LLM_API_KEY": &c.LLMAPIKey,
	} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dest = v
		}
	}
	for key, dest := range map[string]*time.Duration{
		"KASSE_TICK_INTERVAL": &c.TickInterval,
		"KASSE_SYNC_DELAY":    &c.SyncDelay,
	} {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dest = d
	}
	if v, ok := os.LookupEnv("KASSE_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("KASSE_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KASSE_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

func (c Config) check() []string {
	var diags []string
	if c.DataDir == "" {
		diags = append(diags, "data directory is required")
	}
	if c.MainFile == "" {
		diags = append(diags, "main file is required")
	}
	if err := model.ValidateISOCurrency(c.Currency); err != nil {
		diags = append(diags, err.Error())
	}
	if c.TickInterval <= 0 {
		diags = append(diags, "tick interval must be positive")
	}
	if c.SyncDelay < 0 {
		diags = append(diags, "sync delay must not be negative")
	}
	return diags
}

// MainPath returns the path of the main ledger file.
func (c Config) MainPath() string {
	if filepath.IsAbs(c.MainFile) {
		return c.MainFile
	}
	return filepath.Join(c.DataDir, c.MainFile)
}

// LogValue leaves out the API key.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_dir", c.DataDir),
		slog.String("main_file", c.MainFile),
		slog.String("currency", c.Currency),
		slog.String("db_path", c.DBPath),
		slog.String("addr", c.Addr),
		slog.Duration("tick_interval", c.TickInterval),
		slog.Duration("sync_delay", c.SyncDelay),
		slog.Bool("debug", c.Debug),
	)
}
