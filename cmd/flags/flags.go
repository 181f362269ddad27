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
package flags

import (
	"log/slog"
	"os"
	"time"

	"github.com/sboehler/kasse/lib/common/date"
	"github.com/sboehler/kasse/lib/config"
	"github.com/sboehler/kasse/lib/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Global holds the flags shared by all commands.
type Global struct {
	ConfigFile string
	EnvFiles   []string
	Debug      bool
}

// Setup registers the flags as persistent flags of cmd.
func (g *Global) Setup(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&g.ConfigFile, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringSliceVar(&g.EnvFiles, "env", nil, "env files to load instead of .env")
	cmd.PersistentFlags().BoolVar(&g.Debug, "debug", false, "enable debug logging")
}

// Load loads the configuration and creates the logger.
func (g *Global) Load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.ConfigFile, g.EnvFiles...)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg.Debug = cfg.Debug || g.Debug
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// DateFlag manages a flag to determine a date.
type DateFlag time.Time

var _ pflag.Value = (*DateFlag)(nil)

func (tf DateFlag) String() string {
	if tf.Value().IsZero() {
		return ""
	}
	return date.Format(tf.Value())
}

// Set implements pflag.Value.
func (tf *DateFlag) Set(v string) error {
	t, err := date.Parse(v)
	if err != nil {
		return err
	}
	*tf = (DateFlag)(t)
	return nil
}

// Type implements pflag.Value.
func (tf DateFlag) Type() string {
	return "YYYY-MM-DD"
}

// Value returns the flag value.
func (tf DateFlag) Value() time.Time {
	return time.Time(tf)
}

func (tf DateFlag) ValueOr(t time.Time) time.Time {
	v := tf.Value()
	if v.IsZero() {
		return t
	}
	return v
}

// CurrencyFlag manages a flag to parse a currency.
type CurrencyFlag struct {
	val string
}

var _ pflag.Value = (*CurrencyFlag)(nil)

// Set implements pflag.Value.
func (cf *CurrencyFlag) Set(v string) error {
	if err := model.ValidateCurrency(v); err != nil {
		return err
	}
	cf.val = v
	return nil
}

// Type implements pflag.Value.
func (cf CurrencyFlag) Type() string {
	return "<currency>"
}

func (cf CurrencyFlag) String() string {
	return cf.val
}

// ValueOr returns the currency, or def if the flag is unset.
func (cf CurrencyFlag) ValueOr(def string) string {
	if cf.val == "" {
		return def
	}
	return cf.val
}
