package config

import (
	"fmt"
	"strings"

	"pacekit/pkg/logx"
	"pacekit/pkg/pace"
)

// Config is the full pacerd configuration.
//
// Files may be YAML (.yaml/.yml) or JSON; both are decoded strictly, so
// unknown fields are rejected rather than silently ignored.
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Admin    AdminConfig     `json:"admin,omitempty"`
	Journal  *JournalConfig  `json:"journal,omitempty"`
	Limiters []LimiterConfig `json:"limiters"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

func (c LoggingConfig) ToLogx() logx.Config {
	out := logx.Config{Level: c.Level, Console: c.Console}
	out.File.Enabled = c.File.Enabled
	out.File.Path = c.File.Path
	return out
}

// AdminConfig controls the local status + pprof HTTP listener.
type AdminConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Address string `json:"address,omitempty"`
}

// JournalConfig controls execution-history persistence.
// Driver: "none" (or omitted), "file", or "sqlite".
//
// BusyTimeout is a Go duration string; sqlite only.
type JournalConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// LimiterConfig declares one named rate budget.
//
// Rate is the spec string form ("60 per minute"). Alternatively Count and
// Unit may be given explicitly; setting both forms is rejected.
type LimiterConfig struct {
	Name  string       `json:"name"`
	Rate  string       `json:"rate,omitempty"`
	Count int          `json:"count,omitempty"`
	Unit  string       `json:"unit,omitempty"`
	Burst *BurstConfig `json:"burst,omitempty"`
}

type BurstConfig struct {
	Enabled    bool    `json:"enabled"`
	LimitAfter float64 `json:"limit_after,omitempty"`
}

// ParseRate resolves whichever rate form the limiter block used.
func (c LimiterConfig) ParseRate() (pace.Rate, error) {
	hasSpec := strings.TrimSpace(c.Rate) != ""
	hasParts := c.Count != 0 || strings.TrimSpace(c.Unit) != ""
	switch {
	case hasSpec && hasParts:
		return pace.Rate{}, fmt.Errorf("limiter %q: set either rate or count+unit, not both", c.Name)
	case hasSpec:
		return pace.ParseRate(c.Rate)
	case hasParts:
		return pace.RateOf(c.Count, c.Unit)
	default:
		return pace.Rate{}, fmt.Errorf("limiter %q: rate is required", c.Name)
	}
}

// Validate rejects configs the registry could not build.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i := range c.Limiters {
		lc := c.Limiters[i]
		name := strings.TrimSpace(lc.Name)
		if name == "" {
			return fmt.Errorf("limiters[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("limiter %q declared twice", name)
		}
		seen[name] = true
		if _, err := lc.ParseRate(); err != nil {
			return err
		}
		if lc.Burst != nil && lc.Burst.Enabled {
			f := lc.Burst.LimitAfter
			if f != 0 && (f <= 0 || f >= 1) {
				return fmt.Errorf("limiter %q: burst.limit_after must be in (0, 1)", name)
			}
		}
	}
	if c.Journal != nil {
		if _, err := ParseDurationField("journal.busy_timeout", c.Journal.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
