package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pacekit/pkg/pace"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestManagerParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "pacerd.yaml", `
logging:
  level: debug
  console: true
admin:
  enabled: true
  address: "127.0.0.1:7077"
journal:
  driver: file
  path: ./data/journal
limiters:
  - name: godaddy
    rate: "60 per minute"
  - name: upstream
    count: 10
    unit: per second
    burst:
      enabled: true
      limit_after: 0.5
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if len(cfg.Limiters) != 2 {
		t.Fatalf("limiters = %d, want 2", len(cfg.Limiters))
	}

	r, err := cfg.Limiters[0].ParseRate()
	if err != nil {
		t.Fatalf("ParseRate: %v", err)
	}
	if r.Interval() != time.Second {
		t.Fatalf("interval = %v, want 1s", r.Interval())
	}

	r, err = cfg.Limiters[1].ParseRate()
	if err != nil {
		t.Fatalf("ParseRate count+unit: %v", err)
	}
	if r != (pace.Rate{Count: 10, Unit: pace.UnitSecond}) {
		t.Fatalf("rate = %+v", r)
	}
	if cfg.Limiters[1].Burst == nil || !cfg.Limiters[1].Burst.Enabled {
		t.Fatal("burst block not decoded")
	}

	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed snapshot")
	}
}

func TestManagerRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "pacerd.yaml", `
logging:
  level: info
limitters:
  - name: typo
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidateRejectsBadLimiters(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"limiters":[{"rate":"1 per second"}]}`},
		{"duplicate name", `{"limiters":[{"name":"a","rate":"1 per second"},{"name":"a","rate":"2 per second"}]}`},
		{"bad unit", `{"limiters":[{"name":"a","rate":"5 per fortnight"}]}`},
		{"both forms", `{"limiters":[{"name":"a","rate":"1 per second","count":2,"unit":"per minute"}]}`},
		{"missing rate", `{"limiters":[{"name":"a"}]}`},
		{"bad burst fraction", `{"limiters":[{"name":"a","rate":"1 per second","burst":{"enabled":true,"limit_after":1.5}}]}`},
		{"bad busy timeout", `{"limiters":[],"journal":{"driver":"sqlite","path":"x","busy_timeout":"soon"}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "pacerd.json", tt.body)
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", " 250ms ")
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration must fail")
	}
	d, err = ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("default not applied: (%v, %v)", d, err)
	}
}
