package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// isolate points the default config path at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("NBSLOT_HOME", home)
	return home
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, path, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want none", path)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaultPathFile(t *testing.T) {
	home := isolate(t)
	want := writeConfig(t, home, "slot:\n  image: jupyter/base-notebook\n")

	cfg, path, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != want {
		t.Errorf("resolved path = %q, want %q", path, want)
	}
	if cfg.Slot.Image != "jupyter/base-notebook" {
		t.Errorf("Slot.Image = %q", cfg.Slot.Image)
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), `
addr: 127.0.0.1:9000
log:
  level: debug
  format: json
slot:
  name: nb-slot
  port: 8889
  domain: lab.example.org
  host_prefix: 8
clone:
  owner: "1000:1000"
token:
  timeout: 45s
sweep:
  schedule: ""
pull: false
`)

	cfg, resolved, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}

	want := DefaultConfig()
	want.Addr = "127.0.0.1:9000"
	want.Log = LogConfig{Level: "debug", Format: "json"}
	want.Slot.Name = "nb-slot"
	want.Slot.Port = 8889
	want.Slot.Domain = "lab.example.org"
	want.Slot.HostPrefix = 8
	want.Clone.Owner = "1000:1000"
	want.Token.Timeout = 45 * time.Second
	want.Sweep.Schedule = ""
	want.Pull = false
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "slot:\n  image: from-file\n")
	t.Setenv("NBSLOT_SLOT_IMAGE", "from-env")
	t.Setenv("NBSLOT_TOKEN_TIMEOUT", "10s")
	t.Setenv("NBSLOT_PULL", "false")

	cfg, _, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slot.Image != "from-env" {
		t.Errorf("Slot.Image = %q, want from-env", cfg.Slot.Image)
	}
	if cfg.Token.Timeout != 10*time.Second {
		t.Errorf("Token.Timeout = %s, want 10s", cfg.Token.Timeout)
	}
	if cfg.Pull {
		t.Error("Pull = true, want false from env")
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, _, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load error = %v, want not found", err)
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Load(ctx, ""); err == nil {
		t.Error("Load with canceled context should fail")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "slot:\n  port: 70000\n  workspace: notebooks\n")

	_, _, err := Load(context.Background(), path)
	if err == nil {
		t.Fatal("Load should reject invalid values")
	}
	for _, want := range []string{"slot.port", "slot.workspace"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty slot name", func(c *Config) { c.Slot.Name = "" }, "slot.name"},
		{"empty image", func(c *Config) { c.Slot.Image = "" }, "slot.image"},
		{"zero port", func(c *Config) { c.Slot.Port = 0 }, "slot.port"},
		{"relative workspace", func(c *Config) { c.Slot.Workspace = "nb" }, "slot.workspace"},
		{"zero host prefix", func(c *Config) { c.Slot.HostPrefix = 0 }, "slot.host_prefix"},
		{"empty clone image", func(c *Config) { c.Clone.Image = "" }, "clone.image"},
		{"empty clone owner", func(c *Config) { c.Clone.Owner = "" }, "clone.owner"},
		{"zero token timeout", func(c *Config) { c.Token.Timeout = 0 }, "token.timeout"},
		{"zero sweep age", func(c *Config) { c.Sweep.MaxAge = 0 }, "sweep.max_age"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want error mentioning %s", err, tt.want)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestYAML(t *testing.T) {
	out, err := DefaultConfig().YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	if !strings.Contains(string(out), "timeout: 2m0s") {
		t.Errorf("YAML output lacks a readable timeout:\n%s", out)
	}

	var back Config
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Slot.Image != DefaultConfig().Slot.Image {
		t.Errorf("Slot.Image = %q after YAML round trip", back.Slot.Image)
	}
}
