package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
		"FACELOOKUP_THRESHOLD", "FACELOOKUP_WORKER_MODEL", "FACELOOKUP_DATABASE_URL", "FACELOOKUP_TABLE_PATH"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold != 0.6 {
		t.Errorf("Expected default threshold 0.6, got %v", cfg.Threshold)
	}
	if cfg.TablePath != "data/face_encodings.json" || cfg.PeoplePath != "people.json" {
		t.Errorf("Unexpected paths: %q %q", cfg.TablePath, cfg.PeoplePath)
	}
	if cfg.Worker.Timeout != 30*time.Second || cfg.Worker.Model != "hog" || cfg.Worker.Upsample != 1 {
		t.Errorf("Unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Database.URL != DefaultDatabaseURL {
		t.Errorf("Expected default database URL, got %q", cfg.Database.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "facelookup.yaml")
	yaml := "threshold: 0.5\nworker:\n  model: cnn\n  timeout: 5s\ntable_path: from-file.json\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FACELOOKUP_WORKER_MODEL", "hog")
	t.Setenv("FACELOOKUP_TABLE_PATH", "from-env.json")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("threshold", 0.6, "")
	flags.String("table", "", "")
	if err := flags.Parse([]string{"--threshold=0.45"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold != 0.45 {
		t.Errorf("Flag should win, got threshold %v", cfg.Threshold)
	}
	if cfg.Worker.Model != "hog" {
		t.Errorf("Env should beat the file, got model %q", cfg.Worker.Model)
	}
	if cfg.TablePath != "from-env.json" {
		t.Errorf("Unset flag must not override env, got %q", cfg.TablePath)
	}
	if cfg.Worker.Timeout != 5*time.Second {
		t.Errorf("Expected timeout from file, got %v", cfg.Worker.Timeout)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("Expected an error for a missing explicit config file")
	}
}

func TestDatabaseURLFromPostgresEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "faces")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := "postgres://u:p@db:5432/faces"; cfg.Database.URL != want {
		t.Errorf("Expected %q, got %q", want, cfg.Database.URL)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			TablePath: "t.json",
			Threshold: 0.6,
			Log:       LogConfig{Level: "info"},
			Worker:    WorkerConfig{Script: "w.py", Model: "hog", Upsample: 1, Timeout: time.Second},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }},
		{"bad model", func(c *Config) { c.Worker.Model = "yolo" }},
		{"negative upsample", func(c *Config) { c.Worker.Upsample = -1 }},
		{"no timeout", func(c *Config) { c.Worker.Timeout = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"empty table", func(c *Config) { c.TablePath = "" }},
		{"no script", func(c *Config) { c.Worker.Script = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
	ok := base()
	if err := ok.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}
