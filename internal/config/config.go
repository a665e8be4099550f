// Package config loads facelookup settings from defaults, an optional YAML file,
// a .env file, FACELOOKUP_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FACELOOKUP_WORKER_MODEL.
const EnvPrefix = "FACELOOKUP"

// DefaultDatabaseURL is used when neither database.url nor POSTGRES_HOST is set.
const DefaultDatabaseURL = "postgres://localhost:5432/facelookup"

type Config struct {
	TablePath  string         `mapstructure:"table_path"`
	PeoplePath string         `mapstructure:"people_path"`
	Threshold  float64        `mapstructure:"threshold"`
	Log        LogConfig      `mapstructure:"log"`
	Worker     WorkerConfig   `mapstructure:"worker"`
	Capture    CaptureConfig  `mapstructure:"capture"`
	Database   DatabaseConfig `mapstructure:"database"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type WorkerConfig struct {
	Python   string        `mapstructure:"python"`
	Script   string        `mapstructure:"script"`
	Model    string        `mapstructure:"model"`
	Upsample int           `mapstructure:"upsample"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CaptureConfig struct {
	Format string `mapstructure:"format"`
	Device string `mapstructure:"device"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

var defaults = map[string]any{
	"table_path":      "data/face_encodings.json",
	"people_path":     "people.json",
	"threshold":       0.6,
	"log.level":       "info",
	"worker.python":   "python3",
	"worker.script":   "python/worker.py",
	"worker.model":    "hog",
	"worker.upsample": 1,
	"worker.timeout":  "30s",
	"capture.format":  "v4l2",
	"capture.device":  "/dev/video0",
	"database.url":    "",
}

// FlagNames maps config keys to the command-line flags that override them.
var FlagNames = map[string]string{
	"table_path":      "table",
	"people_path":     "people",
	"threshold":       "threshold",
	"log.level":       "log-level",
	"worker.python":   "python",
	"worker.script":   "worker-script",
	"worker.model":    "model",
	"worker.upsample": "upsample",
	"worker.timeout":  "worker-timeout",
	"capture.format":  "format",
	"capture.device":  "device",
	"database.url":    "db",
}

// Load builds a Config. configFile may be empty, in which case ./facelookup.yaml is
// read if present. Only flags present in flags (and explicitly set) override other sources.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("facelookup")
	}
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// A missing .env is normal; existing environment variables win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("unable to load .env file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range FlagNames {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = databaseURLFromEnv()
	}
	return &cfg, nil
}

// databaseURLFromEnv builds a connection string from the POSTGRES_* variables used by docker-compose.
func databaseURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return DefaultDatabaseURL
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
}

// Validate rejects settings the commands cannot run with.
func (c *Config) Validate() error {
	if c.TablePath == "" {
		return errors.New("table_path must not be empty")
	}
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("threshold must be a positive number, got %v", c.Threshold)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.Worker.Model {
	case "hog", "cnn":
	default:
		return fmt.Errorf("worker model must be hog or cnn, got %q", c.Worker.Model)
	}
	if c.Worker.Script == "" {
		return errors.New("worker script must not be empty")
	}
	if c.Worker.Upsample < 0 {
		return fmt.Errorf("worker upsample must be >= 0, got %d", c.Worker.Upsample)
	}
	if c.Worker.Timeout <= 0 {
		return fmt.Errorf("worker timeout must be positive, got %v", c.Worker.Timeout)
	}
	return nil
}
