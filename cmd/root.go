package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresmejia3/facelookup/internal/config"
	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/logger"
	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/andresmejia3/facelookup/internal/recognize"
	"github.com/andresmejia3/facelookup/internal/store"
	"github.com/andresmejia3/facelookup/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	sourceFile = "file"
	sourceDB   = "db"
)

var (
	// DB is opened lazily by the commands that need it
	DB *store.Store

	// cfg is loaded before any subcommand runs
	cfg     *config.Config
	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facelookup",
	Short:   "Enroll labeled face photos and recognize people from a camera",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := logger.SetLevel(c.Log.Level); err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "Config file (default: ./facelookup.yaml if present)")
	f.String("table", "data/face_encodings.json", "Embedding table file")
	f.String("people", "people.json", "Person attributes file (.json or .yaml)")
	f.Float64P("threshold", "t", recognize.DefaultThreshold, "Maximum distance for a match")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("db", "", "PostgreSQL connection string (default: postgres://localhost:5432/facelookup)")
	f.String("python", "python3", "Python interpreter for the face engine")
	f.String("worker-script", "python/worker.py", "Path to the face engine script")
	f.String("model", "hog", "Face detector model (hog or cnn)")
	f.Int("upsample", 1, "Times to upsample the image when looking for faces")
	f.Duration("worker-timeout", 30*time.Second, "Per-image timeout for the face engine")
}

// openStore connects to PostgreSQL on first use.
func openStore(ctx context.Context) (*store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	s, err := store.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

func workerConfig(c *config.Config) worker.Config {
	return worker.Config{
		Python:      c.Worker.Python,
		Script:      c.Worker.Script,
		Model:       c.Worker.Model,
		Upsample:    c.Worker.Upsample,
		ReadTimeout: c.Worker.Timeout,
	}
}

// startWorker launches the face engine. Callers must Close it.
func startWorker(ctx context.Context) (*worker.PythonWorker, error) {
	fmt.Fprintln(os.Stderr, "🚀 Starting face engine...")
	w, err := worker.NewPythonWorker(ctx, 0, workerConfig(cfg))
	if err != nil {
		return nil, err
	}
	return w, nil
}

func validateSource(source string) error {
	if source != sourceFile && source != sourceDB {
		return fmt.Errorf("invalid --source %q: must be %s or %s", source, sourceFile, sourceDB)
	}
	return nil
}

// loadFileSession reads the table and people files. Missing files yield empty state;
// unreadable or malformed files are errors.
func loadFileSession(tablePath, peoplePath string, threshold float64, log logrus.FieldLogger) (*recognize.Session, error) {
	table, found, err := embeddings.LoadOrEmpty(tablePath)
	if err != nil {
		return nil, err
	}
	if !found {
		log.WithField("path", tablePath).Warn("embedding table not found, every face will be Unknown")
	}

	dir, found, err := people.LoadOrEmpty(peoplePath)
	if err != nil {
		return nil, err
	}
	if !found {
		log.WithField("path", peoplePath).Warn("people file not found, attributes will be Unknown")
	}

	return recognize.NewSession(table, dir, threshold), nil
}

// loadDBSession reads the table and people directory pushed to PostgreSQL.
func loadDBSession(ctx context.Context, threshold float64) (*recognize.Session, error) {
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	table, err := s.LoadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings from database: %w", err)
	}
	dir, err := s.LoadPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load people from database: %w", err)
	}
	return recognize.NewSession(table, dir, threshold), nil
}

func loadSession(ctx context.Context, source string) (*recognize.Session, error) {
	if source == sourceDB {
		return loadDBSession(ctx, cfg.Threshold)
	}
	return loadFileSession(cfg.TablePath, cfg.PeoplePath, cfg.Threshold, logger.GetLogger())
}
