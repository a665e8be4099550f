package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facelookup/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetTable     bool
	resetSnapshots bool
	resetDB        bool
	resetYes       bool
	resetSnapDir   string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Embedding table, Snapshots, Database)",
	Long:  "Clears enrolled data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := resolveResetTargets(resetTable, resetSnapshots, resetDB, resetSnapDir)
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		ask := func(prompt string) bool { return resetYes || confirm(os.Stdout, reader, prompt) }

		if targets.table {
			if ask(fmt.Sprintf("⚠️  Are you sure you want to delete the embedding table %s?", cfg.TablePath)) {
				fmt.Println("🗑️  Removing embedding table...")
				removePath(cfg.TablePath)
			}
		}

		if targets.snapshots {
			if ask(fmt.Sprintf("⚠️  Are you sure you want to delete all snapshots under %s?", resetSnapDir)) {
				fmt.Println("🗑️  Clearing snapshots...")
				removePath(resetSnapDir)
			}
		}

		if targets.db {
			if ask("⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				s, err := openStore(cmd.Context())
				if err != nil {
					utils.ShowError("Database unavailable", err, nil)
					return err
				}
				if err := s.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		fmt.Println("✨ Reset complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetTable, "clear-table", false, "Delete the embedding table file")
	resetCmd.Flags().BoolVar(&resetSnapshots, "clear-snapshots", false, "Delete saved snapshots")
	resetCmd.Flags().BoolVar(&resetDB, "clear-db", false, "Drop the PostgreSQL tables")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().StringVar(&resetSnapDir, "snapshot-dir", "", "Snapshot directory to clear (the --snapshot-dir given to recognize)")
	rootCmd.AddCommand(resetCmd)
}

type resetTargets struct {
	table     bool
	snapshots bool
	db        bool
}

// resolveResetTargets applies "no flags = everything". Snapshots are only part of
// everything when a snapshot directory was named, since recognize has no default one.
func resolveResetTargets(table, snapshots, db bool, snapDir string) (resetTargets, error) {
	if snapshots && snapDir == "" {
		return resetTargets{}, errors.New("--clear-snapshots requires --snapshot-dir")
	}
	if !table && !snapshots && !db {
		return resetTargets{table: true, snapshots: snapDir != "", db: true}, nil
	}
	return resetTargets{table: table, snapshots: snapshots, db: db}, nil
}

func confirm(w io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
