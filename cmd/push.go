package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/andresmejia3/facelookup/internal/utils"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Mirror the embedding table and people file into PostgreSQL",
	Long:  "Replaces the enrolled faces and people stored in the database with the local files, so recognize and identify can run with --source db.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPush(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(ctx context.Context) error {
	// Unlike recognition, pushing requires an existing table
	table, err := embeddings.Load(cfg.TablePath)
	if err != nil {
		utils.ShowError("Failed to load embedding table", err, nil)
		return err
	}
	dir, found, err := people.LoadOrEmpty(cfg.PeoplePath)
	if err != nil {
		utils.ShowError("Failed to load people file", err, nil)
		return err
	}
	if !found {
		fmt.Fprintf(os.Stderr, "⚠️  %s not found, pushing faces without attributes\n", cfg.PeoplePath)
	}

	s, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Writing embeddings...")
	if err := s.ReplaceTable(ctx, table); err != nil {
		utils.ShowError("Failed to store embeddings", err, nil)
		return err
	}
	if err := s.ReplacePeople(ctx, dir); err != nil {
		utils.ShowError("Failed to store people", err, nil)
		return err
	}

	fmt.Printf("✅ Pushed %d faces for %d people and %d attribute records\n", table.Len(), len(table.Identities()), len(dir))
	return nil
}
