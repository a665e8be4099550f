package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/enroll"
	"github.com/andresmejia3/facelookup/internal/logger"
	"github.com/andresmejia3/facelookup/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <photos_dir>",
	Short: "Build the embedding table from a directory of labeled photos",
	Long: `Every subdirectory of <photos_dir> is one person; its name becomes the label.
Each photo contributes the first face found in it. The previous table is replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, root string) error {
	log := logger.GetLogger()

	jobs, identities, err := enroll.Plan(root)
	if err != nil {
		utils.ShowError("Cannot read enrollment directory", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "📂 Found %d photos for %d people\n", len(jobs), identities)

	table := &embeddings.Table{}
	var report enroll.Report
	if len(jobs) > 0 {
		w, err := startWorker(ctx)
		if err != nil {
			utils.ShowError("Failed to start face engine", err, nil)
			return err
		}
		defer w.Close()

		bar := progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("🧬 Enrolling"),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
		)
		b := &enroll.Builder{
			Encoder: w,
			Log:     log,
			OnFile:  func(enroll.Job) { bar.Add(1) },
		}
		table, report, err = b.Build(ctx, jobs)
		bar.Finish()
		fmt.Fprintln(os.Stderr)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "🛑 Enrollment cancelled, table left unchanged.")
			return err
		}
		if err != nil {
			utils.ShowError("Enrollment aborted", err, w.Cmd)
			return err
		}
	}

	if err := embeddings.Save(cfg.TablePath, table); err != nil {
		utils.ShowError("Failed to save embedding table", err, nil)
		return err
	}

	printEnrollReport(os.Stdout, report, table, cfg.TablePath)
	return nil
}

func printEnrollReport(w io.Writer, r enroll.Report, table *embeddings.Table, path string) {
	fmt.Fprintf(w, "✅ Enrolled %d faces for %d people -> %s\n", table.Len(), len(table.Identities()), path)
	if r.NoFace > 0 {
		fmt.Fprintf(w, "   %d photos had no detectable face\n", r.NoFace)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(w, "   %d files were skipped (see warnings above)\n", r.Skipped)
	}
	if missing := r.Identities - len(table.Identities()); missing > 0 {
		fmt.Fprintf(w, "⚠️  %d people ended up with no enrolled face\n", missing)
	}
}
