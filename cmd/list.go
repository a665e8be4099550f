package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/andresmejia3/facelookup/internal/utils"
	"github.com/spf13/cobra"
)

var listSource string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled people with their photo counts and attributes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateSource(listSource); err != nil {
			return err
		}
		return runList(cmd.Context())
	},
}

func init() {
	listCmd.Flags().StringVar(&listSource, "source", sourceFile, "Where to list from: file or db")
	rootCmd.AddCommand(listCmd)
}

// identityRow is one line of the listing.
type identityRow struct {
	Label  string
	Count  int
	Record people.Record
}

func runList(ctx context.Context) error {
	var rows []identityRow
	var err error
	if listSource == sourceDB {
		rows, err = listFromDB(ctx)
	} else {
		rows, err = listFromFile(cfg.TablePath, cfg.PeoplePath)
	}
	if err != nil {
		utils.ShowError("Failed to list identities", err, nil)
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}
	writeIdentities(os.Stdout, rows)
	return nil
}

func listFromFile(tablePath, peoplePath string) ([]identityRow, error) {
	table, found, err := embeddings.LoadOrEmpty(tablePath)
	if err != nil {
		return nil, err
	}
	if found {
		if digest, err := utils.FileDigest(tablePath); err == nil {
			fmt.Fprintf(os.Stderr, "📄 %s (sha256 %s, %d faces)\n", tablePath, digest, table.Len())
		}
	}
	dir, _, err := people.LoadOrEmpty(peoplePath)
	if err != nil {
		return nil, err
	}

	counts := table.Counts()
	rows := make([]identityRow, 0, len(counts))
	for _, label := range table.Identities() {
		rec, _ := dir.Lookup(label)
		rows = append(rows, identityRow{Label: label, Count: counts[label], Record: rec})
	}
	return rows, nil
}

func listFromDB(ctx context.Context) ([]identityRow, error) {
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := s.LoadPeople(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]identityRow, 0, len(ids))
	for _, id := range ids {
		rec, _ := dir.Lookup(id.Label)
		rows = append(rows, identityRow{Label: id.Label, Count: id.Count, Record: rec})
	}
	return rows, nil
}

func writeIdentities(out io.Writer, rows []identityRow) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tPHOTOS\tAGE\tJOB\tLOCATION\tE-MAIL")
	fmt.Fprintln(w, "----\t------\t---\t---\t--------\t------")

	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", r.Label, r.Count, r.Record.Age, r.Record.Job, r.Record.Location, r.Record.Email)
	}
	w.Flush()
}
