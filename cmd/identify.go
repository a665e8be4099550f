package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facelookup/internal/overlay"
	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/andresmejia3/facelookup/internal/recognize"
	"github.com/andresmejia3/facelookup/internal/types"
	"github.com/andresmejia3/facelookup/internal/utils"
	"github.com/spf13/cobra"
)

var (
	identifySource   string
	identifyAnnotate string
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Match every face in a still image against the enrolled people",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateSource(identifySource); err != nil {
			return err
		}
		return runIdentify(cmd.Context(), args[0])
	},
}

func init() {
	identifyCmd.Flags().StringVar(&identifySource, "source", sourceFile, "Where to match against: file (exact scan) or db (pgvector query)")
	identifyCmd.Flags().StringVarP(&identifyAnnotate, "annotate", "o", "", "Write a copy of the image with boxes and names to this path")
	rootCmd.AddCommand(identifyCmd)
}

// matchFunc resolves one embedding to a result.
type matchFunc func(ctx context.Context, vec []float64) (recognize.Result, error)

func runIdentify(ctx context.Context, imagePath string) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	match, err := newMatcher(ctx, identifySource)
	if err != nil {
		utils.ShowError("Failed to load enrolled faces", err, nil)
		return err
	}

	w, err := startWorker(ctx)
	if err != nil {
		utils.ShowError("Failed to start face engine", err, nil)
		return err
	}
	defer w.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	faces, err := w.ProcessFrame(imgData)
	if err != nil {
		utils.ShowError("Face engine failed", err, w.Cmd)
		return err
	}
	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	dets, err := matchAll(ctx, faces, match)
	if err != nil {
		utils.ShowError("Matching failed", err, nil)
		return err
	}
	writeMatches(os.Stdout, dets)

	if identifyAnnotate != "" {
		out, err := overlay.Annotate(imgData, dets)
		if err != nil {
			utils.ShowError("Failed to annotate image", err, nil)
			return err
		}
		if err := os.WriteFile(identifyAnnotate, out, 0644); err != nil {
			utils.ShowError("Failed to write annotated image", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", identifyAnnotate)
	}
	return nil
}

// newMatcher builds the matcher for source. The db matcher runs the nearest-neighbour
// query in PostgreSQL with the same nearest-then-threshold rule.
func newMatcher(ctx context.Context, source string) (matchFunc, error) {
	if source != sourceDB {
		session, err := loadSession(ctx, source)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, vec []float64) (recognize.Result, error) {
			return session.Match(vec), nil
		}, nil
	}

	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := s.LoadPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load people from database: %w", err)
	}
	threshold := cfg.Threshold
	return func(ctx context.Context, vec []float64) (recognize.Result, error) {
		label, dist, ok, err := s.FindClosest(ctx, vec, threshold)
		if err != nil {
			return recognize.Result{}, err
		}
		if !ok {
			return recognize.Result{Label: people.Unknown, Record: people.UnknownRecord(), Distance: dist}, nil
		}
		rec, _ := dir.Lookup(label)
		return recognize.Result{Label: label, Record: rec, Distance: dist, Matched: true}, nil
	}, nil
}

func matchAll(ctx context.Context, faces []types.FaceResult, match matchFunc) ([]recognize.Detection, error) {
	dets := make([]recognize.Detection, 0, len(faces))
	for _, f := range faces {
		r, err := match(ctx, f.Vec)
		if err != nil {
			return nil, err
		}
		dets = append(dets, recognize.Detection{Loc: f.Loc, Result: r})
	}
	return dets, nil
}

func writeMatches(out io.Writer, dets []recognize.Detection) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tDISTANCE\tAGE\tJOB\tLOCATION\tE-MAIL\tBOX")
	fmt.Fprintln(w, "-\t----\t--------\t---\t---\t--------\t------\t---")
	for i, d := range dets {
		r := d.Result
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			i+1, r.Label, formatDistance(r), r.Age, r.Job, r.Location, r.Email, d.Loc)
	}
	w.Flush()
}
