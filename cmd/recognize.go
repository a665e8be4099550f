package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facelookup/internal/capture"
	"github.com/andresmejia3/facelookup/internal/logger"
	"github.com/andresmejia3/facelookup/internal/overlay"
	"github.com/andresmejia3/facelookup/internal/recognize"
	"github.com/andresmejia3/facelookup/internal/tui"
	"github.com/andresmejia3/facelookup/internal/utils"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	uiConsole = "console"
	uiTUI     = "tui"
)

// RecognizeOptions holds the flags of the recognize command.
type RecognizeOptions struct {
	UI            string
	Source        string
	InputPath     string
	NthFrame      int
	SnapshotDir   string
	SnapshotEvery int
}

var recognizeOpts RecognizeOptions

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize enrolled people from a camera or video",
	Long: `Pulls frames from the capture device (or --input) one at a time, matches every face
against the embedding table and shows name, age, job, location and e-mail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := recognizeOpts.validate(); err != nil {
			return err
		}
		return runRecognize(cmd.Context(), recognizeOpts)
	},
}

func init() {
	f := recognizeCmd.Flags()
	f.StringVar(&recognizeOpts.UI, "ui", uiConsole, "Output mode: console or tui")
	f.StringVar(&recognizeOpts.Source, "source", sourceFile, "Where to load enrolled faces from: file or db")
	f.StringVarP(&recognizeOpts.InputPath, "input", "i", "", "Video file or URL to read instead of the capture device")
	f.IntVarP(&recognizeOpts.NthFrame, "nth-frame", "n", 1, "Only match every Nth frame")
	f.StringVar(&recognizeOpts.SnapshotDir, "snapshot-dir", "", "Save annotated frames under this directory")
	f.IntVar(&recognizeOpts.SnapshotEvery, "snapshot-every", 30, "Minimum frames between two snapshots")
	f.String("format", "v4l2", "ffmpeg input format of the capture device (v4l2, avfoundation, dshow)")
	f.String("device", "/dev/video0", "Capture device")
	rootCmd.AddCommand(recognizeCmd)
}

func (o RecognizeOptions) validate() error {
	if o.UI != uiConsole && o.UI != uiTUI {
		return fmt.Errorf("invalid --ui %q: must be %s or %s", o.UI, uiConsole, uiTUI)
	}
	if err := validateSource(o.Source); err != nil {
		return err
	}
	if o.NthFrame < 1 {
		return fmt.Errorf("--nth-frame must be >= 1, got %d", o.NthFrame)
	}
	if o.SnapshotEvery < 0 {
		return fmt.Errorf("--snapshot-every must be >= 0, got %d", o.SnapshotEvery)
	}
	return nil
}

func runRecognize(ctx context.Context, opts RecognizeOptions) error {
	sessionID := uuid.NewString()[:8]
	log := logger.GetLogger().WithField("session", sessionID)

	session, err := loadSession(ctx, opts.Source)
	if err != nil {
		utils.ShowError("Failed to load enrolled faces", err, nil)
		return err
	}
	if !session.Loaded() {
		log.Warn("no enrolled faces, every face will be Unknown")
	}

	w, err := startWorker(ctx)
	if err != nil {
		utils.ShowError("Failed to start face engine", err, nil)
		return err
	}
	defer w.Close()

	format, input := cfg.Capture.Format, cfg.Capture.Device
	if opts.InputPath != "" {
		format, input = "", opts.InputPath
	}
	fmt.Fprintf(os.Stderr, "🎥 Opening %s...\n", input)
	src, err := capture.Open(ctx, format, input)
	if err != nil {
		utils.ShowError("Failed to open capture source", err, nil)
		return err
	}

	var snaps *overlay.Snapshots
	if opts.SnapshotDir != "" {
		snaps = &overlay.Snapshots{Dir: filepath.Join(opts.SnapshotDir, sessionID), Every: opts.SnapshotEvery}
	}

	loop := &recognize.Loop{
		Source:   src,
		Encoder:  w,
		Session:  session,
		NthFrame: opts.NthFrame,
		Log:      log,
	}

	if opts.UI == uiTUI {
		err = runDashboard(ctx, loop, snaps, sessionID, input, session.Threshold())
	} else {
		sink := &consoleSink{out: os.Stdout, snaps: snaps, log: log}
		err = loop.Run(ctx, sink.handle)
	}

	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "👋 Recognition stopped.")
		return nil
	case errors.Is(err, recognize.ErrCaptureFailed):
		utils.ShowError("Capture failed", err, src.Cmd())
	default:
		utils.ShowError("Face engine failed", err, w.Cmd)
	}
	return err
}

// runDashboard runs the loop on its own goroutine and feeds its frames to the TUI.
func runDashboard(ctx context.Context, loop *recognize.Loop, snaps *overlay.Snapshots, sessionID, input string, threshold float64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Log lines would tear the alt screen
	l := logger.GetLogger()
	prevOut := l.Out
	l.SetOutput(io.Discard)
	defer l.SetOutput(prevOut)

	p := tea.NewProgram(tui.NewDashboard(sessionID, input, threshold, cancel), tea.WithAltScreen(), tea.WithContext(ctx))

	loopDone := make(chan error, 1)
	go func() {
		err := loop.Run(ctx, func(f recognize.Frame) error {
			if _, err := snaps.Maybe(f); err != nil {
				loop.Log.WithError(err).Warn("failed to save snapshot")
			}
			p.Send(tui.FrameMsg{Frame: f})
			return nil
		})
		p.Send(tui.SessionEndedMsg{Err: err})
		loopDone <- err
	}()

	_, runErr := p.Run()
	cancel()
	// Wait for the source to be released before returning
	loopErr := <-loopDone

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return loopErr
}

// consoleSink prints a line per face whenever the set of labels in view changes.
type consoleSink struct {
	out   io.Writer
	snaps *overlay.Snapshots
	log   logrus.FieldLogger
	last  string
	seen  bool
}

func (c *consoleSink) handle(f recognize.Frame) error {
	if path, err := c.snaps.Maybe(f); err != nil {
		c.log.WithError(err).Warn("failed to save snapshot")
	} else if path != "" {
		c.log.WithField("path", path).Debug("snapshot saved")
	}

	key := labelsKey(f.Detections)
	if c.seen && key == c.last {
		return nil
	}
	c.seen, c.last = true, key

	if len(f.Detections) == 0 {
		fmt.Fprintf(c.out, "[frame %d] no faces in view\n", f.Index)
		return nil
	}
	for _, d := range f.Detections {
		r := d.Result
		fmt.Fprintf(c.out, "[frame %d] Name: %s | Age: %s | Job: %s | Location: %s | E-mail: %s | distance %s\n",
			f.Index, r.Label, r.Age, r.Job, r.Location, r.Email, formatDistance(r))
	}
	return nil
}

func labelsKey(dets []recognize.Detection) string {
	labels := make([]string, len(dets))
	for i, d := range dets {
		labels[i] = d.Result.Label
	}
	return strings.Join(labels, "\x00")
}

func formatDistance(r recognize.Result) string {
	if math.IsInf(r.Distance, 1) {
		return "-"
	}
	return fmt.Sprintf("%.3f", r.Distance)
}
