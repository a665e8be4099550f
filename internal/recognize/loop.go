package recognize

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/facelookup/internal/capture"
	"github.com/andresmejia3/facelookup/internal/types"
	"github.com/andresmejia3/facelookup/internal/worker"
	"github.com/sirupsen/logrus"
)

// ErrCaptureFailed wraps any error from the frame source other than a clean end of input.
var ErrCaptureFailed = errors.New("capture source failed")

// Encoder turns an encoded image into detected faces.
type Encoder interface {
	ProcessFrame(data []byte) ([]types.FaceResult, error)
}

// Frame is everything produced for one processed frame.
type Frame struct {
	Index      int // 1-based position in the capture stream
	Image      []byte
	Detections []Detection
}

// Sink receives processed frames. Returning an error stops the loop.
type Sink func(Frame) error

// Loop pulls frames from Source one at a time and matches every face in them.
type Loop struct {
	Source   capture.Source
	Encoder  Encoder
	Session  *Session
	NthFrame int // only every Nth frame is matched; <= 1 means all
	Log      logrus.FieldLogger
}

// Run processes frames until the source ends, ctx is cancelled or sink fails.
// The source is closed on every return path. End of input and cancellation return nil.
func (l *Loop) Run(ctx context.Context, sink Sink) error {
	defer l.Source.Close()

	nth := l.NthFrame
	if nth < 1 {
		nth = 1
	}
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	index := 0
	for {
		data, err := l.Source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.WithField("frames", index).Info("capture source exhausted")
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
			}
		}
		index++
		if index%nth != 0 {
			continue
		}

		faces, err := l.Encoder.ProcessFrame(data)
		if err != nil {
			// Cancellation kills the engine mid-frame; that is a stop, not a failure
			if ctx.Err() != nil {
				return nil
			}
			if !worker.IsRemote(err) {
				return fmt.Errorf("face encoder failed on frame %d: %w", index, err)
			}
			// The detector choked on this frame only; carry on with no faces
			log.WithError(err).WithField("frame", index).Warn("skipping frame")
			faces = nil
		}

		frame := Frame{Index: index, Image: data, Detections: l.Session.MatchFaces(faces)}
		if err := sink(frame); err != nil {
			return err
		}
	}
}
