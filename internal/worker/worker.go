package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/facelookup/internal/types"
	"github.com/andresmejia3/facelookup/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1

	maxResponseBytes = 64 * 1024 * 1024
	maxFaces         = 1024
	maxDim           = 4096
)

// Config controls how the Python encoder is launched.
type Config struct {
	Python      string        // interpreter, e.g. python3
	Script      string        // path to worker.py
	Model       string        // face_recognition detector: hog or cnn
	Upsample    int           // number_of_times_to_upsample
	ReadTimeout time.Duration // per-frame response deadline, 0 disables it
}

// RemoteError is an error raised inside the Python process for one frame.
// The worker is still healthy after returning it.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return "python worker error: " + e.Msg }

// IsRemote reports whether err came from the Python side rather than the pipe.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	timeout  time.Duration
}

func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Model == "" {
		cfg.Model = "hog"
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--model", cfg.Model,
		"--upsample", strconv.Itoa(cfg.Upsample),
	)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	// os.Pipe files support deadlines; in-memory pipes used by tests don't.
	if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok && w.timeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.timeout))
		defer d.SetReadDeadline(time.Time{})
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponseBytes {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends an encoded image and decodes every face found in it.
// Response: [Status:0] [NumFaces] then per face [Box:4xint32] [Dim] [Vec:Dim x float64],
// or [Status:1] [MsgLen] [Msg].
func (w *PythonWorker) ProcessFrame(data []byte) ([]types.FaceResult, error) {
	resp, err := w.Communicate(data)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp []byte) ([]types.FaceResult, error) {
	if len(resp) == 0 {
		return nil, errors.New("empty response from worker")
	}
	r := bytes.NewReader(resp[1:])

	switch resp[0] {
	case statusOK:
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		if msgLen > uint32(r.Len()) {
			return nil, fmt.Errorf("malformed error response: message length %d exceeds payload", msgLen)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed error response: %w", err)
		}
		return nil, &RemoteError{Msg: string(msg)}
	default:
		return nil, fmt.Errorf("unknown response status %d", resp[0])
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}
	if numFaces > maxFaces {
		return nil, fmt.Errorf("implausible face count %d", numFaces)
	}

	faces := make([]types.FaceResult, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: malformed box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: malformed dimension: %w", i, err)
		}
		if dim == 0 || dim > maxDim {
			return nil, fmt.Errorf("face %d: implausible dimension %d", i, dim)
		}
		vec := make([]float64, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("face %d: malformed vector: %w", i, err)
		}
		faces = append(faces, types.FaceResult{
			Loc: []int{int(box[0]), int(box[1]), int(box[2]), int(box[3])},
			Vec: vec,
		})
	}
	return faces, nil
}

// Close shuts the worker down: closing stdin makes the Python loop exit.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
