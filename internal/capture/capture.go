// Package capture turns a camera or video into a pull-based stream of JPEG frames.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/andresmejia3/facelookup/internal/utils"
)

const megabyte = 1024 * 1024

// ErrClosed is returned by Next after Close. A closed source cannot be restarted; open a new one.
var ErrClosed = errors.New("capture source closed")

// Source yields frames one at a time. Next blocks until a frame is available,
// returns io.EOF once the input is exhausted, and ErrClosed after Close.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// FFmpegSource reads MJPEG frames from an ffmpeg child process.
type FFmpegSource struct {
	cmd     *utils.SafeCommand
	out     io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	closed  bool
	waited  bool
}

// Open starts ffmpeg on a capture device (format "v4l2", "avfoundation", "dshow", ...)
// or, with an empty format, on a media file or URL.
// Cancelling ctx kills ffmpeg, which also unblocks a pending Next.
func Open(ctx context.Context, format, input string) (*FFmpegSource, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := utils.NewFFmpegCapture(ctx, format, input)

	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	s := newSource(out)
	s.cmd = cmd
	s.cancel = cancel
	return s, nil
}

func newSource(out io.ReadCloser) *FFmpegSource {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &FFmpegSource{out: out, scanner: scanner, cancel: func() {}}
}

// Cmd exposes the child process so callers can print its logs on failure.
func (s *FFmpegSource) Cmd() *utils.SafeCommand { return s.cmd }

// Next returns the next frame. The returned slice is owned by the caller.
func (s *FFmpegSource) Next(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.scanner.Scan() {
		return append([]byte(nil), s.scanner.Bytes()...), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("frame scanner failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg exited: %w", err)
	}
	return nil, io.EOF
}

// Close stops ffmpeg and releases the pipe. Safe to call more than once.
func (s *FFmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.out.Close()
	// ffmpeg is killed, so its exit status carries no information
	_ = s.wait()
	return nil
}

func (s *FFmpegSource) wait() error {
	if s.cmd == nil || s.waited {
		return nil
	}
	s.waited = true
	return s.cmd.Wait()
}
