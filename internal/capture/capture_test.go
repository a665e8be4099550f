package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type nopCloser struct {
	io.Reader
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestNextYieldsFramesThenEOF(t *testing.T) {
	f1 := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	f2 := []byte{0xFF, 0xD8, 0x02, 0x02, 0xFF, 0xD9}
	stream := append(append([]byte{0x00}, f1...), f2...)

	src := newSource(&nopCloser{Reader: bytes.NewReader(stream)})
	ctx := context.Background()

	got1, err := src.Next(ctx)
	if err != nil || !bytes.Equal(got1, f1) {
		t.Fatalf("first frame = %X, %v", got1, err)
	}
	got2, err := src.Next(ctx)
	if err != nil || !bytes.Equal(got2, f2) {
		t.Fatalf("second frame = %X, %v", got2, err)
	}
	// Frames are copies, not views into the scanner buffer
	if !bytes.Equal(got1, f1) {
		t.Error("first frame was overwritten by the second read")
	}

	if _, err := src.Next(ctx); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestCloseIsFinal(t *testing.T) {
	pipe := &nopCloser{Reader: bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xD9})}
	src := newSource(pipe)

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !pipe.closed {
		t.Error("Expected the pipe to be closed")
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestNextHonoursCancelledContext(t *testing.T) {
	src := newSource(&nopCloser{Reader: bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xD9})})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
