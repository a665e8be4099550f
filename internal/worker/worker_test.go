package worker

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// writeFace appends one face record in the worker's wire format.
func writeFace(payload *bytes.Buffer, box [4]int32, vec []float64) {
	binary.Write(payload, binary.BigEndian, box)
	binary.Write(payload, binary.BigEndian, uint32(len(vec)))
	binary.Write(payload, binary.BigEndian, vec)
}

// frame wraps a payload with the length header the worker writes on FD 3.
func frame(payload []byte) *MockCloser {
	m := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(m, binary.BigEndian, uint32(len(payload)))
	m.Write(payload)
	return m
}

func TestProcessFrame(t *testing.T) {
	// stdinMock simulates the pipe TO Python (we write to it)
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}

	payload := new(bytes.Buffer)
	payload.WriteByte(statusOK)
	binary.Write(payload, binary.BigEndian, uint32(2)) // 2 Faces

	vecA := make([]float64, 128)
	vecA[0] = 0.5
	vecB := make([]float64, 128)
	vecB[127] = -0.123456789012345
	writeFace(payload, [4]int32{10, 40, 50, 5}, vecA)
	writeFace(payload, [4]int32{100, 180, 160, 120}, vecB)

	w := &PythonWorker{
		ID:       1,
		Stdin:    stdinMock,
		DataPipe: frame(payload.Bytes()),
		// Cmd is nil because we aren't testing process management, just the protocol
	}

	inputFrame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := w.ProcessFrame(inputFrame)
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	// Verify Go sent the correct data TO Python
	sentData := stdinMock.Bytes()
	if len(sentData) != 4+len(inputFrame) {
		t.Errorf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sentData))
	}
	if binary.BigEndian.Uint32(sentData[:4]) != uint32(len(inputFrame)) {
		t.Errorf("Wrong length header: %X", sentData[:4])
	}

	if len(faces) != 2 {
		t.Fatalf("Expected 2 faces, got %d", len(faces))
	}
	if math.Abs(faces[0].Vec[0]-0.5) > 1e-12 {
		t.Errorf("Expected vector[0] approx 0.5, got %f", faces[0].Vec[0])
	}
	// float64 on the wire is lossless
	if faces[1].Vec[127] != vecB[127] {
		t.Errorf("Expected %v, got %v", vecB[127], faces[1].Vec[127])
	}
	if got := faces[1].Loc; got[0] != 100 || got[1] != 180 || got[2] != 160 || got[3] != 120 {
		t.Errorf("Unexpected location %v", got)
	}
	if faces[0].Width() != 35 || faces[0].Height() != 40 {
		t.Errorf("Unexpected box size %dx%d", faces[0].Width(), faces[0].Height())
	}
}

func TestProcessFrame_NoFaces(t *testing.T) {
	payload := []byte{statusOK, 0, 0, 0, 0}
	w := &PythonWorker{Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: frame(payload)}

	faces, err := w.ProcessFrame([]byte("frame"))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no faces, got %d", len(faces))
	}
}

func TestProcessFrame_Error(t *testing.T) {
	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(statusError)

	errMsg := "cannot identify image file"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)

	w := &PythonWorker{
		ID:       1,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: frame(payload.Bytes()),
	}

	_, err := w.ProcessFrame([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
	if !IsRemote(err) {
		t.Error("Expected a RemoteError")
	}
}

func TestProcessFrame_CrashedWorker(t *testing.T) {
	// Nothing on the data pipe: the process died before answering
	w := &PythonWorker{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}

	_, err := w.ProcessFrame([]byte("frame"))
	if err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
	if IsRemote(err) {
		t.Error("A dead pipe must not look like a per-frame error")
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"Empty", nil},
		{"Unknown status", []byte{7}},
		{"Truncated count", []byte{statusOK, 0, 0}},
		{"Truncated face", []byte{statusOK, 0, 0, 0, 1, 0, 0, 0, 10}},
		{"Zero dimension", append([]byte{statusOK, 0, 0, 0, 1}, make([]byte, 16+4)...)},
		{"Implausible count", []byte{statusOK, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"Error length beyond payload", []byte{statusError, 0xFF, 0xFF, 0xFF, 0xF0, 'o', 'o', 'p', 's'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeResponse(tt.payload); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
