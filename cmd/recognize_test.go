package cmd

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/andresmejia3/facelookup/internal/recognize"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func det(label string, dist float64) recognize.Detection {
	rec := people.UnknownRecord()
	if label == "Alice" {
		rec = people.Record{Age: "30", Job: "Engineer", Location: "Lisbon", Email: "alice@example.com"}
	}
	return recognize.Detection{
		Loc:    []int{0, 10, 10, 0},
		Result: recognize.Result{Label: label, Record: rec, Distance: dist, Matched: label != people.Unknown},
	}
}

func TestConsoleSink_PrintsOnChange(t *testing.T) {
	var out bytes.Buffer
	sink := &consoleSink{out: &out, log: quietLogger()}

	frames := []recognize.Frame{
		{Index: 1},
		{Index: 2},
		{Index: 3, Detections: []recognize.Detection{det("Alice", 0.31)}},
		{Index: 4, Detections: []recognize.Detection{det("Alice", 0.29)}},
		{Index: 5, Detections: []recognize.Detection{det("Alice", 0.3), det(people.Unknown, math.Inf(1))}},
	}
	for _, f := range frames {
		if err := sink.handle(f); err != nil {
			t.Fatalf("frame %d: %v", f.Index, err)
		}
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// frame 1 (empty), frame 3 (Alice), frame 5 (Alice + Unknown)
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "[frame 1] no faces") {
		t.Errorf("Unexpected first line: %q", lines[0])
	}
	want := "[frame 3] Name: Alice | Age: 30 | Job: Engineer | Location: Lisbon | E-mail: alice@example.com | distance 0.310"
	if lines[1] != want {
		t.Errorf("Got  %q\nwant %q", lines[1], want)
	}
	if !strings.HasSuffix(lines[3], "Name: Unknown | Age: Unknown | Job: Unknown | Location: Unknown | E-mail: Unknown | distance -") {
		t.Errorf("Unexpected unknown line: %q", lines[3])
	}
}

func TestRecognizeOptionsValidate(t *testing.T) {
	ok := RecognizeOptions{UI: uiConsole, Source: sourceFile, NthFrame: 1, SnapshotEvery: 30}
	if err := ok.validate(); err != nil {
		t.Fatalf("Expected valid options, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RecognizeOptions)
	}{
		{"bad ui", func(o *RecognizeOptions) { o.UI = "gui" }},
		{"bad source", func(o *RecognizeOptions) { o.Source = "s3" }},
		{"zero nth", func(o *RecognizeOptions) { o.NthFrame = 0 }},
		{"negative snapshot interval", func(o *RecognizeOptions) { o.SnapshotEvery = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ok
			tt.mutate(&o)
			if err := o.validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestLabelsKey(t *testing.T) {
	a := labelsKey([]recognize.Detection{det("Alice", 0), det("Bob", 0)})
	b := labelsKey([]recognize.Detection{det("Alice Bob", 0)})
	if a == b {
		t.Error("Different label sets must not collide")
	}
	if labelsKey(nil) != "" {
		t.Error("Expected empty key for no detections")
	}
}
