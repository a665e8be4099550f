// Package embeddings holds the enrollment output: face embeddings and the
// identity label each one belongs to, persisted as a single JSON document.
package embeddings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const formatVersion = 1

var (
	// ErrMismatchedTable means the file's embeddings and labels have different lengths.
	ErrMismatchedTable = errors.New("embedding table has mismatched embeddings and labels")
	// ErrUnsupportedVersion means the file was written by an incompatible build.
	ErrUnsupportedVersion = errors.New("unsupported embedding table version")
)

// Table is an ordered list of (embedding, label) pairs stored as two parallel slices.
// Index i of Embeddings and Labels always refers to the same entry.
type Table struct {
	Embeddings [][]float64
	Labels     []string
}

type fileFormat struct {
	Version    int         `json:"version"`
	Embeddings [][]float64 `json:"embeddings"`
	Labels     []string    `json:"labels"`
}

// Add appends one entry. The embedding is copied so later changes by the caller don't leak in.
func (t *Table) Add(vec []float64, label string) {
	t.Embeddings = append(t.Embeddings, append([]float64(nil), vec...))
	t.Labels = append(t.Labels, label)
}

// Len is the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Labels)
}

// Counts returns the number of entries per label.
func (t *Table) Counts() map[string]int {
	counts := make(map[string]int)
	if t == nil {
		return counts
	}
	for _, l := range t.Labels {
		counts[l]++
	}
	return counts
}

// Identities returns the distinct labels, sorted.
func (t *Table) Identities() []string {
	counts := t.Counts()
	ids := make([]string, 0, len(counts))
	for l := range counts {
		ids = append(ids, l)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks the parallel-slice invariant.
func (t *Table) Validate() error {
	if len(t.Embeddings) != len(t.Labels) {
		return fmt.Errorf("%w: %d embeddings, %d labels", ErrMismatchedTable, len(t.Embeddings), len(t.Labels))
	}
	return nil
}

// Save writes the table to path, creating the parent directory if needed.
// The file is replaced atomically so a crashed enrollment never leaves half a table behind.
func Save(path string, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	doc := fileFormat{Version: formatVersion, Embeddings: t.Embeddings, Labels: t.Labels}
	if doc.Embeddings == nil {
		doc.Embeddings = [][]float64{}
		doc.Labels = []string{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode table: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".table-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a table written by Save.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode table %s: %w", path, err)
	}
	if doc.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	t := &Table{Embeddings: doc.Embeddings, Labels: doc.Labels}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadOrEmpty is Load, except a missing file yields an empty table and found=false.
// Recognition starts with an empty table rather than failing when nothing was enrolled yet.
func LoadOrEmpty(path string) (t *Table, found bool, err error) {
	t, err = Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Table{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}
