// Package people loads the attribute file that maps an identity label to
// the details shown next to a recognized face.
package people

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is shown for any missing label or attribute.
const Unknown = "Unknown"

// Record holds the displayable attributes of one person.
type Record struct {
	Age      string
	Job      string
	Location string
	Email    string
}

// UnknownRecord has every field set to Unknown.
func UnknownRecord() Record {
	return Record{Age: Unknown, Job: Unknown, Location: Unknown, Email: Unknown}
}

// Directory is a read-only label -> Record lookup.
type Directory map[string]Record

// Lookup returns the record for label with missing fields defaulted to Unknown.
// ok is false when the label is not in the directory at all.
func (d Directory) Lookup(label string) (Record, bool) {
	rec, ok := d[label]
	if !ok {
		return UnknownRecord(), false
	}
	return rec, true
}

// Load reads a people file. The format follows the extension: .yaml/.yml is YAML, anything else JSON.
func Load(path string) (Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse people file %s: %w", path, err)
	}

	dir := make(Directory, len(raw))
	for label, attrs := range raw {
		dir[label] = fromAttrs(attrs)
	}
	return dir, nil
}

// LoadOrEmpty is Load, except a missing file yields an empty directory and found=false.
func LoadOrEmpty(path string) (dir Directory, found bool, err error) {
	dir, err = Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Directory{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return dir, true, nil
}

// fromAttrs picks the known keys; each one defaults independently.
func fromAttrs(attrs map[string]any) Record {
	return Record{
		Age:      pick(attrs, "age"),
		Job:      pick(attrs, "job"),
		Location: pick(attrs, "location"),
		Email:    pick(attrs, "E-mail", "email"),
	}
}

func pick(attrs map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return Unknown
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
