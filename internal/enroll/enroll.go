// Package enroll builds an embedding table from a directory of labeled photos.
//
// The root holds one subdirectory per identity; every image inside it becomes
// one table entry holding the first face the encoder finds.
package enroll

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/types"
	"github.com/andresmejia3/facelookup/internal/worker"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Encoder turns an encoded image into detected faces.
type Encoder interface {
	ProcessFrame(data []byte) ([]types.FaceResult, error)
}

// Job is one photo waiting to be enrolled.
type Job struct {
	Identity string
	Path     string
}

// Report summarizes a run.
type Report struct {
	Identities int
	Files      int
	Enrolled   int
	Skipped    int // unreadable, undecodable or rejected by the encoder
	NoFace     int
}

// Builder runs enrollment. OnFile, if set, is called once per job after it is handled.
type Builder struct {
	Encoder Encoder
	Log     logrus.FieldLogger
	OnFile  func(Job)
}

// Plan lists the photos under root, sorted by identity then file name.
// Loose files at the root, nested directories and hidden entries are ignored.
func Plan(root string) ([]Job, int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read enrollment directory: %w", err)
	}

	var jobs []Job
	identities := 0
	for _, e := range entries {
		if !e.IsDir() || hidden(e.Name()) {
			continue
		}
		identities++

		dir := filepath.Join(root, e.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() || hidden(f.Name()) {
				continue
			}
			jobs = append(jobs, Job{Identity: e.Name(), Path: filepath.Join(dir, f.Name())})
		}
	}
	return jobs, identities, nil
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

// Build enrolls every job in order. Per-file failures are logged and skipped;
// only a dead encoder or a cancelled context stops the run.
func (b *Builder) Build(ctx context.Context, jobs []Job) (*embeddings.Table, Report, error) {
	log := b.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	table := &embeddings.Table{}
	report := Report{Files: len(jobs)}
	seen := make(map[string]bool)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return table, report, err
		}
		seen[job.Identity] = true

		vec, err := b.enrollOne(job)
		if b.OnFile != nil {
			b.OnFile(job)
		}
		fields := logrus.Fields{"identity": job.Identity, "file": job.Path}
		switch {
		case err == nil && vec == nil:
			report.NoFace++
			log.WithFields(fields).Debug("no face found")
		case err == nil:
			table.Add(vec, job.Identity)
			report.Enrolled++
		case worker.IsRemote(err) || isFileError(err):
			report.Skipped++
			log.WithFields(fields).WithError(err).Warn("skipping file")
		case ctx.Err() != nil:
			return table, report, ctx.Err()
		default:
			return table, report, fmt.Errorf("face encoder failed on %s: %w", job.Path, err)
		}
	}

	report.Identities = len(seen)
	return table, report, nil
}

// fileError marks failures that belong to one photo rather than to the encoder.
type fileError struct{ err error }

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

func isFileError(err error) bool {
	_, ok := err.(*fileError)
	return ok
}

// enrollOne returns the first face embedding of a photo, or nil if it has none.
// Only the image header is checked here; full decoding is left to the engine.
func (b *Builder) enrollOne(job Job) ([]float64, error) {
	data, err := os.ReadFile(job.Path)
	if err != nil {
		return nil, &fileError{err}
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, &fileError{fmt.Errorf("decode: %w", err)}
	}

	faces, err := b.Encoder.ProcessFrame(data)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, nil
	}
	return faces[0].Vec, nil
}
