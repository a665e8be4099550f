// Package recognize matches query face embeddings against an enrolled table.
package recognize

import (
	"math"

	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/andresmejia3/facelookup/internal/types"
	"github.com/andresmejia3/facelookup/internal/utils"
)

// DefaultThreshold is face_recognition's default tolerance.
const DefaultThreshold = 0.6

// Result is the outcome of matching one face.
type Result struct {
	Label string
	people.Record
	Distance float64 // to the nearest entry; +Inf for an empty table
	Matched  bool
}

func unknownResult(dist float64) Result {
	return Result{Label: people.Unknown, Record: people.UnknownRecord(), Distance: dist}
}

// Detection pairs a face location with its match.
type Detection struct {
	Loc    []int // [top, right, bottom, left]
	Result Result
}

// Session holds the read-only state of one recognition run.
type Session struct {
	table     *embeddings.Table
	people    people.Directory
	threshold float64
}

// NewSession builds a session. A nil table or directory is treated as empty,
// and a non-positive threshold falls back to DefaultThreshold.
func NewSession(table *embeddings.Table, dir people.Directory, threshold float64) *Session {
	if table == nil {
		table = &embeddings.Table{}
	}
	if dir == nil {
		dir = people.Directory{}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Session{table: table, people: dir, threshold: threshold}
}

func (s *Session) Threshold() float64 { return s.threshold }

// Loaded reports whether there is anything to match against.
func (s *Session) Loaded() bool { return s.table.Len() > 0 }

// Match finds the nearest enrolled entry and accepts it only if that entry is within the threshold.
// Ties go to the earlier entry.
func (s *Session) Match(query []float64) Result {
	best, bestDist := -1, math.Inf(1)
	for i, vec := range s.table.Embeddings {
		if d := utils.EuclideanDist(query, vec); d < bestDist {
			best, bestDist = i, d
		}
	}

	if best == -1 || bestDist > s.threshold {
		return unknownResult(bestDist)
	}

	label := s.table.Labels[best]
	rec, _ := s.people.Lookup(label)
	return Result{Label: label, Record: rec, Distance: bestDist, Matched: true}
}

// MatchFaces matches every face of one frame, preserving order.
func (s *Session) MatchFaces(faces []types.FaceResult) []Detection {
	out := make([]Detection, 0, len(faces))
	for _, f := range faces {
		out = append(out, Detection{Loc: f.Loc, Result: s.Match(f.Vec)})
	}
	return out
}
