package store

import (
	"context"
	"fmt"
	"math"

	"github.com/andresmejia3/facelookup/internal/embeddings"
	"github.com/andresmejia3/facelookup/internal/people"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Store mirrors the embedding table and people directory into PostgreSQL with pgvector.
// Vectors are stored as float32, so values read back are rounded to single precision.
type Store struct {
	conn *pgx.Conn
}

// IdentitySummary is one enrolled label with its number of photos.
type IdentitySummary struct {
	Label string
	Count int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables and vector extension if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS enrolled_faces (
			id BIGSERIAL PRIMARY KEY,
			position INT NOT NULL UNIQUE,
			label TEXT NOT NULL,
			embedding VECTOR NOT NULL,
			enrolled_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS enrolled_faces_label_idx ON enrolled_faces (label);
		CREATE TABLE IF NOT EXISTS people (
			label TEXT PRIMARY KEY,
			age TEXT NOT NULL,
			job TEXT NOT NULL,
			location TEXT NOT NULL,
			email TEXT NOT NULL
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// ReplaceTable swaps the stored embedding table for t in one transaction, preserving entry order.
func (s *Store) ReplaceTable(ctx context.Context, t *embeddings.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM enrolled_faces"); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, vec := range t.Embeddings {
		batch.Queue(`INSERT INTO enrolled_faces (position, label, embedding) VALUES ($1, $2, $3)`,
			i, t.Labels[i], pgvector.NewVector(toFloat32(vec)))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert embeddings: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadTable reads the embedding table back in its original order.
func (s *Store) LoadTable(ctx context.Context) (*embeddings.Table, error) {
	rows, err := s.conn.Query(ctx, "SELECT label, embedding FROM enrolled_faces ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &embeddings.Table{}
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, err
		}
		t.Add(toFloat64(vec.Slice()), label)
	}
	return t, rows.Err()
}

// FindClosest returns the nearest enrolled face by Euclidean distance (<->).
// ok is false when the table is empty or the nearest face is farther than threshold.
// Rows of another dimension never match, as with the in-memory matcher.
func (s *Store) FindClosest(ctx context.Context, vec []float64, threshold float64) (label string, dist float64, ok bool, err error) {
	if len(vec) == 0 {
		return "", math.Inf(1), false, nil
	}
	query := `
		SELECT label, embedding <-> $1::vector AS distance
		FROM enrolled_faces
		WHERE vector_dims(embedding) = $2
		ORDER BY embedding <-> $1::vector ASC, position ASC
		LIMIT 1
	`

	err = s.conn.QueryRow(ctx, query, pgvector.NewVector(toFloat32(vec)), len(vec)).Scan(&label, &dist)
	if err == pgx.ErrNoRows {
		return "", math.Inf(1), false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	// Only the nearest row is tested against the threshold
	if dist > threshold {
		return "", dist, false, nil
	}
	return label, dist, true, nil
}

// ListIdentities returns every enrolled label with its photo count.
func (s *Store) ListIdentities(ctx context.Context) ([]IdentitySummary, error) {
	rows, err := s.conn.Query(ctx, "SELECT label, COUNT(*) FROM enrolled_faces GROUP BY label ORDER BY label")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IdentitySummary
	for rows.Next() {
		var id IdentitySummary
		if err := rows.Scan(&id.Label, &id.Count); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplacePeople swaps the stored people directory for dir.
func (s *Store) ReplacePeople(ctx context.Context, dir people.Directory) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM people"); err != nil {
		return err
	}
	for label, rec := range dir {
		_, err := tx.Exec(ctx, `
			INSERT INTO people (label, age, job, location, email)
			VALUES ($1, $2, $3, $4, $5)
		`, label, rec.Age, rec.Job, rec.Location, rec.Email)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// LoadPeople reads the stored people directory.
func (s *Store) LoadPeople(ctx context.Context) (people.Directory, error) {
	rows, err := s.conn.Query(ctx, "SELECT label, age, job, location, email FROM people")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dir := people.Directory{}
	for rows.Next() {
		var label string
		var rec people.Record
		if err := rows.Scan(&label, &rec.Age, &rec.Job, &rec.Location, &rec.Email); err != nil {
			return nil, err
		}
		dir[label] = rec
	}
	return dir, rows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS enrolled_faces CASCADE;
		DROP TABLE IF EXISTS people CASCADE;
	`)
	return err
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
