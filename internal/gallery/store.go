// Package gallery keeps generated images and their parameters in a SQLite database.
package gallery

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// DefaultBatchSize is the number of entries to buffer before flushing to the database.
	DefaultBatchSize = 16

	schemaVersion = "1"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("gallery entry not found")

// Entry is one stored image.
type Entry struct {
	ID          string             `json:"id"`
	Session     string             `json:"session"`
	Name        string             `json:"name"`
	Algorithm   string             `json:"algorithm"`
	Seed        int64              `json:"seed"`
	Variation   int                `json:"variation"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Scores      map[string]float64 `json:"scores"`
	Description string             `json:"description"`
	Params      json.RawMessage    `json:"params,omitempty"`
	Created     time.Time          `json:"created"`
	// PNG is only populated by Get.
	PNG []byte `json:"-"`
}

// SessionSummary aggregates the entries of one session.
type SessionSummary struct {
	Session string    `json:"session"`
	Count   int       `json:"count"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
}

// Store writes entries in batches and reads them back.
type Store struct {
	db        *sql.DB
	path      string
	batch     []Entry
	batchSize int
	mu        sync.Mutex
}

// Open opens or creates the gallery database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:        db,
		path:      path,
		batch:     make([]Entry, 0, DefaultBatchSize),
		batchSize: DefaultBatchSize,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL,
			name TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			seed INTEGER NOT NULL,
			variation INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			scores TEXT NOT NULL,
			description TEXT NOT NULL,
			params TEXT,
			created_at INTEGER NOT NULL,
			image_data BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS images_session ON images (session, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES ('schema_version', ?)", schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// Save queues e and returns its id, assigning a new one when e.ID is empty.
// When the batch is full it is flushed.
func (s *Store) Save(e Entry) (string, error) {
	if e.Session == "" {
		return "", fmt.Errorf("entry needs a session")
	}
	if len(e.PNG) == 0 {
		return "", fmt.Errorf("entry %q has no image data", e.Name)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = append(s.batch, e)
	if len(s.batch) >= s.batchSize {
		return e.ID, s.flushLocked()
	}
	return e.ID, nil
}

// Flush writes any buffered entries to the database.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked writes buffered entries. Must be called with lock held.
// The batch is always emptied: entries that cannot be encoded are dropped and
// reported, and a failed transaction reports every entry it lost.
func (s *Store) flushLocked() error {
	if len(s.batch) == 0 {
		return nil
	}
	batch := s.batch
	s.batch = make([]Entry, 0, s.batchSize)

	type row struct {
		e          Entry
		scores     string
		params     any
		compressed []byte
	}
	var (
		rows []row
		errs []error
	)
	for _, e := range batch {
		scores, err := json.Marshal(e.Scores)
		if err != nil {
			errs = append(errs, fmt.Errorf("dropped image %s: failed to encode scores: %w", e.ID, err))
			continue
		}
		compressed, err := gzipCompress(e.PNG)
		if err != nil {
			errs = append(errs, fmt.Errorf("dropped image %s: failed to compress: %w", e.ID, err))
			continue
		}
		var paramsText any
		if len(e.Params) > 0 {
			paramsText = string(e.Params)
		}
		rows = append(rows, row{e: e, scores: string(scores), params: paramsText, compressed: compressed})
	}

	if len(rows) > 0 {
		if err := s.insert(func(stmt *sql.Stmt) error {
			for _, r := range rows {
				e := r.e
				if _, err := stmt.Exec(e.ID, e.Session, e.Name, e.Algorithm, e.Seed, e.Variation,
					e.Width, e.Height, r.scores, e.Description, r.params,
					e.Created.UnixNano(), r.compressed); err != nil {
					return fmt.Errorf("failed to insert image %s: %w", e.ID, err)
				}
			}
			return nil
		}); err != nil {
			errs = append(errs, fmt.Errorf("dropped %d images: %w", len(rows), err))
		}
	}

	return errors.Join(errs...)
}

// insert runs fn with a prepared image insert inside one transaction.
func (s *Store) insert(fn func(stmt *sql.Stmt) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO images
		(id, session, name, algorithm, seed, variation, width, height, scores, description, params, created_at, image_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Sessions summarizes every stored session, oldest first.
func (s *Store) Sessions() ([]SessionSummary, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT session, COUNT(*), MIN(created_at), MAX(created_at)
		FROM images GROUP BY session ORDER BY MIN(created_at), session`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum         SessionSummary
			first, last int64
		)
		if err := rows.Scan(&sum.Session, &sum.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.First = time.Unix(0, first)
		sum.Last = time.Unix(0, last)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

const entryColumns = "id, session, name, algorithm, seed, variation, width, height, scores, description, params, created_at"

// List returns the entries of a session in creation order, without image data.
func (s *Store) List(session string) ([]Entry, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT "+entryColumns+" FROM images WHERE session = ? ORDER BY created_at, name", session)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}
	return out, nil
}

// Get returns one entry including its PNG data.
func (s *Store) Get(id string) (*Entry, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow("SELECT "+entryColumns+", image_data FROM images WHERE id = ?", id)
	var compressed []byte
	e, err := scanEntry(row, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	e.PNG, err = gzipDecompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress image %s: %w", id, err)
	}
	return &e, nil
}

// Close flushes any remaining entries and closes the database.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner, extra ...any) (Entry, error) {
	var (
		e       Entry
		scores  string
		params  sql.NullString
		created int64
	)
	dest := append([]any{&e.ID, &e.Session, &e.Name, &e.Algorithm, &e.Seed, &e.Variation,
		&e.Width, &e.Height, &scores, &e.Description, &params, &created}, extra...)
	if err := sc.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("failed to scan image row: %w", err)
	}
	if err := json.Unmarshal([]byte(scores), &e.Scores); err != nil {
		return Entry{}, fmt.Errorf("failed to decode scores for %s: %w", e.ID, err)
	}
	if params.Valid {
		e.Params = json.RawMessage(params.String)
	}
	e.Created = time.Unix(0, created)
	return e, nil
}

// gzipCompress compresses data with gzip.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}

	if err := gw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
