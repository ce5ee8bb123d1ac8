package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"complaint-rag/internal/helper"
)

// IngestRun is one completed ingest.
type IngestRun struct {
	RunID      string `db:"run_id" json:"run_id"`
	Backend    string `db:"backend" json:"backend"`
	Collection string `db:"collection" json:"collection"`
	Records    int    `db:"records" json:"records"`
	Chunks     int    `db:"chunks" json:"chunks"`
	Added      int    `db:"added" json:"added"`
	Truncated  bool   `db:"truncated" json:"truncated"`
	FinishedAt string `db:"finished_at" json:"finished_at"`
}

// Answer is one answered question and the chunk ids it was grounded on.
type Answer struct {
	ID         int64  `db:"id" json:"id"`
	Collection string `db:"collection" json:"collection"`
	Question   string `db:"question" json:"question"`
	Answer     string `db:"answer" json:"answer"`
	Sources    string `db:"sources" json:"sources"`
	AskedAt    string `db:"asked_at" json:"asked_at"`
}

// Store is a SQLite ledger of ingests and answers.
type Store struct {
	db *sqlx.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		run_id TEXT PRIMARY KEY,
		backend TEXT NOT NULL,
		collection TEXT NOT NULL,
		records INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		added INTEGER NOT NULL,
		truncated INTEGER NOT NULL DEFAULT 0,
		finished_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT NOT NULL,
		asked_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ingest_runs_collection ON ingest_runs(collection)`,
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// one writer; the CLI never needs more
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Store) RecordIngest(ctx context.Context, run IngestRun) error {
	if run.FinishedAt == "" {
		run.FinishedAt = now()
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO ingest_runs
		(run_id, backend, collection, records, chunks, added, truncated, finished_at)
		VALUES (:run_id, :backend, :collection, :records, :chunks, :added, :truncated, :finished_at)`, run)
	if err != nil {
		return fmt.Errorf("record ingest %s: %w", run.RunID, err)
	}
	return nil
}

// RecordAnswer stores a question with its answer and source chunk ids.
func (s *Store) RecordAnswer(ctx context.Context, collection, question, answer string, sourceIDs []string) error {
	a := Answer{
		Collection: collection,
		Question:   question,
		Answer:     answer,
		Sources:    strings.Join(sourceIDs, ","),
		AskedAt:    now(),
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO answers (collection, question, answer, sources, asked_at)
		VALUES (:collection, :question, :answer, :sources, :asked_at)`, a)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// RecentIngests lists the latest runs for collection, newest first.
func (s *Store) RecentIngests(ctx context.Context, collection string, limit int) ([]IngestRun, error) {
	var runs []IngestRun
	err := s.db.SelectContext(ctx, &runs, `SELECT run_id, backend, collection, records, chunks, added, truncated, finished_at
		FROM ingest_runs WHERE collection = ? ORDER BY finished_at DESC, rowid DESC LIMIT ?`, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingests: %w", err)
	}
	return runs, nil
}

// RecentAnswers lists the latest answers for collection, newest first.
func (s *Store) RecentAnswers(ctx context.Context, collection string, limit int) ([]Answer, error) {
	var answers []Answer
	err := s.db.SelectContext(ctx, &answers, `SELECT id, collection, question, answer, sources, asked_at
		FROM answers WHERE collection = ? ORDER BY id DESC LIMIT ?`, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
