package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"complaint-rag/internal/config"
	"complaint-rag/internal/models"
)

// Collection is the persisted schema record of one collection.
type Collection struct {
	bun.BaseModel `bun:"table:rag_collections,alias:rc"`
	Name          string    `bun:"name,pk"`
	Dimension     int       `bun:"dimension,notnull"`
	Metric        string    `bun:"metric,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type Document struct {
	bun.BaseModel `bun:"table:rag_documents,alias:d"`
	Seq           int64             `bun:"seq,pk,autoincrement"`
	Collection    string            `bun:"collection,notnull,unique:collection_doc"`
	DocID         string            `bun:"doc_id,notnull,unique:collection_doc"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,type:vector,notnull"`
	Distance      float32           `bun:"distance,scanonly"`
}

func ConnectDB(dbConfig *config.DatabaseConfig) (*sql.DB, error) {
	if dbConfig.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dbConfig.DSN)}
	if dbConfig.Password != "" {
		opts = append(opts, pgdriver.WithPassword(dbConfig.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// InitDB installs pgvector and creates the tables if missing.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Collection)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create collections table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	_, err := db.NewCreateIndex().Model((*Document)(nil)).
		Index("rag_documents_collection_idx").
		IfNotExists().
		Column("collection").
		Exec(ctx)
	return err
}

// distanceOperator maps a metric to its pgvector operator.
func distanceOperator(metric string) (string, error) {
	switch metric {
	case models.MetricCosine:
		return "<=>", nil
	case models.MetricL2:
		return "<->", nil
	default:
		return "", fmt.Errorf("%w %q", models.ErrUnsupportedMetric, metric)
	}
}

// Store is a pgvector backed collection.
type Store struct {
	db     *bun.DB
	schema models.Schema
	op     string
}

// CreateStore opens the collection for writing, creating tables and the
// schema record when missing. An existing record wins over schema.
func CreateStore(ctx context.Context, db *bun.DB, schema models.Schema) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := InitDB(ctx, db); err != nil {
		return nil, err
	}
	rec := &Collection{Name: schema.Name, Dimension: schema.Dimension, Metric: schema.Metric, CreatedAt: time.Now().UTC()}
	if _, err := db.NewInsert().Model(rec).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
		return nil, fmt.Errorf("register collection: %w", err)
	}
	s, err := OpenStore(ctx, db, schema.Name)
	if err != nil {
		return nil, err
	}
	if s.schema.Metric != schema.Metric || s.schema.Dimension != schema.Dimension {
		log.Warn().
			Interface("persisted", s.schema).
			Interface("requested", schema).
			Msg("Collection exists, keeping its persisted schema")
	}
	return s, nil
}

// OpenStore opens an existing collection; a missing one is ErrStoreNotFound.
func OpenStore(ctx context.Context, db *bun.DB, name string) (*Store, error) {
	rec := new(Collection)
	err := db.NewSelect().Model(rec).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrStoreNotFound, name)
	}
	if err != nil {
		var pgErr pgdriver.Error
		// 42P01: undefined_table, nothing was ever built here
		if errors.As(err, &pgErr) && pgErr.Field('C') == "42P01" {
			return nil, fmt.Errorf("%w: %s", models.ErrStoreNotFound, name)
		}
		return nil, fmt.Errorf("read collection %s: %w", name, err)
	}

	schema := models.Schema{Name: rec.Name, Dimension: rec.Dimension, Metric: rec.Metric, CreatedAt: rec.CreatedAt}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	op, err := distanceOperator(schema.Metric)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, schema: schema, op: op}, nil
}

func (s *Store) Schema() models.Schema {
	return s.schema
}

func (s *Store) Add(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]Document, len(entries))
	for i, e := range entries {
		if err := s.schema.CheckDimension(len(e.Embedding)); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		docs[i] = Document{
			Collection: s.schema.Name,
			DocID:      e.ID,
			Content:    e.Content,
			Metadata:   e.Metadata,
			Embedding:  pgvector.NewVector(e.Embedding),
		}
	}
	if _, err := s.db.NewInsert().Model(&docs).Exec(ctx); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, where map[string]string) ([]models.QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if err := s.schema.CheckDimension(len(vector)); err != nil {
		return nil, err
	}

	var docs []Document
	q := s.db.NewSelect().
		Model(&docs).
		Column("seq", "doc_id", "content", "metadata").
		ColumnExpr("d.embedding "+s.op+" ? AS distance", pgvector.NewVector(vector)).
		Where("d.collection = ?", s.schema.Name)
	for k, v := range where {
		q = q.Where("d.metadata->>? = ?", k, v)
	}
	err := q.OrderExpr("distance ASC, d.seq ASC").Limit(topK).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	results := make([]models.QueryResult, len(docs))
	for i, d := range docs {
		results[i] = models.QueryResult{
			ID:       d.DocID,
			Content:  d.Content,
			Metadata: d.Metadata,
			Distance: d.Distance,
			Seq:      d.Seq,
		}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Where("collection = ?", s.schema.Name).Count(ctx)
}

// Drop removes a collection's documents and schema record.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Document)(nil)).Where("collection = ?", s.schema.Name).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*Collection)(nil)).Where("name = ?", s.schema.Name).Exec(ctx)
		return err
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
