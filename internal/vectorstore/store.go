package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"complaint-rag/internal/chromemdb"
	"complaint-rag/internal/config"
	"complaint-rag/internal/db"
	"complaint-rag/internal/models"
	"complaint-rag/internal/qdrantdb"
)

const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
)

// Store is a persistent collection of embedded chunks with nearest neighbour
// search. Results come back nearest first, ties in insertion order.
type Store interface {
	Add(ctx context.Context, entries []models.Entry) error
	Query(ctx context.Context, vector []float32, topK int, where map[string]string) ([]models.QueryResult, error)
	Count(ctx context.Context) (int, error)
	Schema() models.Schema
	// Drop deletes the collection with its entries and schema record.
	Drop(ctx context.Context) error
	Close() error
}

// Backup is implemented by stores that can be exported to a single file.
type Backup interface {
	Export(ctx context.Context, filePath string) error
	Import(ctx context.Context, filePath string) error
}

var (
	_ Store  = (*chromemdb.VectorDBManager)(nil)
	_ Backup = (*chromemdb.VectorDBManager)(nil)
	_ Store  = (*db.Store)(nil)
	_ Store  = (*qdrantdb.QdrantStore)(nil)
)

// Create opens the configured collection for writing, creating it with the
// given dimension when it does not exist yet.
func Create(ctx context.Context, cfg *config.Config, dimension int) (Store, error) {
	schema := models.Schema{
		Name:      cfg.Store.Collection,
		Dimension: dimension,
		Metric:    cfg.Store.Metric,
	}
	log.Debug().Str("backend", cfg.Store.Backend).Interface("schema", schema).Msg("Creating vector store")

	switch cfg.Store.Backend {
	case BackendChromem:
		m, err := newChromem(&cfg.Store)
		if err != nil {
			return nil, err
		}
		if _, err := m.GetOrCreateCollection(schema); err != nil {
			return nil, err
		}
		return m, nil
	case BackendPgvector:
		bunDB, err := connectPostgres(&cfg.Database)
		if err != nil {
			return nil, err
		}
		s, err := db.CreateStore(ctx, bunDB, schema)
		if err != nil {
			bunDB.Close()
			return nil, err
		}
		return s, nil
	case BackendQdrant:
		client, err := qdrantdb.NewClient(&cfg.Store.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		s, err := qdrantdb.CreateStore(ctx, client, schema)
		if err != nil {
			client.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Open opens an existing collection for querying. It never creates storage;
// a missing collection is models.ErrStoreNotFound.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case BackendChromem:
		if _, err := os.Stat(cfg.Store.Path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no store at %s", models.ErrStoreNotFound, cfg.Store.Path)
		}
		m, err := newChromem(&cfg.Store)
		if err != nil {
			return nil, err
		}
		if _, err := m.OpenCollection(cfg.Store.Collection); err != nil {
			return nil, err
		}
		return m, nil
	case BackendPgvector:
		bunDB, err := connectPostgres(&cfg.Database)
		if err != nil {
			return nil, err
		}
		s, err := db.OpenStore(ctx, bunDB, cfg.Store.Collection)
		if err != nil {
			bunDB.Close()
			return nil, err
		}
		return s, nil
	case BackendQdrant:
		client, err := qdrantdb.NewClient(&cfg.Store.Qdrant)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		s, err := qdrantdb.OpenStore(ctx, client, cfg.Store.Collection)
		if err != nil {
			client.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Reset drops the configured collection if it exists, so the next Create
// starts empty with a fresh schema.
func Reset(ctx context.Context, cfg *config.Config) error {
	s, err := Open(ctx, cfg)
	if errors.Is(err, models.ErrStoreNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", cfg.Store.Collection, err)
	}
	log.Info().Str("backend", cfg.Store.Backend).Str("collection", cfg.Store.Collection).Msg("Dropped collection")
	return nil
}

func newChromem(cfg *config.StoreConfig) (*chromemdb.VectorDBManager, error) {
	return chromemdb.NewVectorDBManager(cfg.Path, false, cfg.Compress, cfg.EncryptionKey)
}

func connectPostgres(cfg *config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := db.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return db.NewDB(sqldb, cfg.Debug), nil
}

// BatchFunc builds the entries for positions [start, end) of an ingest.
type BatchFunc func(ctx context.Context, start, end int) ([]models.Entry, error)

// AddBatched stores total entries in slices of batchSize. Each slice is built
// by next right before it is added, so only one batch is in memory at a time.
// It returns how many entries were stored, which on error covers the batches
// that completed.
func AddBatched(ctx context.Context, store Store, total, batchSize int, next BatchFunc) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	added := 0
	for start := 0; start < total; start += batchSize {
		end := min(start+batchSize, total)
		batch, err := next(ctx, start, end)
		if err != nil {
			return added, err
		}
		if err := store.Add(ctx, batch); err != nil {
			return added, fmt.Errorf("add entries %d to %d: %w", start, end, err)
		}
		added += len(batch)
		log.Info().Int("from", start).Int("to", end).Int("total", total).Msg("Added batch")
	}
	return added, nil
}
