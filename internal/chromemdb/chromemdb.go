package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"complaint-rag/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations for one
// collection.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	schema        models.Schema
	dbPath        string
	inMemory      bool
	compress      bool
	encryptionKey string

	// serializes Add so insertion sequence numbers stay contiguous
	mu sync.Mutex
}

const schemaSuffix = ".schema.yaml"

// NewVectorDBManager opens the database at dbPath, or an in-memory database.
func NewVectorDBManager(dbPath string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dbPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database folder: %w", err)
		}
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		inMemory:      inMemory,
		compress:      compress,
		encryptionKey: encryptionKey,
	}, nil
}

// noEmbedding keeps chromem from ever calling out to a model: every document
// and query arrives with its vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents must carry precomputed embeddings")
}

// GetOrCreateCollection opens the collection for writing, creating it with
// schema if needed. An existing collection keeps its persisted schema.
func (m *VectorDBManager) GetOrCreateCollection(schema models.Schema) (*chromem.Collection, error) {
	if schema.Metric != models.MetricCosine {
		return nil, fmt.Errorf("chromem collections support cosine only: %w %q", models.ErrUnsupportedMetric, schema.Metric)
	}

	if existing, err := m.readSchema(schema.Name); err == nil {
		if existing.Metric != schema.Metric || existing.Dimension != schema.Dimension {
			log.Warn().
				Interface("persisted", existing).
				Interface("requested", schema).
				Msg("Collection exists, keeping its persisted schema")
		}
		schema = existing
	} else if !errors.Is(err, models.ErrStoreNotFound) {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	c, err := m.db.GetOrCreateCollection(schema.Name, map[string]string{
		"dimension": strconv.Itoa(schema.Dimension),
		"metric":    schema.Metric,
	}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	if err := m.writeSchema(schema); err != nil {
		return nil, err
	}

	m.collection = c
	m.schema = schema
	return c, nil
}

// OpenCollection opens an existing collection for reading. It never creates
// one: a missing collection or schema record is ErrStoreNotFound.
func (m *VectorDBManager) OpenCollection(name string) (*chromem.Collection, error) {
	schema, err := m.readSchema(name)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if schema.Metric != models.MetricCosine {
		return nil, fmt.Errorf("collection %s: %w %q", name, models.ErrUnsupportedMetric, schema.Metric)
	}

	c := m.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s in %s", models.ErrStoreNotFound, name, m.dbPath)
	}
	m.collection = c
	m.schema = schema
	return c, nil
}

func (m *VectorDBManager) schemaPath(name string) string {
	return filepath.Join(m.dbPath, name+schemaSuffix)
}

func (m *VectorDBManager) readSchema(name string) (models.Schema, error) {
	if m.inMemory {
		if m.schema.Name == name {
			return m.schema, nil
		}
		return models.Schema{}, fmt.Errorf("%w: %s (in-memory)", models.ErrStoreNotFound, name)
	}
	return readSchemaFile(m.schemaPath(name))
}

func (m *VectorDBManager) writeSchema(schema models.Schema) error {
	if m.inMemory {
		return nil
	}
	return writeSchemaFile(m.schemaPath(schema.Name), schema)
}

func readSchemaFile(path string) (models.Schema, error) {
	var schema models.Schema
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return schema, fmt.Errorf("%w: no schema record at %s", models.ErrStoreNotFound, path)
	}
	if err != nil {
		return schema, fmt.Errorf("read schema: %w", err)
	}
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return schema, nil
}

func writeSchemaFile(path string, schema models.Schema) error {
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(schema)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *VectorDBManager) Schema() models.Schema {
	return m.schema
}

// Add inserts entries, tagging each with its insertion sequence.
func (m *VectorDBManager) Add(ctx context.Context, entries []models.Entry) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.collection.Count()
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if err := m.schema.CheckDimension(len(e.Embedding)); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		meta := make(map[string]string, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			meta[k] = v
		}
		meta[models.MetaSeq] = strconv.Itoa(base + i)
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  meta,
			Embedding: e.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns the min(topK, count) nearest entries by cosine distance.
func (m *VectorDBManager) Query(ctx context.Context, vector []float32, topK int, where map[string]string) ([]models.QueryResult, error) {
	if m.collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if err := m.schema.CheckDimension(len(vector)); err != nil {
		return nil, err
	}

	count := m.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem cuts its top n in arbitrary order, so fetch one past topK and
	// widen while the cut falls inside a run of equal similarities.
	var results []chromem.Result
	for n := min(topK+1, count); ; n = min(2*n, count) {
		var err error
		results, err = m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
			QueryEmbedding: vector,
			NResults:       n,
			Where:          where,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query by similarity: %w", err)
		}
		if n == count || len(results) < n || results[n-1].Similarity != results[topK-1].Similarity {
			break
		}
	}

	out := make([]models.QueryResult, len(results))
	for i, r := range results {
		meta, seq := models.SplitSeq(r.Metadata)
		out[i] = models.QueryResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: meta,
			Distance: 1 - r.Similarity,
			Seq:      seq,
		}
	}
	models.SortResults(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *VectorDBManager) Count(context.Context) (int, error) {
	if m.collection == nil {
		return 0, fmt.Errorf("collection is required")
	}
	return m.collection.Count(), nil
}

// Drop deletes the collection and its schema record.
func (m *VectorDBManager) Drop(context.Context) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if !m.inMemory {
		if err := os.Remove(m.schemaPath(m.collection.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	m.collection = nil
	return nil
}

// Export writes the collection, optionally encrypted, to filePath and its
// schema record next to it.
func (m *VectorDBManager) Export(ctx context.Context, filePath string) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if filePath == "" {
		return fmt.Errorf("export path is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return writeSchemaFile(filePath+schemaSuffix, m.schema)
}

// Import loads a collection exported with Export into this database and
// makes it current. The collection must not exist here yet.
func (m *VectorDBManager) Import(ctx context.Context, filePath string) error {
	schema, err := readSchemaFile(filePath + schemaSuffix)
	if err != nil {
		return err
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	if _, err := m.readSchema(schema.Name); err == nil {
		return fmt.Errorf("collection %s already exists in %s", schema.Name, m.dbPath)
	}

	// the export is read into memory first so that every document goes
	// through AddDocuments, which is what writes it to disk
	staging := chromem.NewDB()
	if err := staging.ImportFromFile(filePath, m.encryptionKey, schema.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	src := staging.GetCollection(schema.Name, noEmbedding)
	if src == nil {
		return fmt.Errorf("%w: %s not present in %s", models.ErrStoreNotFound, schema.Name, filePath)
	}

	var docs []chromem.Document
	if n := src.Count(); n > 0 {
		probe := make([]float32, schema.Dimension)
		for i := range probe {
			probe[i] = 1
		}
		results, err := src.QueryWithOptions(ctx, chromem.QueryOptions{QueryEmbedding: probe, NResults: n})
		if err != nil {
			return fmt.Errorf("failed to read imported documents: %w", err)
		}
		docs = make([]chromem.Document, len(results))
		for i, r := range results {
			docs[i] = chromem.Document{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Embedding: r.Embedding}
		}
	}

	if _, err := m.GetOrCreateCollection(schema); err != nil {
		return err
	}
	if len(docs) > 0 {
		if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add imported documents: %w", err)
		}
	}
	log.Debug().Str("collection", schema.Name).Int("documents", len(docs)).Msg("Imported collection")
	return nil
}

// Close is a no-op: chromem persists on every write.
func (m *VectorDBManager) Close() error {
	return nil
}
