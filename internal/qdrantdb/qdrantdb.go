package qdrantdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"complaint-rag/internal/config"
	"complaint-rag/internal/models"
)

const (
	payloadText  = "text"
	payloadDocID = "doc_id"
)

type QdrantStore struct {
	client *qdrant.Client
	schema models.Schema
	mu     sync.Mutex
}

func NewClient(cfg *config.QdrantConfig) (*qdrant.Client, error) {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6334
	}
	return qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
}

func toDistance(metric string) (qdrant.Distance, error) {
	switch metric {
	case models.MetricCosine:
		return qdrant.Distance_Cosine, nil
	case models.MetricL2:
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w %q", models.ErrUnsupportedMetric, metric)
	}
}

func fromDistance(d qdrant.Distance) (string, error) {
	switch d {
	case qdrant.Distance_Cosine:
		return models.MetricCosine, nil
	case qdrant.Distance_Euclid:
		return models.MetricL2, nil
	default:
		return "", fmt.Errorf("%w %s", models.ErrUnsupportedMetric, d.String())
	}
}

// scoreToDistance converts a qdrant score so that smaller is closer.
func scoreToDistance(metric string, score float32) float32 {
	if metric == models.MetricCosine {
		return 1 - score
	}
	return score
}

// pointID derives a stable UUID for an entry id, since qdrant only accepts
// UUIDs or unsigned integers.
func pointID(collection, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+id)).String()
}

// CreateStore opens or creates the collection for writing.
func CreateStore(ctx context.Context, client *qdrant.Client, schema models.Schema) (*QdrantStore, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	exists, err := client.CollectionExists(ctx, schema.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		distance, err := toDistance(schema.Metric)
		if err != nil {
			return nil, err
		}
		if err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: schema.Name,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(schema.Dimension),
						Distance: distance,
					},
				},
			},
		}); err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}

	s, err := OpenStore(ctx, client, schema.Name)
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

// OpenStore opens an existing collection, reading dimension and metric from
// its vector params. A missing collection is ErrStoreNotFound.
func OpenStore(ctx context.Context, client *qdrant.Client, name string) (*QdrantStore, error) {
	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrStoreNotFound, name)
	}

	info, err := client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection info %s: %w", name, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return nil, fmt.Errorf("collection %s has no single unnamed vector", name)
	}
	metric, err := fromDistance(params.GetDistance())
	if err != nil {
		return nil, err
	}
	schema := models.Schema{Name: name, Dimension: int(params.GetSize()), Metric: metric}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &QdrantStore{client: client, schema: schema}, nil
}

func (s *QdrantStore) Schema() models.Schema {
	return s.schema
}

func (s *QdrantStore) Add(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.Count(ctx)
	if err != nil {
		return err
	}

	pts := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		if err := s.schema.CheckDimension(len(e.Embedding)); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		payload := map[string]any{
			payloadText:    e.Content,
			payloadDocID:   e.ID,
			models.MetaSeq: int64(base + i),
		}
		for k, v := range e.Metadata {
			payload[k] = v
		}
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(s.schema.Name, e.ID)),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.schema.Name,
		Wait:           &wait,
		Points:         pts,
	})
	return err
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, where map[string]string) ([]models.QueryResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if err := s.schema.CheckDimension(len(vector)); err != nil {
		return nil, err
	}

	var filter *qdrant.Filter
	if len(where) > 0 {
		filter = &qdrant.Filter{Must: []*qdrant.Condition{}}
		for key, value := range where {
			filter.Must = append(filter.Must, qdrant.NewMatch(key, value))
		}
	}
	// Equal scores at the limit come back in storage order, so fetch one past
	// topK and widen until the cut no longer splits a tie.
	var resp []*qdrant.ScoredPoint
	for limit := uint64(topK) + 1; ; limit *= 2 {
		var err error
		resp, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.schema.Name,
			Limit:          &limit,
			Filter:         filter,
			Query:          qdrant.NewQuery(vector...),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", s.schema.Name, err)
		}
		if uint64(len(resp)) < limit || resp[limit-1].GetScore() != resp[topK-1].GetScore() {
			break
		}
	}

	results := make([]models.QueryResult, 0, len(resp))
	for _, p := range resp {
		res := models.QueryResult{
			Metadata: map[string]string{},
			Distance: scoreToDistance(s.schema.Metric, p.GetScore()),
		}
		for k, v := range p.GetPayload() {
			switch k {
			case payloadText:
				res.Content = v.GetStringValue()
			case payloadDocID:
				res.ID = v.GetStringValue()
			case models.MetaSeq:
				res.Seq = v.GetIntegerValue()
			default:
				res.Metadata[k] = v.GetStringValue()
			}
		}
		results = append(results, res)
	}
	models.SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.schema.Name,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.schema.Name, err)
	}
	return int(n), nil
}

func (s *QdrantStore) Drop(ctx context.Context) error {
	return s.client.DeleteCollection(ctx, s.schema.Name)
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
