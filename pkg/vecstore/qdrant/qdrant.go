// Package qdrant provides a vector store driver backed by a remote Qdrant
// instance over gRPC.
//
// Qdrant point ids must be UUIDs or integers, so record ids map to
// deterministic UUIDv5 values and the original id travels in the payload.
package qdrant

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/vecstore"
)

// idKey is the reserved payload field holding the original record id.
const idKey = "_id"

// pointNamespace seeds the UUIDv5 derivation of point ids from record ids.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Config holds Qdrant connection configuration.
type Config struct {
	// Host is the Qdrant server hostname.
	Host string

	// Port is the gRPC port. Defaults to 6334.
	Port int

	// APIKey is an optional API key for authentication.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Driver implements vecstore.Driver for Qdrant. Upserts overwrite duplicate
// ids silently, so primary-key uniqueness is enforced by the caller.
type Driver struct {
	config Config
	logger *zap.Logger

	client *qdrant.Client
	schema vecstore.Schema
}

// NewDriver validates the config. The connection opens on Connect.
func NewDriver(config Config, logger *zap.Logger) (*Driver, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if config.Port == 0 {
		config.Port = 6334
	}

	return &Driver{
		config: config,
		logger: logger,
	}, nil
}

// Connect dials the server and verifies it responds to a health check.
func (d *Driver) Connect(ctx context.Context) error {
	if d.client != nil {
		return nil
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   d.config.Host,
		Port:   d.config.Port,
		APIKey: d.config.APIKey,
		UseTLS: d.config.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("creating qdrant client: %w", err)
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return fmt.Errorf("checking qdrant health: %w", err)
	}

	d.client = client
	d.logger.Info("qdrant driver connected",
		zap.String("host", d.config.Host),
		zap.Int("port", d.config.Port),
	)

	return nil
}

// Ping probes the server with a health check.
func (d *Driver) Ping(ctx context.Context) error {
	if d.client == nil {
		return vecstore.ErrNotConnected
	}

	if _, err := d.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("checking qdrant health: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection if absent. Index parameters apply
// only at creation time and are never migrated.
func (d *Driver) EnsureCollection(ctx context.Context, schema vecstore.Schema) error {
	if d.client == nil {
		return vecstore.ErrNotConnected
	}

	exists, err := d.client.CollectionExists(ctx, schema.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", schema.Collection, err)
	}

	if !exists {
		err := d.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: schema.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(schema.Dimension),
				Distance: distance(schema.Index.Metric),
			}),
			HnswConfig: hnswConfig(schema.Index),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", schema.Collection, err)
		}

		d.logger.Info("created qdrant collection",
			zap.String("collection", schema.Collection),
			zap.Int("dimension", schema.Dimension),
			zap.String("metric", schema.Index.Metric),
		)
	}

	d.schema = schema

	return nil
}

// Insert upserts records with Wait so they are queryable on return. Existing
// points with the same id are overwritten, never rejected.
func (d *Driver) Insert(ctx context.Context, records []vecstore.Record) error {
	if d.client == nil {
		return vecstore.ErrNotConnected
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		payload := make(map[string]any, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			payload[k] = v
		}
		payload[idKey] = rec.ID

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.schema.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("upserted points", zap.Int("count", len(points)))

	return nil
}

// Flush is a no-op: upserts run with Wait, so acknowledged writes are
// already durable.
func (d *Driver) Flush(_ context.Context) error {
	return nil
}

// Load is a no-op: collections serve queries as soon as they exist.
func (d *Driver) Load(_ context.Context) error {
	return nil
}

// Search runs a vector query with optional payload filter conditions.
func (d *Driver) Search(ctx context.Context, vector []float32, topK int, filter *vecstore.Filter) ([]vecstore.SearchResult, error) {
	if d.client == nil {
		return nil, vecstore.ErrNotConnected
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.schema.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vecstore.SearchResult, 0, len(points))
	for _, point := range points {
		result := vecstore.SearchResult{
			Similarity: point.Score,
		}
		result.ID, result.Metadata = splitPayload(point.Payload)
		results = append(results, result)
	}

	return results, nil
}

// GetByID retrieves a point by its derived UUID, or ErrNotFound.
func (d *Driver) GetByID(ctx context.Context, id string) (*vecstore.Record, error) {
	if d.client == nil {
		return nil, vecstore.ErrNotConnected
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.schema.Collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting point: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", vecstore.ErrNotFound, id)
	}

	point := points[0]
	rec := &vecstore.Record{ID: id}
	_, rec.Metadata = splitPayload(point.Payload)
	if v := point.Vectors.GetVector(); v != nil {
		rec.Vector = v.GetData()
	}

	return rec, nil
}

// DeleteByID removes the point, reporting whether it existed. Existence
// needs a lookup first: the delete API does not say whether it hit.
func (d *Driver) DeleteByID(ctx context.Context, id string) (bool, error) {
	if d.client == nil {
		return false, vecstore.ErrNotConnected
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.schema.Collection,
		Ids:            []*qdrant.PointId{pointID(id)},
	})
	if err != nil {
		return false, fmt.Errorf("getting point: %w", err)
	}
	if len(points) == 0 {
		return false, nil
	}

	wait := true
	_, err = d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.schema.Collection,
		Points:         qdrant.NewPointsSelector(pointID(id)),
		Wait:           &wait,
	})
	if err != nil {
		return false, fmt.Errorf("deleting point: %w", err)
	}

	return true, nil
}

// Stats reports an exact point count. The gRPC API does not expose disk
// usage, so storage is estimated from the raw vector footprint.
func (d *Driver) Stats(ctx context.Context) (*vecstore.CollectionStats, error) {
	if d.client == nil {
		return nil, vecstore.ErrNotConnected
	}

	exact := true
	count, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.schema.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return nil, fmt.Errorf("counting points: %w", err)
	}

	return &vecstore.CollectionStats{
		RecordCount:  int64(count),
		StorageBytes: int64(count) * int64(d.schema.Dimension) * 4,
	}, nil
}

// Close releases the gRPC connection. Idempotent.
func (d *Driver) Close() error {
	if d.client == nil {
		return nil
	}

	err := d.client.Close()
	d.client = nil
	return err
}

// pointID derives the deterministic UUIDv5 point id for a record id.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(id)).String())
}

// distance maps schema metrics onto Qdrant distance functions.
func distance(metric string) qdrant.Distance {
	switch metric {
	case "euclidean":
		return qdrant.Distance_Euclid
	case "dot":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// hnswConfig maps index parameters onto the collection's HNSW settings.
// Non-HNSW index types use Qdrant's defaults.
func hnswConfig(index vecstore.IndexParams) *qdrant.HnswConfigDiff {
	if index.Type != "hnsw" || index.BuildParam <= 0 {
		return nil
	}

	efConstruct := uint64(index.BuildParam)
	return &qdrant.HnswConfigDiff{
		EfConstruct: &efConstruct,
	}
}

// splitPayload recovers the original record id and the remaining metadata
// from a point payload.
func splitPayload(payload map[string]*qdrant.Value) (string, map[string]any) {
	if payload == nil {
		return "", nil
	}

	var id string
	var metadata map[string]any
	for k, v := range payload {
		if k == idKey {
			id = v.GetStringValue()
			continue
		}
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[k] = extractValue(v)
	}

	return id, metadata
}

// buildFilter converts filter conditions to a Qdrant must-match filter.
func buildFilter(filter *vecstore.Filter) *qdrant.Filter {
	if filter.IsEmpty() {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter.Conditions()))
	for _, cond := range filter.Conditions() {
		conditions = append(conditions, matchCondition(cond.Field, cond.Value))
	}

	return &qdrant.Filter{Must: conditions}
}

// matchCondition creates a match condition for a key-value pair.
func matchCondition(key string, value any) *qdrant.Condition {
	var match *qdrant.Match

	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case float64:
		// JSON numbers decode as float64; integral values match stored
		// integers, anything else falls back to a keyword match.
		if v == math.Trunc(v) {
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		} else {
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
		}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}

	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: match,
			},
		},
	}
}

// extractValue extracts a Go value from a Qdrant Value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

// Ensure Driver implements vecstore.Driver
var _ vecstore.Driver = (*Driver)(nil)
