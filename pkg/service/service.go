// Package service orchestrates the image ingest and search flows: rate
// limiting, embedding, vector store access, stats, and record events.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/embeddings"
	"github.com/keyframeco/prism/pkg/eventstream"
	"github.com/keyframeco/prism/pkg/ratelimit"
	"github.com/keyframeco/prism/pkg/stats"
	"github.com/keyframeco/prism/pkg/vecstore"
)

// DefaultMaxBatchSize bounds the number of items in one batch ingest.
const DefaultMaxBatchSize = 1000

// Opts holds the collaborators the service composes.
type Opts struct {
	Store     *vecstore.Client
	Embedder  embeddings.Embedder
	Limiter   *ratelimit.Limiter
	Stats     *stats.Registry
	Publisher eventstream.Publisher
	Logger    *zap.Logger

	// Collection names the vector store collection in stats and events.
	Collection string

	// MaxBatchSize bounds batch ingests. Defaults to DefaultMaxBatchSize.
	MaxBatchSize int
}

// Service is the request orchestrator. Rate limiting applies to the ingest
// and search paths only; reads, health, and stats are never limited.
type Service struct {
	store        *vecstore.Client
	embedder     embeddings.Embedder
	limiter      *ratelimit.Limiter
	stats        *stats.Registry
	publisher    eventstream.Publisher
	logger       *zap.Logger
	collection   string
	maxBatchSize int
}

// BatchItem is one record in a batch ingest request.
type BatchItem struct {
	ID        string
	ImageData string
	Metadata  map[string]any
}

// BatchResult reports the outcome of a completed batch ingest.
type BatchResult struct {
	Inserted []string `json:"inserted"`
	Count    int      `json:"count"`
}

// HealthStatus reports liveness of the service and its store.
type HealthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Stats aggregates collection stats with API counters.
type Stats struct {
	Collection     string           `json:"collection"`
	RecordCount    int64            `json:"record_count"`
	StorageBytes   int64            `json:"storage_bytes"`
	AvgRecordBytes int64            `json:"avg_record_bytes"`
	APICalls       map[string]int64 `json:"api_calls"`
	ErrorCount     int64            `json:"error_count"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
}

// New validates the collaborators and creates the service.
func New(o Opts) (*Service, error) {
	if o.Store == nil {
		return nil, fmt.Errorf("vector store client is required")
	}
	if o.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if o.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if o.Stats == nil {
		return nil, fmt.Errorf("stats registry is required")
	}
	if o.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if o.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	maxBatchSize := o.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	return &Service{
		store:        o.Store,
		embedder:     o.Embedder,
		limiter:      o.Limiter,
		stats:        o.Stats,
		publisher:    o.Publisher,
		logger:       o.Logger,
		collection:   o.Collection,
		maxBatchSize: maxBatchSize,
	}, nil
}

// AddImage embeds the image and stores it under id. The getById check before
// Insert is the application-level uniqueness guarantee: duplicates are
// rejected with ErrConflict whether or not the driver detects them.
func (s *Service) AddImage(ctx context.Context, clientKey, id, imageData string, metadata map[string]any) (*vecstore.Record, error) {
	if err := s.checkLimit(clientKey); err != nil {
		return nil, err
	}
	s.stats.RecordCall(stats.OpAddImage)

	image, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, image)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetByID(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrConflict, id)
	} else if !errors.Is(err, vecstore.ErrNotFound) {
		return nil, err
	}

	rec := vecstore.Record{ID: id, Vector: vector, Metadata: metadata}
	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, vecstore.ErrDuplicateID) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, id)
		}
		return nil, err
	}

	s.publishRecord(ctx, eventstream.EventTypeRecordIngested, id, false, metadata)

	return &rec, nil
}

// BatchAddImages embeds and stores every item, or fails before storing
// anything: decode, embed, and uniqueness checks all run up front. A partial
// store failure surfaces as a *vecstore.BatchError naming what landed.
func (s *Service) BatchAddImages(ctx context.Context, clientKey string, items []BatchItem) (*BatchResult, error) {
	if err := s.checkLimit(clientKey); err != nil {
		return nil, err
	}
	s.stats.RecordCall(stats.OpBatchAddImages)

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch must contain at least one item", vecstore.ErrInvalidArgument)
	}
	if len(items) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds maximum %d", vecstore.ErrInvalidArgument, len(items), s.maxBatchSize)
	}

	records := make([]vecstore.Record, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: %s appears twice in batch", ErrConflict, item.ID)
		}
		seen[item.ID] = struct{}{}

		image, err := decodeImage(item.ImageData)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", item.ID, err)
		}

		vector, err := s.embedder.Embed(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", item.ID, err)
		}

		if _, err := s.store.GetByID(ctx, item.ID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrConflict, item.ID)
		} else if !errors.Is(err, vecstore.ErrNotFound) {
			return nil, err
		}

		records = append(records, vecstore.Record{
			ID:       item.ID,
			Vector:   vector,
			Metadata: item.Metadata,
		})
	}

	if err := s.store.BatchInsert(ctx, records); err != nil {
		var batchErr *vecstore.BatchError
		if errors.As(err, &batchErr) {
			for _, id := range batchErr.Inserted {
				s.publishRecord(ctx, eventstream.EventTypeRecordIngested, id, true, nil)
			}
		}
		if errors.Is(err, vecstore.ErrDuplicateID) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}

	inserted := make([]string, 0, len(records))
	for _, rec := range records {
		inserted = append(inserted, rec.ID)
		s.publishRecord(ctx, eventstream.EventTypeRecordIngested, rec.ID, true, rec.Metadata)
	}

	return &BatchResult{Inserted: inserted, Count: len(inserted)}, nil
}

// GetImage returns the stored record, or vecstore.ErrNotFound.
func (s *Service) GetImage(ctx context.Context, id string) (*vecstore.Record, error) {
	s.stats.RecordCall(stats.OpGetImage)
	return s.store.GetByID(ctx, id)
}

// DeleteImage removes the record, mapping an absent id to
// vecstore.ErrNotFound. Repeating a delete is safe: the second call reports
// not found without touching the store's contents.
func (s *Service) DeleteImage(ctx context.Context, id string) error {
	s.stats.RecordCall(stats.OpDeleteImage)

	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", vecstore.ErrNotFound, id)
	}

	s.publishRecord(ctx, eventstream.EventTypeRecordDeleted, id, false, nil)

	return nil
}

// Search embeds the query image and finds the topK most similar records,
// optionally constrained to metadata equality matches.
func (s *Service) Search(ctx context.Context, clientKey, imageData string, topK int, filters map[string]any) ([]vecstore.SearchResult, error) {
	if err := s.checkLimit(clientKey); err != nil {
		return nil, err
	}
	s.stats.RecordCall(stats.OpSearch)

	image, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, image)
	if err != nil {
		return nil, err
	}

	return s.store.Search(ctx, vector, topK, vecstore.FilterFromMap(filters))
}

// Health probes the store and reports liveness. It never errors: a failed
// probe shows up as a degraded status instead.
func (s *Service) Health(ctx context.Context) *HealthStatus {
	s.stats.RecordCall(stats.OpHealth)

	status := "ok"
	database := "connected"
	if err := s.store.Connect(ctx); err != nil {
		status = "degraded"
		database = "disconnected"
		s.logger.Warn("health probe failed", zap.Error(err))
	}

	return &HealthStatus{
		Status:        status,
		Database:      database,
		UptimeSeconds: int64(s.stats.Uptime().Seconds()),
	}
}

// Stats combines collection stats from the store with API counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	s.stats.RecordCall(stats.OpStats)

	cstats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := s.stats.Snapshot()

	return &Stats{
		Collection:     s.collection,
		RecordCount:    cstats.RecordCount,
		StorageBytes:   cstats.StorageBytes,
		AvgRecordBytes: cstats.AvgRecordBytes,
		APICalls:       snapshot.APICalls,
		ErrorCount:     snapshot.ErrorCount,
		UptimeSeconds:  int64(s.stats.Uptime().Seconds()),
	}, nil
}

func (s *Service) checkLimit(clientKey string) error {
	if s.limiter.IsLimited(clientKey) {
		return fmt.Errorf("%w: %s", ErrRateLimited, s.limiter.Limit())
	}
	return nil
}

// publishRecord emits a record event. Publish failures are logged and never
// surfaced: the store write already succeeded.
func (s *Service) publishRecord(ctx context.Context, eventType, id string, batch bool, metadata map[string]any) {
	event := &eventstream.RecordEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			Service:    "prism",
			Collection: s.collection,
		},
		Record: eventstream.RecordMeta{
			ID:       id,
			Batch:    batch,
			Metadata: metadata,
		},
	}

	if err := s.publisher.PublishRecord(ctx, event); err != nil {
		s.logger.Warn("failed publishing record event",
			zap.String("event_type", eventType),
			zap.String("record_id", id),
			zap.Error(err),
		)
	}
}

// decodeImage strips an optional data-URI prefix and base64-decodes the
// payload.
func decodeImage(imageData string) ([]byte, error) {
	if imageData == "" {
		return nil, fmt.Errorf("%w: image data is required", embeddings.ErrInvalidImage)
	}

	if strings.HasPrefix(imageData, "data:") {
		if idx := strings.Index(imageData, ";base64,"); idx >= 0 {
			imageData = imageData[idx+len(";base64,"):]
		}
	}

	raw, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding base64 image: %v", embeddings.ErrInvalidImage, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image data", embeddings.ErrInvalidImage)
	}

	return raw, nil
}
