// Package inmemory provides a map-backed vector store driver for tests and
// local bring-up. Search scores every record, so it is only suitable for
// small collections.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/keyframeco/prism/pkg/vecstore"
)

// Driver implements vecstore.Driver with an in-process map. Records survive
// Close so a reconnect sees the same collection, mirroring a persistent
// store within one process lifetime.
type Driver struct {
	mu        sync.RWMutex
	records   map[string]vecstore.Record
	schema    vecstore.Schema
	connected bool
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]vecstore.Record),
	}
}

// Connect marks the driver usable.
func (d *Driver) Connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

// Ping reports liveness.
func (d *Driver) Ping(_ context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected {
		return vecstore.ErrNotConnected
	}
	return nil
}

// EnsureCollection records the schema. Idempotent.
func (d *Driver) EnsureCollection(_ context.Context, schema vecstore.Schema) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schema = schema
	return nil
}

// Insert appends records, rejecting duplicate ids with ErrDuplicateID.
func (d *Driver) Insert(_ context.Context, records []vecstore.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return vecstore.ErrNotConnected
	}

	for _, rec := range records {
		if _, exists := d.records[rec.ID]; exists {
			return fmt.Errorf("%w: %s", vecstore.ErrDuplicateID, rec.ID)
		}
	}

	for _, rec := range records {
		d.records[rec.ID] = copyRecord(rec)
	}

	return nil
}

// Flush is a no-op; writes are immediately visible.
func (d *Driver) Flush(_ context.Context) error {
	return nil
}

// Load is a no-op; the map is always the serving path.
func (d *Driver) Load(_ context.Context) error {
	return nil
}

// Search brute-force scores every record by the schema metric and returns
// the best topK matches.
func (d *Driver) Search(_ context.Context, vector []float32, topK int, filter *vecstore.Filter) ([]vecstore.SearchResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return nil, vecstore.ErrNotConnected
	}

	results := make([]vecstore.SearchResult, 0, len(d.records))
	for _, rec := range d.records {
		if !matchesFilter(rec, filter) {
			continue
		}

		results = append(results, vecstore.SearchResult{
			ID:         rec.ID,
			Similarity: similarity(d.schema.Index.Metric, vector, rec.Vector),
			Metadata:   copyMetadata(rec.Metadata),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// GetByID returns a copy of the record or ErrNotFound.
func (d *Driver) GetByID(_ context.Context, id string) (*vecstore.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return nil, vecstore.ErrNotConnected
	}

	rec, ok := d.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vecstore.ErrNotFound, id)
	}

	out := copyRecord(rec)
	return &out, nil
}

// DeleteByID removes the record, reporting whether it existed.
func (d *Driver) DeleteByID(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return false, vecstore.ErrNotConnected
	}

	_, ok := d.records[id]
	if !ok {
		return false, nil
	}

	delete(d.records, id)
	return true, nil
}

// Stats estimates storage as id bytes + vector bytes + serialized metadata.
func (d *Driver) Stats(_ context.Context) (*vecstore.CollectionStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return nil, vecstore.ErrNotConnected
	}

	var bytes int64
	for _, rec := range d.records {
		bytes += int64(len(rec.ID)) + int64(4*len(rec.Vector))
		if rec.Metadata != nil {
			if raw, err := json.Marshal(rec.Metadata); err == nil {
				bytes += int64(len(raw))
			}
		}
	}

	return &vecstore.CollectionStats{
		RecordCount:  int64(len(d.records)),
		StorageBytes: bytes,
	}, nil
}

// Close marks the driver disconnected. Records are retained.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func copyRecord(rec vecstore.Record) vecstore.Record {
	out := vecstore.Record{ID: rec.ID}
	out.Vector = make([]float32, len(rec.Vector))
	copy(out.Vector, rec.Vector)
	out.Metadata = copyMetadata(rec.Metadata)
	return out
}

func copyMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// matchesFilter applies the equality conjunction against record metadata.
func matchesFilter(rec vecstore.Record, filter *vecstore.Filter) bool {
	for _, cond := range filter.Conditions() {
		got, ok := rec.Metadata[cond.Field]
		if !ok || !equalValue(got, cond.Value) {
			return false
		}
	}
	return true
}

// equalValue compares scalars with numeric normalization, so an int filter
// value matches a float64 that arrived through JSON decoding.
func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// similarity converts the configured metric into a higher-is-better score.
func similarity(metric string, a, b []float32) float32 {
	switch metric {
	case "euclidean":
		var sum float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return float32(1.0 / (1.0 + math.Sqrt(sum)))
	case "dot":
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(dot)
	default: // cosine
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
	}
}

// Ensure Driver implements vecstore.Driver
var _ vecstore.Driver = (*Driver)(nil)
