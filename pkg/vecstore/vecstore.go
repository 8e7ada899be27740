// Package vecstore provides the client layer over a vector database:
// connection lifecycle with retry/backoff, idempotent collection and index
// provisioning, chunked batch ingestion, and filtered similarity search.
// Storage backends implement the Driver interface in subpackages.
package vecstore

const (
	// DefaultDimension is the embedding vector length used when none is
	// configured (CLIP-style image embeddings).
	DefaultDimension = 512

	// DefaultChunkSize is the number of records per batch-insert chunk.
	DefaultChunkSize = 100

	// DefaultMaxTopK caps how many results a single search may request.
	DefaultMaxTopK = 100

	// MaxIDLength is the maximum record ID length accepted by the schema.
	MaxIDLength = 100
)

// ConnectionState tracks the client's relationship to the store. Owned
// exclusively by Client; mutated only by its connect/disconnect paths.
type ConnectionState string

const (
	// Disconnected means no usable connection handle exists.
	Disconnected ConnectionState = "disconnected"

	// Connecting means a connection attempt is in progress.
	Connecting ConnectionState = "connecting"

	// Connected means the handle is established and the collection is provisioned.
	Connected ConnectionState = "connected"

	// Degraded means the handle exists but the last liveness probe failed;
	// a reconnect follows immediately.
	Degraded ConnectionState = "degraded"
)

// Record is one stored item: a unique ID, its embedding vector, and optional
// JSON-like metadata.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is one similarity hit, best first.
type SearchResult struct {
	ID         string         `json:"id"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CollectionStats reports store-level collection statistics.
type CollectionStats struct {
	RecordCount    int64 `json:"record_count"`
	StorageBytes   int64 `json:"storage_bytes"`
	AvgRecordBytes int64 `json:"avg_record_bytes"`
}

// IndexParams fixes the similarity index at collection creation. Parameters
// are never migrated automatically; changing them requires a new collection.
type IndexParams struct {
	// Type names the index structure, e.g. "hnsw" or "ivf_flat".
	// Drivers map unknown types onto their nearest native equivalent.
	Type string

	// Metric is the distance metric: "cosine", "euclidean" or "dot".
	Metric string

	// BuildParam is the index build knob (nlist for IVF, M for HNSW).
	BuildParam int
}

// Schema describes the collection a client provisions on connect: an ID
// primary key (≤ MaxIDLength chars), a vector field of the fixed dimension,
// and a JSON metadata field.
type Schema struct {
	Collection string
	Dimension  int
	Index      IndexParams
}
