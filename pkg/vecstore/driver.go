package vecstore

import "context"

// Driver is the storage backend contract. Implementations live in
// subpackages (qdrant, sqlitevec, inmemory) and must be safe for concurrent
// use; the Client layers state tracking, retries, and validation on top and
// never calls a driver method it doesn't own the semantics of.
type Driver interface {
	// Connect establishes the connection handle. Called once per (re)connect
	// attempt; implementations should release any half-open state on error.
	Connect(ctx context.Context) error

	// Ping is a lightweight liveness probe of an established handle.
	Ping(ctx context.Context) error

	// EnsureCollection creates the collection and its index if absent, or
	// verifies them if present. Idempotent.
	EnsureCollection(ctx context.Context, schema Schema) error

	// Insert appends records. Vector dimensions are validated by the caller.
	// Drivers that enforce primary-key uniqueness natively return
	// ErrDuplicateID for a duplicate; drivers that upsert document that.
	Insert(ctx context.Context, records []Record) error

	// Flush forces durability of prior inserts. No-op where the backend
	// makes writes durable on acknowledgement.
	Flush(ctx context.Context) error

	// Load brings the collection into the serving path before the first
	// search. No-op where the backend serves directly from storage.
	Load(ctx context.Context) error

	// Search returns up to topK results ordered best similarity first.
	// A nil filter means unfiltered.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error)

	// GetByID returns the record or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Record, error)

	// DeleteByID removes the record, reporting whether anything was deleted.
	DeleteByID(ctx context.Context, id string) (bool, error)

	// Stats reports RecordCount and StorageBytes; AvgRecordBytes is derived
	// by the client.
	Stats(ctx context.Context) (*CollectionStats, error)

	// Close releases the connection handle.
	Close() error
}
