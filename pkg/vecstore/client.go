package vecstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Config holds client construction parameters. Zero values for ChunkSize and
// MaxTopK fall back to the package defaults.
type Config struct {
	// Schema describes the collection the client provisions on connect.
	Schema Schema

	// ChunkSize bounds how many records go into one batch-insert submission.
	ChunkSize int

	// MaxTopK bounds the topK a single search may request.
	MaxTopK int

	// ConnectPolicy and OperationPolicy override the default retry
	// policies. Zero-valued policies use the defaults.
	ConnectPolicy Policy

	OperationPolicy Policy
}

// Client owns the single shared connection to the vector store. It tracks
// ConnectionState, applies the retry policies, validates dimensions and ids,
// chunks batch ingestion, and lazily loads the collection before the first
// search. Safe for concurrent use: state transitions are serialized while
// data operations proceed concurrently once connected.
type Client struct {
	driver Driver
	config Config
	logger *zap.Logger

	connectPolicy Policy
	opPolicy      Policy

	// mu guards state and loaded. Driver handles are expected to be safe
	// for concurrent calls, so data operations only take the read side.
	mu     sync.RWMutex
	state  ConnectionState
	loaded bool
}

// NewClient creates a client over the given driver. The schema must name a
// collection and a positive dimension.
func NewClient(config Config, driver Driver, logger *zap.Logger) (*Client, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidArgument)
	}
	if config.Schema.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidArgument)
	}
	if config.Schema.Dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", ErrInvalidArgument)
	}

	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.MaxTopK <= 0 {
		config.MaxTopK = DefaultMaxTopK
	}

	connectPolicy := config.ConnectPolicy
	if connectPolicy.MaxAttempts == 0 {
		connectPolicy = ConnectPolicy()
	}
	opPolicy := config.OperationPolicy
	if opPolicy.MaxAttempts == 0 {
		opPolicy = OperationPolicy()
	}

	return &Client{
		driver:        driver,
		config:        config,
		logger:        logger,
		connectPolicy: connectPolicy,
		opPolicy:      opPolicy,
		state:         Disconnected,
	}, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect is idempotent: a healthy existing handle is reused. Otherwise it
// dials the store and ensures the collection and its index exist, retrying
// the whole sequence on transient failures.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.state == Connected {
		if err := c.driver.Ping(ctx); err == nil {
			return nil
		}
		c.setState(Degraded)
		c.logger.Warn("connection unhealthy, reconnecting",
			zap.String("collection", c.config.Schema.Collection),
		)
	}

	c.setState(Connecting)

	err := c.connectPolicy.Do(ctx, c.logger, "connect", func() error {
		if err := c.driver.Connect(ctx); err != nil {
			return err
		}
		return c.driver.EnsureCollection(ctx, c.config.Schema)
	})
	if err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("connecting to vector store: %w", err)
	}

	c.setState(Connected)
	c.loaded = false
	c.logger.Info("connected to vector store",
		zap.String("collection", c.config.Schema.Collection),
		zap.Int("dimension", c.config.Schema.Dimension),
	)

	return nil
}

// Disconnect releases the connection handle. Idempotent; never errors on an
// already-disconnected client.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Disconnected {
		return nil
	}

	if err := c.driver.Close(); err != nil {
		c.logger.Warn("closing vector store driver", zap.Error(err))
	}

	c.setState(Disconnected)
	c.loaded = false

	return nil
}

// Insert appends one record and forces a durability flush before returning.
// The record's vector must match the schema dimension. Uniqueness is the
// caller's responsibility; drivers that reject duplicates natively surface
// ErrDuplicateID.
func (c *Client) Insert(ctx context.Context, rec Record) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}
	if err := c.validateVector(rec.Vector); err != nil {
		return err
	}
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	err := c.opPolicy.Do(ctx, c.logger, "insert", func() error {
		if err := c.driver.Insert(ctx, []Record{rec}); err != nil {
			return err
		}
		return c.driver.Flush(ctx)
	})
	if err != nil {
		return fmt.Errorf("inserting record %q: %w", rec.ID, err)
	}

	c.logger.Debug("inserted record", zap.String("id", rec.ID))

	return nil
}

// BatchInsert splits records into chunks and inserts them in input order,
// with a single flush after all chunks. Every record is validated before any
// store call. On chunk failure the operation aborts with a *BatchError
// reporting which ids were durably inserted and which were never attempted;
// prior chunks are never rolled back.
func (c *Client) BatchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		if err := validateID(rec.ID); err != nil {
			return err
		}
		if err := c.validateVector(rec.Vector); err != nil {
			return fmt.Errorf("record %q: %w", rec.ID, err)
		}
	}

	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	var inserted []string
	for start := 0; start < len(records); start += c.config.ChunkSize {
		end := start + c.config.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		err := c.opPolicy.Do(ctx, c.logger, "batch_insert", func() error {
			return c.driver.Insert(ctx, chunk)
		})
		if err != nil {
			// Completed chunks stay; make them durable best-effort.
			if len(inserted) > 0 {
				if flushErr := c.driver.Flush(ctx); flushErr != nil {
					c.logger.Warn("flushing after aborted batch", zap.Error(flushErr))
				}
			}
			return c.batchError(records, inserted, start, err)
		}

		for _, rec := range chunk {
			inserted = append(inserted, rec.ID)
		}
	}

	err := c.opPolicy.Do(ctx, c.logger, "flush", func() error {
		return c.driver.Flush(ctx)
	})
	if err != nil {
		return c.batchError(records, inserted, len(records), fmt.Errorf("flushing batch: %w", err))
	}

	c.logger.Debug("batch inserted records",
		zap.Int("count", len(records)),
		zap.Int("chunk_size", c.config.ChunkSize),
	)

	return nil
}

func (c *Client) batchError(records []Record, inserted []string, failedAt int, err error) *BatchError {
	notAttempted := make([]string, 0, len(records)-failedAt)
	for _, rec := range records[failedAt:] {
		notAttempted = append(notAttempted, rec.ID)
	}

	return &BatchError{
		Inserted:     inserted,
		NotAttempted: notAttempted,
		Err:          err,
	}
}

// Search returns up to topK results, best similarity first, optionally
// constrained by a metadata filter. The collection is loaded into the
// serving path lazily, once per connected session.
func (c *Client) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	if err := c.validateVector(vector); err != nil {
		return nil, err
	}
	if topK < 1 || topK > c.config.MaxTopK {
		return nil, fmt.Errorf("%w: topK %d out of range [1, %d]", ErrInvalidArgument, topK, c.config.MaxTopK)
	}

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	var results []SearchResult
	err := c.opPolicy.Do(ctx, c.logger, "search", func() error {
		var err error
		results, err = c.driver.Search(ctx, vector, topK, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection: %w", err)
	}

	// Drivers are trusted for ordering but not for length.
	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// GetByID returns the record or a wrapped ErrNotFound.
func (c *Client) GetByID(ctx context.Context, id string) (*Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	var rec *Record
	err := c.opPolicy.Do(ctx, c.logger, "get_by_id", func() error {
		var err error
		rec, err = c.driver.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting record %q: %w", id, err)
	}

	return rec, nil
}

// DeleteByID removes the record, reporting whether anything was deleted.
func (c *Client) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	if err := c.ensureConnected(ctx); err != nil {
		return false, err
	}

	var deleted bool
	err := c.opPolicy.Do(ctx, c.logger, "delete_by_id", func() error {
		var err error
		deleted, err = c.driver.DeleteByID(ctx, id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("deleting record %q: %w", id, err)
	}

	return deleted, nil
}

// Stats reports collection statistics with AvgRecordBytes derived from the
// driver's counts.
func (c *Client) Stats(ctx context.Context) (*CollectionStats, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	var stats *CollectionStats
	err := c.opPolicy.Do(ctx, c.logger, "stats", func() error {
		var err error
		stats, err = c.driver.Stats(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading collection stats: %w", err)
	}

	if stats.RecordCount > 0 {
		stats.AvgRecordBytes = stats.StorageBytes / stats.RecordCount
	} else {
		stats.AvgRecordBytes = 0
	}

	return stats, nil
}

// ensureConnected transparently reconnects when the client is not Connected.
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()

	if state == Connected {
		return nil
	}

	return c.Connect(ctx)
}

// ensureLoaded runs the driver's Load once per connected session.
func (c *Client) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()

	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}

	err := c.opPolicy.Do(ctx, c.logger, "load", func() error {
		return c.driver.Load(ctx)
	})
	if err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}

	c.loaded = true

	return nil
}

// setState must be called with mu held.
func (c *Client) setState(state ConnectionState) {
	if c.state == state {
		return
	}

	c.logger.Debug("connection state changed",
		zap.String("from", string(c.state)),
		zap.String("to", string(state)),
	)
	c.state = state
}

func (c *Client) validateVector(vector []float32) error {
	if len(vector) != c.config.Schema.Dimension {
		return fmt.Errorf("%w: vector dimension %d, want %d",
			ErrInvalidArgument, len(vector), c.config.Schema.Dimension)
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalidArgument)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: record id exceeds %d characters", ErrInvalidArgument, MaxIDLength)
	}
	return nil
}
