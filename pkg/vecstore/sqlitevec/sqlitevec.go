// Package sqlitevec provides an embedded vector store driver backed by
// SQLite with the sqlite-vec extension. One collection per database file.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/vecstore"
)

// Config holds configuration for the sqlite-vec driver.
type Config struct {
	// Path is the SQLite database file. Use ":memory:" for an in-memory
	// database.
	Path string
}

// Driver implements vecstore.Driver on a local SQLite database. Vectors live
// in a vec0 virtual table keyed by rowid; record ids and metadata live in a
// companion table whose UNIQUE constraint enforces primary-key uniqueness,
// so duplicate inserts surface as ErrDuplicateID.
type Driver struct {
	config Config
	logger *zap.Logger

	db     *sql.DB
	schema vecstore.Schema
}

// NewDriver validates the config. The database opens on Connect.
func NewDriver(config Config, logger *zap.Logger) (*Driver, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &Driver{
		config: config,
		logger: logger,
	}, nil
}

// Connect opens the database and verifies the sqlite-vec extension loads.
func (d *Driver) Connect(ctx context.Context) error {
	if d.db != nil {
		return nil
	}

	// enable connections to have the sqlite-vec extension
	sqlite_vec.Auto()

	db, err := sql.Open("sqlite3", d.config.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	var vecVersion string
	if err := db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return fmt.Errorf("sqlite-vec not available: %w", err)
	}

	d.db = db
	d.logger.Info("sqlite-vec driver connected",
		zap.String("path", d.config.Path),
		zap.String("vec_version", vecVersion),
	)

	return nil
}

// Ping probes the database handle.
func (d *Driver) Ping(ctx context.Context) error {
	if d.db == nil {
		return vecstore.ErrNotConnected
	}
	return d.db.PingContext(ctx)
}

// EnsureCollection creates the record and vector tables if absent.
// Idempotent; index parameters are fixed by the vec0 DDL and never migrated.
func (d *Driver) EnsureCollection(ctx context.Context, schema vecstore.Schema) error {
	if d.db == nil {
		return vecstore.ErrNotConnected
	}

	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL UNIQUE,
			metadata TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("creating records table: %w", mapSQLiteError(err))
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS record_vectors USING vec0(embedding float[%d] distance_metric=%s)`,
		schema.Dimension, distanceMetric(schema.Index.Metric),
	)
	if _, err := d.db.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("creating vec0 table: %w", mapSQLiteError(err))
	}

	d.schema = schema

	return nil
}

// Insert appends records in one transaction, so a failed chunk leaves
// nothing behind. Duplicate record ids roll the whole chunk back with
// ErrDuplicateID.
func (d *Driver) Insert(ctx context.Context, records []vecstore.Record) error {
	if d.db == nil {
		return vecstore.ErrNotConnected
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	for _, rec := range records {
		metadata, err := marshalMetadata(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for record %s: %w", rec.ID, err)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO records(record_id, metadata) VALUES (?, ?)`,
			rec.ID, metadata,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.ID, mapSQLiteError(err))
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for record %s: %w", rec.ID, err)
		}

		embBlob, err := serializeFloat32(rec.Vector)
		if err != nil {
			return fmt.Errorf("serializing vector for record %s: %w", rec.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_vectors(rowid, embedding) VALUES (?, ?)`,
			rowID, embBlob,
		); err != nil {
			return fmt.Errorf("inserting vector for record %s: %w", rec.ID, mapSQLiteError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", mapSQLiteError(err))
	}

	d.logger.Debug("inserted records", zap.Int("count", len(records)))

	return nil
}

// Flush is a no-op: SQLite makes writes durable at commit.
func (d *Driver) Flush(_ context.Context) error {
	return nil
}

// Load is a no-op: vec0 tables serve directly from storage.
func (d *Driver) Load(_ context.Context) error {
	return nil
}

// Search runs a KNN scan over the vec0 table. Metadata conditions are
// applied to the candidate set after the scan, so filtered searches
// over-fetch candidates to keep topK results available.
func (d *Driver) Search(ctx context.Context, vector []float32, topK int, filter *vecstore.Filter) ([]vecstore.SearchResult, error) {
	if d.db == nil {
		return nil, vecstore.ErrNotConnected
	}

	queryBlob, err := serializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	candidateK := topK
	if !filter.IsEmpty() {
		candidateK = topK * 10
	}

	var conds []string
	args := []any{queryBlob, candidateK}
	for _, cond := range filter.Conditions() {
		// The JSON path is assembled from a bound parameter, never
		// interpolated, so quote characters stay data.
		conds = append(conds, `json_extract(r.metadata, '$.' || ?) = ?`)
		args = append(args, cond.Field, bindValue(cond.Value))
	}

	query := `
		SELECT r.record_id, r.metadata, v.distance
		FROM record_vectors v
		INNER JOIN records r ON r.rowid = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ?
	`
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY v.distance"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var results []vecstore.SearchResult
	for rows.Next() {
		var (
			id       string
			metadata sql.NullString
			distance float64
		)
		if err := rows.Scan(&id, &metadata, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		meta, err := unmarshalMetadata(metadata)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata for record %s: %w", id, err)
		}

		results = append(results, vecstore.SearchResult{
			ID:         id,
			Similarity: similarityFromDistance(d.schema.Index.Metric, distance),
			Metadata:   meta,
		})

		if len(results) == topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	return results, nil
}

// GetByID returns the record or ErrNotFound.
func (d *Driver) GetByID(ctx context.Context, id string) (*vecstore.Record, error) {
	if d.db == nil {
		return nil, vecstore.ErrNotConnected
	}

	var (
		rowID    int64
		metadata sql.NullString
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT rowid, metadata FROM records WHERE record_id = ?`, id,
	).Scan(&rowID, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", vecstore.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %s: %w", id, mapSQLiteError(err))
	}

	meta, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata for record %s: %w", id, err)
	}

	rec := &vecstore.Record{ID: id, Metadata: meta}

	var embBlob []byte
	err = d.db.QueryRowContext(ctx,
		`SELECT embedding FROM record_vectors WHERE rowid = ?`, rowID,
	).Scan(&embBlob)
	if err == nil && len(embBlob) > 0 {
		rec.Vector, err = deserializeFloat32(embBlob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for record %s: %w", id, err)
		}
	}

	return rec, nil
}

// DeleteByID removes the record and its vector, reporting whether anything
// was deleted.
func (d *Driver) DeleteByID(ctx context.Context, id string) (bool, error) {
	if d.db == nil {
		return false, vecstore.ErrNotConnected
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	var rowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM records WHERE record_id = ?`, id,
	).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying record %s: %w", id, mapSQLiteError(err))
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_vectors WHERE rowid = ?`, rowID,
	); err != nil {
		return false, fmt.Errorf("deleting vector for record %s: %w", id, mapSQLiteError(err))
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE rowid = ?`, rowID,
	); err != nil {
		return false, fmt.Errorf("deleting record %s: %w", id, mapSQLiteError(err))
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", mapSQLiteError(err))
	}

	return true, nil
}

// Stats reports the record count and the database's page footprint.
func (d *Driver) Stats(ctx context.Context) (*vecstore.CollectionStats, error) {
	if d.db == nil {
		return nil, vecstore.ErrNotConnected
	}

	var count int64
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records`,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting records: %w", mapSQLiteError(err))
	}

	var pageCount, pageSize int64
	if err := d.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("reading page count: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("reading page size: %w", err)
	}

	return &vecstore.CollectionStats{
		RecordCount:  count,
		StorageBytes: pageCount * pageSize,
	}, nil
}

// Close releases the database handle. Idempotent.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil
	return err
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) ([]byte, error) {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// deserializeFloat32 converts a little-endian BLOB back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func marshalMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalMetadata(metadata sql.NullString) (map[string]any, error) {
	if !metadata.Valid || metadata.String == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// bindValue normalizes filter values for comparison against json_extract
// output: booleans become SQLite's 1/0 JSON representation.
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// distanceMetric maps schema metrics onto vec0 options. sqlite-vec supports
// cosine and L2; dot-metric schemas fall back to cosine.
func distanceMetric(metric string) string {
	switch metric {
	case "euclidean":
		return "L2"
	default:
		return "cosine"
	}
}

// similarityFromDistance converts vec0 distances to higher-is-better scores:
// cosine distance inverts around 1, L2 decays toward 0.
func similarityFromDistance(metric string, distance float64) float32 {
	switch metric {
	case "euclidean":
		return float32(1.0 / (1.0 + distance))
	default:
		return float32(1.0 - distance)
	}
}

// mapSQLiteError classifies native SQLite errors: UNIQUE violations are
// duplicate ids, busy/locked databases are transient.
func mapSQLiteError(err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return err
	}

	switch {
	case serr.ExtendedCode == sqlite3.ErrConstraintUnique,
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", vecstore.ErrDuplicateID, err)
	case serr.Code == sqlite3.ErrBusy, serr.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", vecstore.ErrUnavailable, err)
	default:
		return err
	}
}

// Ensure Driver implements vecstore.Driver
var _ vecstore.Driver = (*Driver)(nil)
