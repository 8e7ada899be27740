package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordIngested is emitted after a record is persisted in the
	// vector store.
	EventTypeRecordIngested = "prism.record.ingested"

	// EventTypeRecordDeleted is emitted after a record is removed from the
	// vector store.
	EventTypeRecordDeleted = "prism.record.deleted"
)

// RecordEvent is a transport-neutral event payload for a vector store
// record change.
type RecordEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Record        RecordMeta  `json:"record"`
}

// EventSource identifies the service instance that emitted the event.
type EventSource struct {
	Service    string `json:"service"`
	Collection string `json:"collection"`
}

// RecordMeta captures record metadata for the event.
type RecordMeta struct {
	ID       string         `json:"id"`
	Batch    bool           `json:"batch,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
