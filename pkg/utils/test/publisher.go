package testutils

import (
	"context"
	"sync"

	"github.com/keyframeco/prism/pkg/eventstream"
)

// MockPublisher is a test publisher that records published events
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.RecordEvent

	// FailWith causes PublishRecord to return this error
	FailWith error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishRecord(_ context.Context, event *eventstream.RecordEvent) error {
	if event == nil {
		return eventstream.ErrNilRecordEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// PublishedEvents returns a copy of the events published so far.
func (m *MockPublisher) PublishedEvents() []*eventstream.RecordEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]*eventstream.RecordEvent, len(m.events))
	copy(events, m.events)
	return events
}

// Ensure MockPublisher implements eventstream.Publisher
var _ eventstream.Publisher = (*MockPublisher)(nil)
