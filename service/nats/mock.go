package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu             sync.RWMutex
	transferEvents []*TransferEvent
	balanceEvents  []*BalanceEvent
	publishError   error
	closed         bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishTransfer records the event and returns any configured error.
func (m *MockPublisher) PublishTransfer(ctx context.Context, event *TransferEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.transferEvents = append(m.transferEvents, event)
	return nil
}

// PublishBalance records the event and returns any configured error.
func (m *MockPublisher) PublishBalance(ctx context.Context, event *BalanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.balanceEvents = append(m.balanceEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// TransferEvents returns all published transfer events.
func (m *MockPublisher) TransferEvents() []*TransferEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TransferEvent, len(m.transferEvents))
	copy(events, m.transferEvents)
	return events
}

// BalanceEvents returns all published balance events.
func (m *MockPublisher) BalanceEvents() []*BalanceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*BalanceEvent, len(m.balanceEvents))
	copy(events, m.balanceEvents)
	return events
}

// SetPublishError configures the mock to return an error on publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
