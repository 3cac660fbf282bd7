// Package notification provides the broadcast manager that fans signals out
// to connected clients.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is a single outbound signal. SequenceNo is stamped by the manager
// at broadcast time so clients can detect gaps.
type Message struct {
	Type       string
	SequenceNo uint64
	Payload    any
}

// Stream represents an outbound delivery path for one subscriber.
type Stream interface {
	Send(Message) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new broadcast manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the message with the next sequence number and sends it to
// all subscribers. Each stream send runs in a goroutine with a timeout so one
// slow client cannot stall the rest.
func (m *Manager) Broadcast(msg Message) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	msg.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding the lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(msg)
			}()

			select {
			case <-done:
				// Send errors are ignored; a dead subscriber is removed when
				// its connection closes.
			case <-ctx.Done():
				// Timeout, continue with the other subscribers
			}
		}(sub)
	}
	wg.Wait()
}

// Send sends a message to a specific subscriber. Unknown subscription IDs
// are ignored.
func (m *Manager) Send(subscriptionID string, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil
	}
	return sub.stream.Send(msg)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
