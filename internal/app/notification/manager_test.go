package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recordingStream) Send(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingStream) received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

type blockedStream struct{}

func (blockedStream) Send(Message) error {
	time.Sleep(2 * time.Second)
	return nil
}

func TestManager_BroadcastReachesAllSubscribers(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)

	m.Broadcast(Message{Type: "playback_status", Payload: "p"})

	require.Len(t, a.received(), 1)
	require.Len(t, b.received(), 1)
	assert.Equal(t, uint64(1), a.received()[0].SequenceNo)
}

func TestManager_SequenceNumbersIncrease(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	m.Subscribe(s)

	m.Broadcast(Message{Type: "a"})
	m.Broadcast(Message{Type: "b"})
	m.Broadcast(Message{Type: "c"})

	msgs := s.received()
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(1), msgs[0].SequenceNo)
	assert.Equal(t, uint64(2), msgs[1].SequenceNo)
	assert.Equal(t, uint64(3), msgs[2].SequenceNo)
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)
	require.Equal(t, 1, m.SubscriberCount())

	m.Unsubscribe(id)
	assert.Equal(t, 0, m.SubscriberCount())

	m.Broadcast(Message{Type: "a"})
	assert.Empty(t, s.received())
}

func TestManager_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	m := NewManager()
	fast := &recordingStream{}
	m.Subscribe(blockedStream{})
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(Message{Type: "a"})
	assert.Less(t, time.Since(start), 1500*time.Millisecond, "broadcast bounded by the send timeout")
	assert.Len(t, fast.received(), 1)
}
