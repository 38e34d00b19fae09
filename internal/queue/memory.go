package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Queue used by tests and local development. It
// honors the same visibility-timeout semantics as the Postgres queue.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	queues map[string][]*memMessage
	now    func() time.Time
}

type memMessage struct {
	id         int64
	payload    json.RawMessage
	readCt     int
	enqueuedAt time.Time
	vt         time.Time
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{queues: map[string][]*memMessage{}, now: time.Now}
}

// SetClock overrides the time source so tests can advance visibility
// deadlines without sleeping.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) Enqueue(_ context.Context, name string, body any, delay time.Duration) (int64, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: marshal: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.now()
	m.queues[name] = append(m.queues[name], &memMessage{
		id:         m.nextID,
		payload:    payload,
		enqueuedAt: now,
		vt:         now.Add(delay),
	})
	return m.nextID, nil
}

func (m *Memory) DequeueBatch(_ context.Context, name string, batchSize int, visibilityTimeout time.Duration) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var batch []Message
	for _, msg := range m.queues[name] {
		if len(batch) >= batchSize {
			break
		}
		if msg.vt.After(now) {
			continue
		}
		msg.readCt++
		msg.vt = now.Add(visibilityTimeout)
		batch = append(batch, Message{
			ID:         msg.id,
			Payload:    append(json.RawMessage(nil), msg.payload...),
			ReadCount:  msg.readCt,
			EnqueuedAt: msg.enqueuedAt,
			VisibleAt:  msg.vt,
		})
	}
	return batch, nil
}

func (m *Memory) DeleteMessage(_ context.Context, name string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queues[name]
	for i, msg := range msgs {
		if msg.id == id {
			m.queues[name] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// QueueMetrics reports depths across all in-memory queues.
func (m *Memory) QueueMetrics(_ context.Context) ([]Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	names := make([]string, 0, len(m.queues))
	for name, msgs := range m.queues {
		if len(msgs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []Metrics
	for _, name := range names {
		msgs := m.queues[name]
		met := Metrics{Queue: name, Total: len(msgs)}
		for _, msg := range msgs {
			if !msg.vt.After(now) {
				met.Visible++
			}
			if met.OldestAge == nil || msg.enqueuedAt.Before(*met.OldestAge) {
				t := msg.enqueuedAt
				met.OldestAge = &t
			}
		}
		out = append(out, met)
	}
	return out, nil
}

// Size returns the number of messages (visible or not) in the named queue.
func (m *Memory) Size(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[name])
}
