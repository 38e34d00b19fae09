package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PGQueue implements Queue against the queue_messages table.
//
// Dequeue uses FOR UPDATE SKIP LOCKED so concurrent worker instances never
// block each other or double-claim a message inside the visibility window.
type PGQueue struct{ db *sql.DB }

// NewPGQueue creates a Postgres-backed queue.
func NewPGQueue(db *sql.DB) *PGQueue { return &PGQueue{db: db} }

func (q *PGQueue) Enqueue(ctx context.Context, name string, body any, delay time.Duration) (int64, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: marshal: %w", name, err)
	}
	var id int64
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO queue_messages (queue_name, payload, vt, read_ct, enqueued_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second', 0, NOW())
		RETURNING id
	`, name, payload, delay.Seconds()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return id, nil
}

func (q *PGQueue) DequeueBatch(ctx context.Context, name string, batchSize int, visibilityTimeout time.Duration) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, `
		WITH claimed AS (
			SELECT id FROM queue_messages
			WHERE queue_name = $1 AND vt <= NOW()
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET vt = NOW() + $3 * INTERVAL '1 second', read_ct = m.read_ct + 1
		FROM claimed c
		WHERE m.id = c.id
		RETURNING m.id, m.payload, m.read_ct, m.enqueued_at, m.vt
	`, name, batchSize, visibilityTimeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", name, err)
	}
	defer rows.Close()

	var batch []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Payload, &m.ReadCount, &m.EnqueuedAt, &m.VisibleAt); err != nil {
			return nil, fmt.Errorf("dequeue %s: scan: %w", name, err)
		}
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", name, err)
	}
	return batch, nil
}

func (q *PGQueue) DeleteMessage(ctx context.Context, name string, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE queue_name = $1 AND id = $2`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", name, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// QueueMetrics reports per-queue depth for every queue that currently holds
// messages.
func (q *PGQueue) QueueMetrics(ctx context.Context) ([]Metrics, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT queue_name,
			COUNT(*) FILTER (WHERE vt <= NOW()) AS visible,
			COUNT(*) AS total,
			MIN(enqueued_at) AS oldest
		FROM queue_messages
		GROUP BY queue_name
		ORDER BY queue_name
	`)
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}
	defer rows.Close()

	var out []Metrics
	for rows.Next() {
		var m Metrics
		var oldest sql.NullTime
		if err := rows.Scan(&m.Queue, &m.Visible, &m.Total, &oldest); err != nil {
			return nil, fmt.Errorf("queue metrics: scan: %w", err)
		}
		if oldest.Valid {
			t := oldest.Time
			m.OldestAge = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
