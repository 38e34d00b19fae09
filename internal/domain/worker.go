package domain

import "time"

// WorkerStatus enumerates the liveness states reported by the queue harness.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerIdle     WorkerStatus = "idle"
	WorkerBusy     WorkerStatus = "busy"
	WorkerDead     WorkerStatus = "dead"
	WorkerDisabled WorkerStatus = "disabled"
)

// WorkerState is the liveness row maintained by the harness heartbeat and
// read by operators to detect stalled workers. Setting Status to disabled
// out of band acts as a kill-switch: the harness refuses to run the worker.
type WorkerState struct {
	Name      string       `json:"name" db:"name"`
	Status    WorkerStatus `json:"status" db:"status"`
	LastSeen  time.Time    `json:"last_seen" db:"last_seen"`
	StoppedAt *time.Time   `json:"stopped_at,omitempty" db:"stopped_at"`
}
