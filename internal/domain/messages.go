package domain

import "encoding/json"

// Submission is the raw lead payload accepted by the ingress API and carried
// on submission_queue. Ingress guarantees at least one of Email, FullName or
// Phone is non-empty before it enqueues.
type Submission struct {
	Email    string          `json:"email,omitempty"`
	FullName string          `json:"full_name,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// HasIdentifier reports whether the submission carries at least one identity
// field. Submissions without any identifier cannot be resolved.
func (s Submission) HasIdentifier() bool {
	return s.Email != "" || s.FullName != "" || s.Phone != ""
}

// RoutingMessage is a submission annotated with its resolved identity. It is
// carried on routing_queue and on every route_<partner>_queue.
type RoutingMessage struct {
	Submission
	PersonID string `json:"person_id"`
	AliasID  string `json:"alias_id,omitempty"`
}

// DeadLetter wraps a message that exhausted its retries or failed validation,
// preserving the original payload and the error text for manual inspection.
type DeadLetter struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

// CompileSignal is the payload on compile_queue. Its content is informational;
// any message on the queue triggers a full recompile from the rule table.
type CompileSignal struct {
	RequestedAt string `json:"requested_at,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
