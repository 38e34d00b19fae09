package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/identity"
	"github.com/ignite/lead-pipeline/internal/pkg/backoff"
	"github.com/ignite/lead-pipeline/internal/queue"
)

// idStore is a minimal identity.Store for driving the resolver in worker
// tests.
type idStore struct {
	identities []domain.Identity
	nextID     int
	findErr    error
}

func (s *idStore) FindByAny(_ context.Context, email, phone, fullName string) ([]domain.Identity, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []domain.Identity
	for _, id := range s.identities {
		if (email != "" && id.Email == email) ||
			(phone != "" && id.Phone == phone) ||
			(fullName != "" && id.FullName == fullName) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *idStore) Get(_ context.Context, id string) (domain.Identity, error) {
	for _, ident := range s.identities {
		if ident.ID == id {
			return ident, nil
		}
	}
	return domain.Identity{}, identity.ErrNotFound
}

func (s *idStore) Insert(_ context.Context, ident *domain.Identity) error {
	s.nextID++
	ident.ID = fmt.Sprintf("person-%d", s.nextID)
	s.identities = append(s.identities, *ident)
	return nil
}

func fastPolicy() backoff.Policy {
	return backoff.Policy{MaxAttempts: 3, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestIdentifyWorker_ForwardsResolvedMessage(t *testing.T) {
	q := queue.NewMemory()
	resolver := identity.NewResolver(&idStore{})
	w := NewIdentifyWorker(resolver, q, fastPolicy(), 25, 30*time.Second)

	sub := domain.Submission{Email: "a@x.com", Payload: json.RawMessage(`{"budget":5}`)}
	_, err := q.Enqueue(context.Background(), queue.SubmissionQueue, sub, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))

	assert.Equal(t, 0, q.Size(queue.SubmissionQueue))
	require.Equal(t, 1, q.Size(queue.RoutingQueue))

	batch, err := q.DequeueBatch(context.Background(), queue.RoutingQueue, 1, time.Second)
	require.NoError(t, err)
	var routed domain.RoutingMessage
	require.NoError(t, json.Unmarshal(batch[0].Payload, &routed))
	assert.Equal(t, "a@x.com", routed.Email)
	assert.Equal(t, "person-1", routed.PersonID)
	assert.JSONEq(t, `{"budget":5}`, string(routed.Payload))
}

func TestIdentifyWorker_NoIdentifiersDeadLetters(t *testing.T) {
	q := queue.NewMemory()
	resolver := identity.NewResolver(&idStore{})
	w := NewIdentifyWorker(resolver, q, fastPolicy(), 25, 30*time.Second)

	_, err := q.Enqueue(context.Background(), queue.SubmissionQueue, domain.Submission{}, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))

	assert.Equal(t, 0, q.Size(queue.SubmissionQueue))
	assert.Equal(t, 0, q.Size(queue.RoutingQueue))
	require.Equal(t, 1, q.Size(queue.SubmissionDLQ))

	batch, err := q.DequeueBatch(context.Background(), queue.SubmissionDLQ, 1, time.Second)
	require.NoError(t, err)
	var dl domain.DeadLetter
	require.NoError(t, json.Unmarshal(batch[0].Payload, &dl))
	assert.Contains(t, dl.Error, "no identifiers")
}

func TestIdentifyWorker_ResolverRetriedBeforeDeadLetter(t *testing.T) {
	q := queue.NewMemory()
	store := &idStore{findErr: fmt.Errorf("connection refused")}
	resolver := identity.NewResolver(store)
	w := NewIdentifyWorker(resolver, q, fastPolicy(), 25, 30*time.Second)

	_, err := q.Enqueue(context.Background(), queue.SubmissionQueue, domain.Submission{Email: "a@x.com"}, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))
	assert.Equal(t, 1, q.Size(queue.SubmissionDLQ))
	assert.Equal(t, 0, q.Size(queue.RoutingQueue))
}

func TestIdentifyWorker_EmptyBatchIsNoop(t *testing.T) {
	q := queue.NewMemory()
	w := NewIdentifyWorker(identity.NewResolver(&idStore{}), q, fastPolicy(), 25, 30*time.Second)
	assert.NoError(t, w.Process(context.Background()))
}
