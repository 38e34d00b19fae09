package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/queue"
	"github.com/ignite/lead-pipeline/internal/rules"
)

type staticLoader struct {
	v   rules.RouterVersion
	err error
}

func (l *staticLoader) Current(context.Context) (rules.RouterVersion, error) {
	return l.v, l.err
}

func dealerTree(t *testing.T) *rules.Node {
	t.Helper()
	tree, err := rules.BuildTree([]rules.Rule{
		{Name: "dealer", Priority: 1, Enabled: true, RouteName: "dealer",
			Predicate: rules.Predicate{Leaf: &rules.Condition{Field: "email", Op: rules.OpContains, Value: "@dealer."}}},
		{Name: "fallback", Priority: 10, Enabled: true, RouteName: "crm"},
	})
	require.NoError(t, err)
	return tree
}

func TestRouterWorker_RoutesToPartnerQueue(t *testing.T) {
	q := queue.NewMemory()
	loader := &staticLoader{v: rules.RouterVersion{Version: 1, Tree: dealerTree(t)}}
	w := NewRouterWorker(loader, q, 25, 30*time.Second)

	msg := domain.RoutingMessage{Submission: domain.Submission{Email: "sales@dealer.com"}, PersonID: "p1"}
	_, err := q.Enqueue(context.Background(), queue.RoutingQueue, msg, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))

	assert.Equal(t, 0, q.Size(queue.RoutingQueue))
	require.Equal(t, 1, q.Size(queue.RouteQueue("dealer")))

	batch, err := q.DequeueBatch(context.Background(), queue.RouteQueue("dealer"), 1, time.Second)
	require.NoError(t, err)
	var routed domain.RoutingMessage
	require.NoError(t, json.Unmarshal(batch[0].Payload, &routed))
	assert.Equal(t, "p1", routed.PersonID)
}

func TestRouterWorker_FallbackRoute(t *testing.T) {
	q := queue.NewMemory()
	loader := &staticLoader{v: rules.RouterVersion{Version: 1, Tree: dealerTree(t)}}
	w := NewRouterWorker(loader, q, 25, 30*time.Second)

	msg := domain.RoutingMessage{Submission: domain.Submission{Email: "someone@gmail.com"}, PersonID: "p2"}
	_, err := q.Enqueue(context.Background(), queue.RoutingQueue, msg, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))
	assert.Equal(t, 1, q.Size(queue.RouteQueue("crm")))
	assert.Equal(t, 0, q.Size(queue.RouteQueue("dealer")))
}

func TestRouterWorker_NoMatchDeadLetters(t *testing.T) {
	// tree without a catch-all: an unroutable message goes to the DLQ, it is
	// never routed by guesswork
	tree, err := rules.BuildTree([]rules.Rule{
		{Name: "dealer-only", Priority: 1, Enabled: true, RouteName: "dealer",
			Predicate: rules.Predicate{Leaf: &rules.Condition{Field: "email", Op: rules.OpContains, Value: "@dealer."}}},
	})
	require.NoError(t, err)

	q := queue.NewMemory()
	w := NewRouterWorker(&staticLoader{v: rules.RouterVersion{Version: 1, Tree: tree}}, q, 25, 30*time.Second)

	_, err = q.Enqueue(context.Background(), queue.RoutingQueue,
		domain.RoutingMessage{Submission: domain.Submission{Email: "x@gmail.com"}, PersonID: "p1"}, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))
	assert.Equal(t, 0, q.Size(queue.RoutingQueue))
	require.Equal(t, 1, q.Size(queue.RoutingDLQ))

	batch, err := q.DequeueBatch(context.Background(), queue.RoutingDLQ, 1, time.Second)
	require.NoError(t, err)
	var dl domain.DeadLetter
	require.NoError(t, json.Unmarshal(batch[0].Payload, &dl))
	assert.Contains(t, dl.Error, "no route matched")
}

func TestRouterWorker_MissingRouterFailsInvocation(t *testing.T) {
	q := queue.NewMemory()
	w := NewRouterWorker(&staticLoader{err: rules.ErrNoRouter}, q, 25, 30*time.Second)

	_, err := q.Enqueue(context.Background(), queue.RoutingQueue,
		domain.RoutingMessage{Submission: domain.Submission{Email: "x@dealer.com"}}, 0)
	require.NoError(t, err)

	err = w.Process(context.Background())
	assert.ErrorIs(t, err, rules.ErrNoRouter)
	// messages stay queued until a routing function is published
	assert.Equal(t, 1, q.Size(queue.RoutingQueue))
}

func TestRouterWorker_PayloadFieldRouting(t *testing.T) {
	tree, err := rules.BuildTree([]rules.Rule{
		{Name: "big-budget", Priority: 1, Enabled: true, RouteName: "premium",
			Predicate: rules.Predicate{Leaf: &rules.Condition{Field: "payload.budget", Op: rules.OpGte, Value: float64(10000)}}},
		{Name: "rest", Priority: 2, Enabled: true, RouteName: "standard"},
	})
	require.NoError(t, err)

	q := queue.NewMemory()
	w := NewRouterWorker(&staticLoader{v: rules.RouterVersion{Version: 1, Tree: tree}}, q, 25, 30*time.Second)

	_, err = q.Enqueue(context.Background(), queue.RoutingQueue, domain.RoutingMessage{
		Submission: domain.Submission{Email: "a@x.com", Payload: json.RawMessage(`{"budget":25000}`)},
		PersonID:   "p1",
	}, 0)
	require.NoError(t, err)

	require.NoError(t, w.Process(context.Background()))
	assert.Equal(t, 1, q.Size(queue.RouteQueue("premium")))
}
