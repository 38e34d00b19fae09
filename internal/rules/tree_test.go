package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(field string, op Op, value any) Predicate {
	return Predicate{Leaf: &Condition{Field: field, Op: op, Value: value}}
}

func TestBuildTree_PriorityOrder(t *testing.T) {
	tree, err := BuildTree([]Rule{
		{Name: "email-a", Priority: 1, Predicate: leaf("email", OpEq, "a"), RouteName: "X", Enabled: true},
		{Name: "catch-all", Priority: 2, Predicate: Predicate{}, RouteName: "Y", Enabled: true},
	})
	require.NoError(t, err)

	route, ok := Evaluate(tree, map[string]any{"email": "a"})
	require.True(t, ok)
	assert.Equal(t, "X", route)

	route, ok = Evaluate(tree, map[string]any{"email": "b"})
	require.True(t, ok)
	assert.Equal(t, "Y", route)
}

func TestBuildTree_OrExpandsToSiblingPaths(t *testing.T) {
	pred := Predicate{Or: []Predicate{
		leaf("email", OpEq, "a@x.com"),
		leaf("phone", OpEq, "555"),
	}}
	tree, err := BuildTree([]Rule{
		{Name: "either", Priority: 1, Predicate: pred, RouteName: "dealer", Enabled: true},
	})
	require.NoError(t, err)

	// two independent paths, one per OR arm
	require.Len(t, tree.Tests, 2)
	assert.Equal(t, "email", tree.Tests[0].Cond.Field)
	assert.Equal(t, "phone", tree.Tests[1].Cond.Field)

	for _, msg := range []map[string]any{
		{"email": "a@x.com"},
		{"phone": "555"},
		{"email": "a@x.com", "phone": "555"},
	} {
		route, ok := Evaluate(tree, msg)
		require.True(t, ok, "message %v", msg)
		assert.Equal(t, "dealer", route)
	}

	_, ok := Evaluate(tree, map[string]any{"email": "other"})
	assert.False(t, ok)
}

func TestBuildTree_OrCrossProductWithRemainder(t *testing.T) {
	// (state=CA OR state=NV) AND budget>=10000
	pred := Predicate{And: []Predicate{
		{Or: []Predicate{
			leaf("payload.state", OpEq, "CA"),
			leaf("payload.state", OpEq, "NV"),
		}},
		leaf("payload.budget", OpGte, 10000),
	}}
	tree, err := BuildTree([]Rule{
		{Name: "west", Priority: 1, Predicate: pred, RouteName: "west-desk", Enabled: true},
	})
	require.NoError(t, err)
	require.Len(t, tree.Tests, 2)

	msg := map[string]any{"payload": map[string]any{"state": "NV", "budget": float64(20000)}}
	route, ok := Evaluate(tree, msg)
	require.True(t, ok)
	assert.Equal(t, "west-desk", route)

	// right state, small budget: the remainder condition gates both arms
	msg = map[string]any{"payload": map[string]any{"state": "NV", "budget": float64(5)}}
	_, ok = Evaluate(tree, msg)
	assert.False(t, ok)
}

func TestBuildTree_SharedPrefixCompression(t *testing.T) {
	common := leaf("email", OpEq, "a@x.com")
	tree, err := BuildTree([]Rule{
		{Name: "one", Priority: 1, Predicate: Predicate{And: []Predicate{common, leaf("phone", OpEq, "1")}}, RouteName: "A", Enabled: true},
		{Name: "two", Priority: 2, Predicate: Predicate{And: []Predicate{common, leaf("phone", OpEq, "2")}}, RouteName: "B", Enabled: true},
	})
	require.NoError(t, err)

	// identical leading condition shares one subtree node
	require.Len(t, tree.Tests, 1)
	assert.Len(t, tree.Tests[0].Next.Tests, 2)

	route, ok := Evaluate(tree, map[string]any{"email": "a@x.com", "phone": "2"})
	require.True(t, ok)
	assert.Equal(t, "B", route)
}

func TestBuildTree_FirstMatchWinsOnSharedTerminal(t *testing.T) {
	// two rules with identical predicates: the earlier priority keeps the node
	pred := leaf("email", OpEq, "a@x.com")
	tree, err := BuildTree([]Rule{
		{Name: "later", Priority: 5, Predicate: pred, RouteName: "loser", Enabled: true},
		{Name: "earlier", Priority: 1, Predicate: pred, RouteName: "winner", Enabled: true},
	})
	require.NoError(t, err)

	route, ok := Evaluate(tree, map[string]any{"email": "a@x.com"})
	require.True(t, ok)
	assert.Equal(t, "winner", route)
}

func TestBuildTree_MoreSpecificLaterRuleKeepsOwnPath(t *testing.T) {
	tree, err := BuildTree([]Rule{
		{Name: "broad", Priority: 1, Predicate: leaf("email", OpEq, "a@x.com"), RouteName: "broad-route", Enabled: true},
		{Name: "narrow", Priority: 2, Predicate: Predicate{And: []Predicate{
			leaf("email", OpEq, "a@x.com"),
			leaf("phone", OpEq, "555"),
		}}, RouteName: "narrow-route", Enabled: true},
	})
	require.NoError(t, err)

	// the narrow rule terminates deeper along the shared prefix, and wins
	// there because its path is tried before the shared node's own route
	route, ok := Evaluate(tree, map[string]any{"email": "a@x.com", "phone": "555"})
	require.True(t, ok)
	assert.Equal(t, "narrow-route", route)

	route, ok = Evaluate(tree, map[string]any{"email": "a@x.com"})
	require.True(t, ok)
	assert.Equal(t, "broad-route", route)
}

func TestBuildTree_NoEnabledRules(t *testing.T) {
	_, err := BuildTree(nil)
	assert.ErrorIs(t, err, ErrNoRules)

	_, err = BuildTree([]Rule{
		{Name: "off", Priority: 1, Predicate: leaf("email", OpEq, "a"), RouteName: "X", Enabled: false},
	})
	assert.ErrorIs(t, err, ErrNoRules)
}

func TestBuildTree_DisabledArmNotReachable(t *testing.T) {
	// rebuilding without one OR arm must drop that path entirely
	tree, err := BuildTree([]Rule{
		{Name: "email-only", Priority: 1, Predicate: leaf("email", OpEq, "a@x.com"), RouteName: "dealer", Enabled: true},
	})
	require.NoError(t, err)

	_, ok := Evaluate(tree, map[string]any{"phone": "555"})
	assert.False(t, ok)
}

func TestEvaluate_NilTree(t *testing.T) {
	_, ok := Evaluate(nil, map[string]any{"email": "a"})
	assert.False(t, ok)
}

func TestBuildTree_InvalidPredicate(t *testing.T) {
	_, err := BuildTree([]Rule{
		{Name: "bad", Priority: 1, Predicate: leaf("email", Op("regex"), "x"), RouteName: "X", Enabled: true},
	})
	assert.Error(t, err)
}
