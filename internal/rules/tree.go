package rules

import (
	"errors"
	"sort"
)

// ErrNoRules is returned when a compile is requested with zero enabled rules.
// The router treats the resulting absence of a routing function as a hard
// failure, never as a default route.
var ErrNoRules = errors.New("rules: no enabled rules to compile")

// Node is one decision-tree node. Tests are evaluated in insertion order,
// which is rule priority order; Route terminates a path and is returned only
// when no child test below this node produced a route.
type Node struct {
	Tests []Test `json:"tests,omitempty"`
	Route string `json:"route,omitempty"`
}

// Test pairs a condition with the subtree entered when it matches.
type Test struct {
	Cond Condition `json:"cond"`
	Next *Node     `json:"next"`
}

// child returns the subtree for cond, creating it if absent. Lookup is by the
// condition's canonical key, so textually identical conditions from different
// rules share one subtree node.
func (n *Node) child(cond Condition) *Node {
	key := cond.Key()
	for i := range n.Tests {
		if n.Tests[i].Cond.Key() == key {
			return n.Tests[i].Next
		}
	}
	next := &Node{}
	n.Tests = append(n.Tests, Test{Cond: cond, Next: next})
	return next
}

// step is one element of a flattened predicate path: either a single
// condition or a group of OR alternatives, each itself a path.
type step struct {
	cond *Condition
	or   [][]step
}

// flatten linearizes a predicate into a path of steps. AND concatenates;
// OR becomes a single step holding the alternative sub-paths, expanded
// against the remainder of the path at insertion time.
func flatten(p Predicate) []step {
	switch {
	case p.Leaf != nil:
		return []step{{cond: p.Leaf}}
	case len(p.And) > 0:
		var out []step
		for _, sub := range p.And {
			out = append(out, flatten(sub)...)
		}
		return out
	case len(p.Or) > 0:
		alts := make([][]step, 0, len(p.Or))
		for _, sub := range p.Or {
			alts = append(alts, flatten(sub))
		}
		return []step{{or: alts}}
	}
	return nil
}

// insert walks the path from node, expanding OR steps into sibling paths
// (cross-product against the rest of the path). A terminal route already
// present at the end of a path is never overwritten: rules are inserted in
// priority order and the earlier rule keeps the shared node.
func insert(node *Node, path []step, route string) {
	if len(path) == 0 {
		if node.Route == "" {
			node.Route = route
		}
		return
	}
	head, rest := path[0], path[1:]
	if head.or != nil {
		for _, alt := range head.or {
			expanded := make([]step, 0, len(alt)+len(rest))
			expanded = append(expanded, alt...)
			expanded = append(expanded, rest...)
			insert(node, expanded, route)
		}
		return
	}
	insert(node.child(*head.cond), rest, route)
}

// BuildTree compiles enabled rules into a decision tree. Rules are sorted by
// ascending priority before insertion; the caller may pass them unordered.
func BuildTree(ruleSet []Rule) (*Node, error) {
	enabled := make([]Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoRules
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })

	root := &Node{}
	for _, r := range enabled {
		if err := r.Predicate.Validate(); err != nil {
			return nil, err
		}
		insert(root, flatten(r.Predicate), r.RouteName)
	}
	return root, nil
}

// Evaluate walks the tree against a message and returns the selected route.
// Child tests are tried in order; a matching test whose subtree yields a
// route wins immediately. A node's own route applies only when none of its
// children produced one. ok is false when no path terminates in a route.
func Evaluate(n *Node, msg map[string]any) (route string, ok bool) {
	if n == nil {
		return "", false
	}
	for _, t := range n.Tests {
		if t.Cond.Eval(msg) {
			if r, found := Evaluate(t.Next, msg); found {
				return r, true
			}
		}
	}
	if n.Route != "" {
		return n.Route, true
	}
	return "", false
}
