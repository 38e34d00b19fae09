// Package rules implements the routing rule model: a closed predicate
// grammar, the decision-tree compiler with OR-expansion and shared-prefix
// compression, and the tree evaluator used by the router.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Op is a leaf-condition comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpExists   Op = "exists"
)

// Condition is a single field test against the routing message.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value,omitempty"`
}

// Key returns the canonical string form of the condition. Textually identical
// conditions from different rules produce the same key, which is what lets
// the compiler share tree prefixes across rules.
func (c Condition) Key() string {
	v, _ := json.Marshal(c.Value)
	return fmt.Sprintf("%s|%s|%s", c.Field, c.Op, v)
}

// Predicate is the closed rule grammar: a leaf condition, or a conjunction or
// disjunction of sub-predicates. At most one of Leaf, And, Or is set; the
// zero Predicate matches everything, which is how catch-all rules are written.
type Predicate struct {
	Leaf *Condition
	And  []Predicate
	Or   []Predicate
}

type predicateJSON struct {
	Field string      `json:"field,omitempty"`
	Op    Op          `json:"op,omitempty"`
	Value any         `json:"value,omitempty"`
	And   []Predicate `json:"and,omitempty"`
	Or    []Predicate `json:"or,omitempty"`
}

// UnmarshalJSON accepts the wire form used by the rule-authoring surface:
// {"field","op","value"} for leaves, {"and":[...]}, {"or":[...]}.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "true" || trimmed == "{}" {
		// Match-all predicate for catch-all rules
		*p = Predicate{}
		return nil
	}
	var raw predicateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case len(raw.And) > 0:
		p.Leaf, p.And, p.Or = nil, raw.And, nil
	case len(raw.Or) > 0:
		p.Leaf, p.And, p.Or = nil, nil, raw.Or
	case raw.Field != "":
		p.Leaf = &Condition{Field: raw.Field, Op: raw.Op, Value: raw.Value}
		p.And, p.Or = nil, nil
	default:
		return fmt.Errorf("predicate: empty node")
	}
	return nil
}

// MarshalJSON emits the same wire form UnmarshalJSON accepts.
func (p Predicate) MarshalJSON() ([]byte, error) {
	switch {
	case len(p.And) > 0:
		return json.Marshal(predicateJSON{And: p.And})
	case len(p.Or) > 0:
		return json.Marshal(predicateJSON{Or: p.Or})
	case p.Leaf != nil:
		return json.Marshal(predicateJSON{Field: p.Leaf.Field, Op: p.Leaf.Op, Value: p.Leaf.Value})
	}
	return []byte("null"), nil
}

// IsAlways reports whether the predicate is the zero match-all form.
func (p Predicate) IsAlways() bool {
	return p.Leaf == nil && len(p.And) == 0 && len(p.Or) == 0
}

// Validate checks that the predicate is well-formed: every leaf has a field
// and a known operator, and every branch node is non-empty.
func (p Predicate) Validate() error {
	switch {
	case p.Leaf != nil:
		if p.Leaf.Field == "" {
			return fmt.Errorf("predicate: leaf with empty field")
		}
		switch p.Leaf.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains, OpExists:
			return nil
		default:
			return fmt.Errorf("predicate: unknown op %q", p.Leaf.Op)
		}
	case len(p.And) > 0:
		for _, sub := range p.And {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
		return nil
	case len(p.Or) > 0:
		for _, sub := range p.Or {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	// zero predicate: match-all
	return nil
}

// Eval tests the condition against a message. Unknown fields fail the test
// rather than erroring; routing over absent data is a non-match.
func (c Condition) Eval(msg map[string]any) bool {
	got, ok := lookup(msg, c.Field)
	if c.Op == OpExists {
		return ok && got != nil
	}
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return looseEqual(got, c.Value)
	case OpNeq:
		return !looseEqual(got, c.Value)
	case OpContains:
		s, ok1 := got.(string)
		sub, ok2 := c.Value.(string)
		return ok1 && ok2 && strings.Contains(s, sub)
	case OpGt, OpGte, OpLt, OpLte:
		a, ok1 := toFloat(got)
		b, ok2 := toFloat(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch c.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

// lookup resolves a dotted field path against nested JSON objects
// ("payload.make" reaches into the submission payload).
func lookup(msg map[string]any, field string) (any, bool) {
	cur := any(msg)
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case time.Duration:
		return float64(n), true
	}
	return 0, false
}
