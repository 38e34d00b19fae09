package rules

import "time"

// Rule is one routing rule as authored. Rules are totally ordered by
// Priority; lower values are evaluated first and win on the first match.
type Rule struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Priority  int       `json:"priority" db:"priority"`
	Predicate Predicate `json:"predicate" db:"predicate_json"`
	RouteName string    `json:"route_name" db:"route_name"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
