// Package lifecycle holds the status state machines for invoices and
// projects. Every caller asks the same table whether a change is legal.
package lifecycle

import (
	"fmt"

	"github.com/tally-crm/tally/internal/shared"
)

// Table is a closed transition table over a status type.
type Table[S ~string] struct {
	name  string
	edges map[S][]S
}

// NewTable builds a table. States without outgoing edges are terminal and
// must still be listed so they count as known.
func NewTable[S ~string](name string, edges map[S][]S) Table[S] {
	return Table[S]{name: name, edges: edges}
}

// Known reports whether s is a state of this table.
func (t Table[S]) Known(s S) bool {
	_, ok := t.edges[s]
	return ok
}

// Allowed returns the states reachable from s in one step. The returned
// slice is a copy.
func (t Table[S]) Allowed(s S) []S {
	next := t.edges[s]
	out := make([]S, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from → to is in the table.
func (t Table[S]) CanTransition(from, to S) bool {
	for _, s := range t.edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is known and has no outgoing edges.
func (t Table[S]) IsTerminal(s S) bool {
	next, ok := t.edges[s]
	return ok && len(next) == 0
}

// Check returns an error wrapping shared.ErrInvalidTransition when from → to
// is not allowed.
func (t Table[S]) Check(from, to S) error {
	if t.CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s %s -> %s", shared.ErrInvalidTransition, t.name, from, to)
}
