package v1

import "github.com/gosuda/turingarena/internal/arena"

// SessionDirectory abstracts read-only session lookup for handler testing.
// *arena.Registry satisfies this interface.
type SessionDirectory interface {
	List() []*arena.Session
	Lookup(id string) (*arena.Session, error)
}
