// Package identity resolves the current user id. The authentication
// flow itself is external; this package only reads the stored session
// and supplies the documented fallback when none exists.
package identity

import (
	"context"
	"errors"
)

// AnonymousUserID is the sentinel substituted when no session exists,
// so the feature degrades gracefully instead of blocking. All local and
// remote records created without a session are scoped to this id.
const AnonymousUserID = "00000000-0000-0000-0000-000000000000"

// ErrNoSession indicates that no authenticated session is available.
var ErrNoSession = errors.New("no active session")

// Provider resolves the id of the currently signed-in user.
type Provider interface {
	// CurrentUserID returns the active user id, or ErrNoSession when
	// nobody is signed in.
	CurrentUserID(ctx context.Context) (string, error)
}

// Resolve returns the current user id, falling back to AnonymousUserID
// on any provider failure.
func Resolve(ctx context.Context, p Provider) string {
	id, err := p.CurrentUserID(ctx)
	if err != nil || id == "" {
		return AnonymousUserID
	}
	return id
}

// Static is a fixed-id provider, used for development sessions and tests.
type Static struct {
	ID string
}

func (s Static) CurrentUserID(context.Context) (string, error) {
	if s.ID == "" {
		return "", ErrNoSession
	}
	return s.ID, nil
}
