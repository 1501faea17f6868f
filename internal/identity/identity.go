// Package identity reduces the auth layer to the one capability the core
// needs: who is the caller.
package identity

import (
	"github.com/pocketbase/pocketbase/core"
)

// Session identifies an authenticated user. It is used only to scope
// queries and to stamp host_user_id/user_id on records.
type Session struct {
	UserID string
	Email  string
}

// FromRequestEvent extracts the caller's session from an authenticated
// pocketbase request.
func FromRequestEvent(e *core.RequestEvent) (Session, bool) {
	if e.Auth == nil {
		return Session{}, false
	}
	return Session{UserID: e.Auth.Id, Email: e.Auth.Email()}, true
}
