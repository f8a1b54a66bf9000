package auth

import (
	"context"
)

// Session is the authentication context of the current request.
// It is passed explicitly to operations that need the caller or must end
// the caller's session.
type Session interface {
	UserID() uint
	Email() string
	IsAnonymous() bool
	Terminate(ctx context.Context) error
}

// Anonymous is the session of an unauthenticated caller
var Anonymous Session = anonymousSession{}

type anonymousSession struct{}

func (anonymousSession) UserID() uint                    { return 0 }
func (anonymousSession) Email() string                   { return "" }
func (anonymousSession) IsAnonymous() bool               { return true }
func (anonymousSession) Terminate(context.Context) error { return nil }

// tokenSession is a session backed by a validated JWT
type tokenSession struct {
	claims *Claims
	store  RevocationStore
}

// NewSession wraps validated claims as a Session
func NewSession(claims *Claims, store RevocationStore) Session {
	return &tokenSession{claims: claims, store: store}
}

func (s *tokenSession) UserID() uint      { return s.claims.UserID }
func (s *tokenSession) Email() string     { return s.claims.Email }
func (s *tokenSession) IsAnonymous() bool { return false }

// Terminate revokes the session so its token is rejected from now on.
func (s *tokenSession) Terminate(ctx context.Context) error {
	return s.store.Revoke(ctx, s.claims.SessionID(), s.claims.UserID, s.claims.ExpiresAt.Time)
}
