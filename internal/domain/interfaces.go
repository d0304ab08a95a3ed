package domain

import (
	"context"
)

// SessionStore persists serialized session state by session identifier.
// It is a plain key-value store: last write wins per session, no
// transactional guarantees beyond that.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
