// Package store persists bulk research sessions.
package store

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for bulk sessions. Checkpoint
// updates exactly one session row, so concurrent sessions never clobber
// each other.
type Store interface {
	CreateSession(ctx context.Context, session *model.BulkSession) error
	GetSession(ctx context.Context, id string) (*model.BulkSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.BulkSession, error)
	Checkpoint(ctx context.Context, session *model.BulkSession) error
	DeleteSession(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}
