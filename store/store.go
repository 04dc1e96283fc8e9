// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/voyago/concierge/domain"
)

// Store defines the interface for session and transcript persistence.
//
// Session writes are full snapshots: the engine persists after every accepted
// mutation so an interrupted onboarding can resume where it left off.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	SaveSession(ctx context.Context, session *domain.Session) error

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	UpdateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int, afterSeq int64) ([]domain.Message, error)
	LastMessage(ctx context.Context, sessionID string) (*domain.Message, error)
	NextSeq(ctx context.Context, sessionID string) (int64, error)

	// Janitor support: delete unfinished sessions untouched since cutoff.
	DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error)

	// Lifecycle
	Close() error
}
