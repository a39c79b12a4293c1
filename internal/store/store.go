// Package store persists per-session upload state in a durable local
// database so an interrupted batch can resume without re-uploading
// completed work.
package store

import (
	"context"
	"time"

	"github.com/dmitrijs2005/mediaup/internal/models"
)

// Store is the durable local store of per-session upload state.
//
// Save is last-write-wins for the whole item list under a session key.
// Concurrent writers must serialize: the session coordinator funnels all
// mutations through one in-memory session before flushing, so there is a
// single writer per session at a time.
type Store interface {
	// Save replaces the stored state of the session as a whole.
	Save(ctx context.Context, session *models.Session) error

	// Load returns the stored session, or nil (not an empty session) when
	// nothing is stored under the key, so callers can distinguish "nothing
	// saved" from "saved but empty".
	Load(ctx context.Context, sessionKey string) (*models.Session, error)

	// Clear deletes the session and its items.
	Clear(ctx context.Context, sessionKey string) error

	// CompactOlderThan deletes whole sessions created more than maxAge ago
	// and returns how many were removed. It never deletes part of a
	// session.
	CompactOlderThan(ctx context.Context, maxAge time.Duration) (int, error)

	// ImportLegacy synthesizes a completed session from the legacy format
	// that recorded only remote URLs. A key that already exists is left
	// untouched, which makes the import idempotent.
	ImportLegacy(ctx context.Context, sessionKey string, urls []string) error
}
