// Package session provides session persistence. The pipeline depends only on
// the Store interface; lifecycle (TTL, eviction) belongs to the store
// implementation, not to turn processing.
package session

import (
	"context"
	"fmt"

	"tutord/pkg/models"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = fmt.Errorf("session not found")

// Store persists sessions between turns.
type Store interface {
	// Get returns the session for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)
	// Put saves a session, overwriting any previous version.
	Put(ctx context.Context, sess *models.Session) error
	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
	// List returns the ids of all live sessions.
	List(ctx context.Context) ([]string, error)
}
