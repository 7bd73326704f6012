package storage

import (
	"context"
	"time"
)

// Store is the persistence API used by the watch engine and the command
// surface. The sqlite implementation is the only one shipped; tests may
// substitute fakes.
type Store interface {
	// ActiveFollowerIDs lists every follower whose category is not
	// "disabled", ordered by id so partitioning stays stable across calls.
	ActiveFollowerIDs(ctx context.Context) ([]string, error)

	// Follower returns the current record for id. ok is false when absent.
	Follower(ctx context.Context, id string) (Follower, bool, error)

	AddFollower(ctx context.Context, id, category, source string) error
	RemoveFollower(ctx context.Context, id string) error
	SetCategory(ctx context.Context, id, category string) error
	Categories(ctx context.Context) ([]string, error)
	FollowerIDsByCategory(ctx context.Context, category string) ([]string, error)

	// RecordDelivery appends one delivery-log row and advances the
	// follower's watermark/link/processed time in a single transaction.
	RecordDelivery(ctx context.Context, followerID string, rec DeliveryRecord) error

	// TouchProcessed refreshes the follower's last-processed time without
	// touching the watermark (a check that found nothing new).
	TouchProcessed(ctx context.Context, followerID string, at time.Time) error

	Close() error
}
