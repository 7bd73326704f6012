package storage

import (
	"errors"
	"time"
)

// Category value that excludes a follower from scheduling.
const CategoryDisabled = "disabled"

// CategoryDefault is assigned when a follower is added without a category.
const CategoryDefault = "default"

// SourceDefault labels where a follower's content comes from.
const SourceDefault = "twitter"

var (
	ErrNotFound = errors.New("storage: follower not found")
	ErrExists   = errors.New("storage: follower already exists")
)

// Follower is one watched account.
//
// LastDeliveredAt is the delivery watermark: once set it never moves backward.
// LastProcessedAt is refreshed whenever a check completes; the batch runner
// uses it for the cooldown skip.
type Follower struct {
	ID       string
	Category string
	Source   string

	LastDeliveredLink string
	LastDeliveredAt   time.Time
	LastProcessedAt   time.Time
}

// Delivered reports whether this follower has ever had an item delivered.
func (f Follower) Delivered() bool { return !f.LastDeliveredAt.IsZero() }

// DeliveryRecord is one row of the append-only delivery log.
// Body is truncated to 200 runes on write.
type DeliveryRecord struct {
	Author        string
	Body          string
	Link          string
	MediaSnapshot []string
	ChatID        int64
	PublishedAt   time.Time
	DeliveredAt   time.Time
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}
