package watch

import (
	"context"
	"sync"
	"time"

	"autonotice/internal/feed"
	"autonotice/internal/notify"
	"autonotice/internal/storage"
)

// fakeClock advances only when told to and records every sleep.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type fakeSource struct {
	items    []feed.Item
	err      error
	failures int // fail this many calls before succeeding
	calls    int
}

// FetchUserMedia fails the first `failures` calls with err, then succeeds.
func (s *fakeSource) FetchUserMedia(_ context.Context, _ string) ([]feed.Item, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return nil, s.err
	}
	return s.items, nil
}

type fakeNotifier struct {
	sent    []notify.Post
	failAt  int // 1-based send index that fails; 0 means never
	lastErr error
}

func (n *fakeNotifier) SendPost(_ context.Context, p notify.Post) error {
	if n.failAt > 0 && len(n.sent)+1 == n.failAt {
		return n.lastErr
	}
	n.sent = append(n.sent, p)
	return nil
}

func (n *fakeNotifier) TargetChatID() int64 { return -100 }

type fakeAdmin struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAdmin) Alert(_ context.Context, msg string) {
	a.mu.Lock()
	a.alerts = append(a.alerts, msg)
	a.mu.Unlock()
}

func (a *fakeAdmin) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// fakeStore is an in-memory storage.Store covering what the engine touches.
type fakeStore struct {
	mu        sync.Mutex
	followers map[string]storage.Follower
	records   []storage.DeliveryRecord
	touched   []string
	listErr   error
	recordErr error
}

func newFakeStore(fs ...storage.Follower) *fakeStore {
	s := &fakeStore{followers: make(map[string]storage.Follower)}
	for _, f := range fs {
		s.followers[f.ID] = f
	}
	return s
}

func (s *fakeStore) ActiveFollowerIDs(context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, f := range s.followers {
		if f.Category != storage.CategoryDisabled {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) Follower(_ context.Context, id string) (storage.Follower, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followers[id]
	return f, ok, nil
}

func (s *fakeStore) AddFollower(_ context.Context, id, category, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.followers[id]; ok {
		return storage.ErrExists
	}
	s.followers[id] = storage.Follower{ID: id, Category: category, Source: source}
	return nil
}

func (s *fakeStore) RemoveFollower(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.followers[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.followers, id)
	return nil
}

func (s *fakeStore) SetCategory(_ context.Context, id, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followers[id]
	if !ok {
		return storage.ErrNotFound
	}
	f.Category = category
	s.followers[id] = f
	return nil
}

func (s *fakeStore) Categories(context.Context) ([]string, error) { return nil, nil }

func (s *fakeStore) FollowerIDsByCategory(context.Context, string) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) RecordDelivery(_ context.Context, followerID string, rec storage.DeliveryRecord) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followers[followerID]
	if !ok {
		return storage.ErrNotFound
	}
	f.LastDeliveredLink = rec.Link
	f.LastDeliveredAt = rec.PublishedAt
	f.LastProcessedAt = rec.DeliveredAt
	s.followers[followerID] = f
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) TouchProcessed(_ context.Context, followerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followers[followerID]
	if !ok {
		return storage.ErrNotFound
	}
	f.LastProcessedAt = at
	s.followers[followerID] = f
	s.touched = append(s.touched, followerID)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) follower(id string) storage.Follower {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followers[id]
}
