package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"autonotice/internal/feed"
	"autonotice/internal/storage"
	logx "autonotice/pkg/logx"
)

func item(link, published string) feed.Item {
	return feed.Item{
		Author:       "alice",
		Title:        "post " + link,
		Link:         link,
		PublishedRaw: published,
	}
}

func newTestPipeline(src *fakeSource, notif *fakeNotifier, admin *fakeAdmin, store *fakeStore, clock *fakeClock) *Pipeline {
	return NewPipeline(src, notif, admin, store, PipelineConfig{}, clock, logx.Nop())
}

func TestPipelineFirstRunDeliversNewestOnly(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/2", "Mon, 02 Jan 2023 10:00:00 +0000"),
		item("https://x.com/a/1", "Sun, 01 Jan 2023 10:00:00 +0000"),
		item("https://x.com/a/3", "Tue, 03 Jan 2023 10:00:00 +0000"),
	}}
	notif := &fakeNotifier{}
	admin := &fakeAdmin{}
	store := newFakeStore(storage.Follower{ID: "alice", Category: storage.CategoryDefault})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, notif, admin, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(notif.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(notif.sent))
	}
	if notif.sent[0].Link != "https://x.com/a/3" {
		t.Fatalf("expected newest item delivered, got %s", notif.sent[0].Link)
	}
	f := store.follower("alice")
	if f.LastDeliveredLink != "https://x.com/a/3" {
		t.Fatalf("watermark link = %q", f.LastDeliveredLink)
	}
	if admin.count() != 0 {
		t.Fatalf("unexpected alerts: %d", admin.count())
	}
}

func TestPipelineWatermarkFiltersOldItems(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/3", "Tue, 03 Jan 2023 10:00:00 +0000"),
		item("https://x.com/a/1", "Sun, 01 Jan 2023 10:00:00 +0000"),
		item("https://x.com/a/2", "Mon, 02 Jan 2023 10:00:00 +0000"),
	}}
	notif := &fakeNotifier{}
	store := newFakeStore(storage.Follower{
		ID:                "alice",
		Category:          storage.CategoryDefault,
		LastDeliveredLink: "https://x.com/a/2",
		LastDeliveredAt:   time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC),
	})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, notif, &fakeAdmin{}, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(notif.sent) != 1 || notif.sent[0].Link != "https://x.com/a/3" {
		t.Fatalf("expected only item 3 delivered, got %+v", notif.sent)
	}
}

func TestPipelineDeliversInAscendingOrder(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/3", "Tue, 03 Jan 2023 10:00:00 +0000"),
		item("https://x.com/a/2", "Mon, 02 Jan 2023 10:00:00 +0000"),
	}}
	notif := &fakeNotifier{}
	store := newFakeStore(storage.Follower{
		ID:              "alice",
		Category:        storage.CategoryDefault,
		LastDeliveredAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, notif, &fakeAdmin{}, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(notif.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(notif.sent))
	}
	if notif.sent[0].Link != "https://x.com/a/2" || notif.sent[1].Link != "https://x.com/a/3" {
		t.Fatalf("deliveries out of order: %s, %s", notif.sent[0].Link, notif.sent[1].Link)
	}
}

func TestPipelineStopsOnFirstDeliveryFailure(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/2", "Mon, 02 Jan 2023 10:00:00 +0000"),
		item("https://x.com/a/3", "Tue, 03 Jan 2023 10:00:00 +0000"),
	}}
	notif := &fakeNotifier{failAt: 2, lastErr: errors.New("telegram down")}
	admin := &fakeAdmin{}
	store := newFakeStore(storage.Follower{
		ID:              "alice",
		Category:        storage.CategoryDefault,
		LastDeliveredAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, notif, admin, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("delivery failure must not surface as error, got %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected 1 recorded delivery, got %d", len(store.records))
	}
	f := store.follower("alice")
	if f.LastDeliveredLink != "https://x.com/a/2" {
		t.Fatalf("watermark should stop at delivered item, got %q", f.LastDeliveredLink)
	}
	if admin.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", admin.count())
	}
}

func TestPipelineFetchRetriesThenSucceeds(t *testing.T) {
	src := &fakeSource{
		failures: 2,
		err:      errors.New("hub timeout"),
		items: []feed.Item{
			item("https://x.com/a/1", "Sun, 01 Jan 2023 10:00:00 +0000"),
		},
	}
	notif := &fakeNotifier{}
	admin := &fakeAdmin{}
	store := newFakeStore(storage.Follower{ID: "alice", Category: storage.CategoryDefault})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, notif, admin, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if src.calls != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", src.calls)
	}
	slept := clock.sleeps()
	if len(slept) != 2 || slept[0] != 5*time.Second || slept[1] != 5*time.Second {
		t.Fatalf("unexpected backoffs: %v", slept)
	}
	if len(notif.sent) != 1 {
		t.Fatalf("expected delivery after retry, got %d", len(notif.sent))
	}
	if admin.count() != 0 {
		t.Fatalf("unexpected alerts: %d", admin.count())
	}
}

func TestPipelineFetchExhaustionAlertsWithoutStateChange(t *testing.T) {
	src := &fakeSource{failures: 3, err: errors.New("hub down")}
	admin := &fakeAdmin{}
	store := newFakeStore(storage.Follower{ID: "alice", Category: storage.CategoryDefault})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, &fakeNotifier{}, admin, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("exhausted fetch must not surface as error, got %v", err)
	}

	if src.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", src.calls)
	}
	if admin.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", admin.count())
	}
	if len(store.touched) != 0 || len(store.records) != 0 {
		t.Fatalf("failed check must not modify state")
	}
}

func TestPipelineDropsUnparsableDates(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/1", "not a date"),
		item("https://x.com/a/2", ""),
	}}
	store := newFakeStore(storage.Follower{ID: "alice", Category: storage.CategoryDefault})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, &fakeNotifier{}, &fakeAdmin{}, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(store.records) != 0 {
		t.Fatalf("nothing should be delivered")
	}
	// All candidates dropped still counts as a completed check.
	if len(store.touched) != 1 {
		t.Fatalf("expected processed-time touch, got %d", len(store.touched))
	}
}

func TestPipelineNoNewItemsTouchesProcessed(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/1", "Sun, 01 Jan 2023 10:00:00 +0000"),
	}}
	store := newFakeStore(storage.Follower{
		ID:              "alice",
		Category:        storage.CategoryDefault,
		LastDeliveredAt: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, &fakeNotifier{}, &fakeAdmin{}, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	f := store.follower("alice")
	if !f.LastProcessedAt.Equal(clock.Now()) {
		t.Fatalf("processed time not advanced: %v", f.LastProcessedAt)
	}
	if !f.LastDeliveredAt.Equal(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("watermark must not move: %v", f.LastDeliveredAt)
	}
}

func TestPipelineRecordFailureSurfacesError(t *testing.T) {
	src := &fakeSource{items: []feed.Item{
		item("https://x.com/a/1", "Sun, 01 Jan 2023 10:00:00 +0000"),
	}}
	store := newFakeStore(storage.Follower{ID: "alice", Category: storage.CategoryDefault})
	store.recordErr = errors.New("disk full")
	clock := newFakeClock(time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC))

	p := newTestPipeline(src, &fakeNotifier{}, &fakeAdmin{}, store, clock)
	if err := p.Process(context.Background(), store.follower("alice")); err == nil {
		t.Fatal("expected error when the state write fails")
	}
}
