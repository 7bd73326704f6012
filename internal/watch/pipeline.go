package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"autonotice/internal/feed"
	"autonotice/internal/notify"
	"autonotice/internal/storage"
	logx "autonotice/pkg/logx"
)

// ContentSource yields candidate items for one followed account.
type ContentSource interface {
	FetchUserMedia(ctx context.Context, accountID string) ([]feed.Item, error)
}

// Notifier delivers one formatted post.
type Notifier interface {
	SendPost(ctx context.Context, p notify.Post) error
	TargetChatID() int64
}

// AdminNotifier is best-effort; implementations swallow their own failures.
type AdminNotifier interface {
	Alert(ctx context.Context, msg string)
}

type PipelineConfig struct {
	FetchRetries int           // attempts per check; default 3
	FetchBackoff time.Duration // wait between attempts; default 5s
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.FetchRetries <= 0 {
		c.FetchRetries = 3
	}
	if c.FetchBackoff <= 0 {
		c.FetchBackoff = 5 * time.Second
	}
	return c
}

// Pipeline performs one incremental check-and-deliver cycle for a single
// follower: fetch with retry, select items newer than the watermark, deliver
// them oldest-first, and persist state after every delivered item.
type Pipeline struct {
	source ContentSource
	notif  Notifier
	admin  AdminNotifier
	store  storage.Store
	cfg    PipelineConfig
	clock  Clock
	log    logx.Logger
}

func NewPipeline(source ContentSource, notif Notifier, admin AdminNotifier, store storage.Store, cfg PipelineConfig, clock Clock, log logx.Logger) *Pipeline {
	if clock == nil {
		clock = RealClock()
	}
	return &Pipeline{
		source: source,
		notif:  notif,
		admin:  admin,
		store:  store,
		cfg:    cfg.withDefaults(),
		clock:  clock,
		log:    log,
	}
}

// dated pairs a candidate with its parsed publish time.
type dated struct {
	item feed.Item
	at   time.Time
}

// Process runs one cycle for f. Fetch and delivery failures are reported via
// the admin channel and end the cycle without error; only unexpected state
// writes surface as errors (the runner isolates those per follower).
func (p *Pipeline) Process(ctx context.Context, f storage.Follower) error {
	items, ok, err := p.fetchWithRetry(ctx, f.ID)
	if err != nil {
		return err // context canceled mid-backoff
	}
	if !ok {
		return nil // reported; no state change
	}

	candidates := parseCandidates(items)
	if len(candidates) == 0 {
		return p.touch(ctx, f.ID)
	}

	fresh := selectNew(candidates, f)
	if len(fresh) == 0 {
		return p.touch(ctx, f.ID)
	}

	for _, c := range fresh {
		post := notify.Post{
			Author:   c.item.Author,
			Title:    c.item.Title,
			Link:     c.item.Link,
			Category: f.Category,
			PostedAt: c.at,
			Media:    c.item.Media,
		}
		if err := p.notif.SendPost(ctx, post); err != nil {
			// Stop here: advancing the watermark past an undelivered item
			// would lose it, and sending later items first would break
			// publish order. Everything from this item on retries next cycle.
			p.log.Error("delivery failed", logx.String("follower", f.ID), logx.String("link", c.item.Link), logx.Err(err))
			p.admin.Alert(ctx, fmt.Sprintf("delivery failed [%s]\n%s\nerror: %v", f.ID, c.item.Link, err))
			return nil
		}

		rec := storage.DeliveryRecord{
			Author:        c.item.Author,
			Body:          c.item.Body,
			Link:          c.item.Link,
			MediaSnapshot: c.item.Media,
			ChatID:        p.notif.TargetChatID(),
			PublishedAt:   c.at,
			DeliveredAt:   p.clock.Now(),
		}
		if err := p.store.RecordDelivery(ctx, f.ID, rec); err != nil {
			// Delivered but not recorded: the item may repeat next cycle.
			// At-least-once beats a silent skip.
			return fmt.Errorf("record delivery for %s (%s): %w", f.ID, c.item.Link, err)
		}
		p.log.Info("delivered", logx.String("follower", f.ID), logx.String("link", c.item.Link))
	}
	return nil
}

// fetchWithRetry attempts the fetch up to cfg.FetchRetries times with a fixed
// backoff. ok=false means all attempts failed and the admin was alerted.
func (p *Pipeline) fetchWithRetry(ctx context.Context, accountID string) (items []feed.Item, ok bool, err error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.FetchRetries; attempt++ {
		items, lastErr = p.source.FetchUserMedia(ctx, accountID)
		if lastErr == nil {
			return items, true, nil
		}
		if attempt < p.cfg.FetchRetries {
			p.log.Warn("fetch failed, retrying",
				logx.String("follower", accountID),
				logx.Int("attempt", attempt),
				logx.Int("max", p.cfg.FetchRetries),
				logx.Err(lastErr))
			if serr := p.clock.Sleep(ctx, p.cfg.FetchBackoff); serr != nil {
				return nil, false, serr
			}
		}
	}
	p.log.Error("fetch failed after retries", logx.String("follower", accountID), logx.Err(lastErr))
	p.admin.Alert(ctx, fmt.Sprintf("fetch failed for %s: %v", accountID, lastErr))
	return nil, false, nil
}

func (p *Pipeline) touch(ctx context.Context, id string) error {
	if err := p.store.TouchProcessed(ctx, id, p.clock.Now()); err != nil {
		return fmt.Errorf("touch processed for %s: %w", id, err)
	}
	return nil
}

// parseCandidates drops items whose publish date does not parse (treated as
// non-existent, not as errors) and sorts the rest ascending by publish time.
// The sort is stable so equal timestamps keep feed order.
func parseCandidates(items []feed.Item) []dated {
	out := make([]dated, 0, len(items))
	for _, it := range items {
		if t, ok := feed.ParsePublished(it.PublishedRaw); ok {
			out = append(out, dated{item: it, at: t})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

// selectNew picks what to deliver. A follower that has never had a delivery
// gets only the single most recent candidate (no historical backlog flood);
// otherwise everything strictly newer than the watermark, oldest first.
func selectNew(candidates []dated, f storage.Follower) []dated {
	if len(candidates) == 0 {
		return nil
	}
	if !f.Delivered() {
		return candidates[len(candidates)-1:]
	}
	var fresh []dated
	for _, c := range candidates {
		if c.at.After(f.LastDeliveredAt) {
			fresh = append(fresh, c)
		}
	}
	return fresh
}
