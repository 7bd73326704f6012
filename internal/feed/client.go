package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	logx "autonotice/pkg/logx"
)

type Config struct {
	BaseURL string
	Timeout time.Duration // per-fetch bound; 0 means 15s
}

// Client fetches an account's media feed from an RSS-hub style endpoint.
// gofeed handles RSS, Atom, and JSON feed bodies transparently.
type Client struct {
	base    string
	timeout time.Duration
	parser  *gofeed.Parser
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("feed base url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:    base,
		timeout: timeout,
		parser:  gofeed.NewParser(),
		log:     log,
	}, nil
}

// FetchUserMedia returns the candidate items currently visible in the
// account's media feed, newest-first or oldest-first depending on the hub;
// callers must not rely on any ordering.
func (c *Client) FetchUserMedia(ctx context.Context, accountID string) ([]Item, error) {
	url := fmt.Sprintf("%s/twitter/media/%s", c.base, accountID)

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parsed, err := c.parser.ParseURLWithContext(url, fctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed for %s: %w", accountID, err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, Item{
			Author:       itemAuthor(it, accountID),
			Title:        it.Title,
			Body:         it.Description,
			Link:         it.Link,
			PublishedRaw: it.Published,
			Media:        ExtractMedia(it.Description),
		})
	}
	c.log.Debug("feed fetched", logx.String("account", accountID), logx.Int("items", len(items)))
	return items, nil
}

func itemAuthor(it *gofeed.Item, fallback string) string {
	if it.Author != nil && strings.TrimSpace(it.Author.Name) != "" {
		return it.Author.Name
	}
	for _, a := range it.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return a.Name
		}
	}
	return fallback
}
