// Package feed fetches per-account media feeds from an RSS-hub style
// endpoint and normalizes them into candidate items.
//
// The item's published date is kept as the raw feed string; callers decide
// when (and whether) to parse it via ParsePublished.
package feed

// Item is one candidate post from a followed account's feed.
type Item struct {
	Author string
	Title  string
	// Body is the raw description HTML as served by the feed.
	Body string
	Link string
	// PublishedRaw is the feed's own date string, unparsed.
	PublishedRaw string
	// Media holds direct media URLs extracted from Body (videos first).
	Media []string
}
