package feed

import (
	"strings"
	"time"
)

// publishedLayouts covers the RFC 2822 shapes seen in the wild from RSS-hub
// deployments: named zone (GMT/UTC/other), numeric zone, and zoneless.
var publishedLayouts = []string{
	time.RFC1123,  // Mon, 02 Jan 2006 15:04:05 MST
	time.RFC1123Z, // Mon, 02 Jan 2006 15:04:05 -0700
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 02 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04:05",
}

// ParsePublished parses a feed item's raw published string.
// A date that matches none of the known layouts reports ok=false; the caller
// treats such items as non-existent rather than as errors.
func ParsePublished(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
