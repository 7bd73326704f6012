package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractMedia pulls direct media URLs out of an item's description HTML.
// Videos come before images so album ordering matches the source post.
// Unparsable HTML yields no media; the item is still deliverable as text.
func ExtractMedia(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var urls []string
	collect := func(sel string) {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
				urls = append(urls, src)
			}
		})
	}
	collect("video")
	collect("img")
	return urls
}
