package notify

import (
	"fmt"
	"html"
	"time"
)

// Post is a fully resolved item ready for delivery.
type Post struct {
	Author   string
	Title    string
	Link     string
	Category string
	PostedAt time.Time
	Media    []string
}

const postTimeLayout = "2006-01-02 15:04"

// formatPost renders the Telegram HTML body:
// a "@author  #category  <i>time</i>" header, the post title, and the
// source link. Author and title are escaped; the link is emitted verbatim.
func formatPost(p Post) string {
	header := fmt.Sprintf("@%s  #%s", html.EscapeString(p.Author), p.Category)
	if !p.PostedAt.IsZero() {
		header += fmt.Sprintf("  <i>%s</i>", p.PostedAt.Format(postTimeLayout))
	}
	return fmt.Sprintf("%s\n%s\n<a href=%q>source</a>", header, html.EscapeString(p.Title), p.Link)
}
