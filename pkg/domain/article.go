package domain

import (
	"strings"
	"time"
)

// Article represents one article scraped from the member site.
//
// Key is the canonical article URL and serves as the primary identity in the
// database; URL carries the same value (both columns exist for historical
// reasons). Rows are written once and never updated.
type Article struct {
	Key        string
	URL        string
	Date       time.Time // calendar date only, no time component
	DayID      string    // per-day sequence token from the URL path
	Title      string
	Body       string
	PhotoCount int
	ChartCount int
	Media      string // constant tag identifying the source site
	Category   string // last breadcrumb entry; "" until extraction

	// PhotoLinks and PhotoTexts hold the article's photo URLs and captions
	// in document order. The slice index is the authoritative photo index
	// used to correlate with staged filenames. Not persisted directly; the
	// photo_chart table is built from them.
	PhotoLinks []string
	PhotoTexts []string
}

// NewArticle creates a candidate article from a discovered link.
// Title, body, date and photos are filled in by extraction later.
func NewArticle(link, media, category string) Article {
	return Article{
		Key:      link,
		URL:      link,
		DayID:    dayID(link),
		Media:    media,
		Category: category,
	}
}

// dayID returns the second-to-last path segment of the article URL
// (links end with a trailing slash, e.g. ".../news/12345/").
func dayID(link string) string {
	parts := strings.Split(link, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
