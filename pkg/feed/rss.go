// Package feed synthesizes the RSS document from the trailing window of the
// article store.
package feed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"kprss/pkg/domain"

	"github.com/gorilla/feeds"
)

// WindowDays is the trailing span of persisted articles eligible for the
// feed: articles dated strictly after now minus WindowDays are included.
const WindowDays = 4

// feedTimezone fixes article publish timestamps: an article's date is
// interpreted as midnight in this zone.
const feedTimezone = "Asia/Tokyo"

// Store is the read side of the article store the synthesizer consumes.
type Store interface {
	RecentArticles(ctx context.Context, now time.Time, windowDays int) ([]domain.Article, error)
	PhotosForArticle(ctx context.Context, key string) ([]domain.Photo, error)
}

// Config carries the channel-level feed metadata.
type Config struct {
	RootURL   string
	SiteLong  string // channel title and description
	SiteShort string // channel author name
}

// Synthesize builds the RSS document for the articles inside the feed
// window, in store iteration order, and returns it as XML.
func Synthesize(ctx context.Context, store Store, cfg Config, now time.Time) (string, error) {
	loc, err := time.LoadLocation(feedTimezone)
	if err != nil {
		return "", fmt.Errorf("load feed timezone: %w", err)
	}

	f := &feeds.Feed{
		Title:       cfg.SiteLong,
		Link:        &feeds.Link{Href: cfg.RootURL},
		Description: cfg.SiteLong,
		Author:      &feeds.Author{Name: cfg.SiteShort, Email: "xxx"},
		Created:     now,
	}

	articles, err := store.RecentArticles(ctx, now, WindowDays)
	if err != nil {
		return "", err
	}

	for _, a := range articles {
		photos, err := store.PhotosForArticle(ctx, a.Key)
		if err != nil {
			return "", err
		}

		f.Items = append(f.Items, &feeds.Item{
			Id:      a.Key,
			Title:   a.Title,
			Link:    &feeds.Link{Href: a.URL},
			Content: composeContent(a, photos),
			Created: time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, loc),
		})
	}

	rss := (&feeds.Rss{Feed: f}).RssFeed()
	rss.Language = "ja"

	return feeds.ToXML(rss)
}

// composeContent builds the entry HTML: a heading with title and category,
// the stored body text, then one image per associated photo carrying the
// shareable link and caption. Newlines become line breaks last, matching
// the stored plain-text body.
func composeContent(a domain.Article, photos []domain.Photo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s</h3><br><b>%s</b><br>", a.Title, a.Category)
	b.WriteString(a.Body)
	for _, p := range photos {
		fmt.Fprintf(&b, `<br><img src="%s" alt="%s">`, p.RemoteLink, p.Text)
	}
	return strings.ReplaceAll(b.String(), "\n", "<br>")
}

// WriteFile synthesizes the feed and writes it to path.
func WriteFile(ctx context.Context, store Store, cfg Config, now time.Time, path string) error {
	xml, err := Synthesize(ctx, store, cfg, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(xml), 0o644); err != nil {
		return fmt.Errorf("write feed file %s: %w", path, err)
	}
	return nil
}
