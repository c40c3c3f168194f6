package domain

import "strings"

// TypePhoto is the discriminator stored in the photo_chart table. Chart
// entries share the table but are never produced by this pipeline.
const TypePhoto = "photo"

// Photo represents one embedded photo belonging to an article.
//
// Key is the source-site photo URL. RemoteLink is the shareable URL returned
// by the file host; it must be non-empty before a row is persisted.
type Photo struct {
	Key        string
	FKey       string // owning article's key
	Type       string
	Index      int // 0-based position within the article
	URL        string
	Text       string // caption, "" if none
	Filename   string // local staging filename (last URL path segment)
	RemoteLink string
}

// NewPhoto builds the photo record at index i of the given article from its
// photo link/caption sequences.
func NewPhoto(a *Article, i int) Photo {
	link := a.PhotoLinks[i]
	return Photo{
		Key:      link,
		FKey:     a.Key,
		Type:     TypePhoto,
		Index:    i,
		URL:      link,
		Text:     a.PhotoTexts[i],
		Filename: baseName(link),
	}
}

// baseName returns the last path segment of a URL.
func baseName(link string) string {
	if i := strings.LastIndex(link, "/"); i >= 0 {
		return link[i+1:]
	}
	return link
}
