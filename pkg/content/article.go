// Package content implements the typed per-section extraction of one
// article page: breadcrumb, title, body, date and photo gallery. Each
// section either yields a structured value or a ParseError naming the
// section, so callers never see raw traversal failures.
package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ParseError reports a failure to extract one section of an article page.
type ParseError struct {
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("parse %s: element not found", e.Section)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PhotoRef is one photo-gallery block: absolute image URL plus optional
// caption. Order within Page.Photos is document order and defines the
// photo's persisted index.
type PhotoRef struct {
	URL     string
	Caption string
}

// Page is the structured content of one article page.
type Page struct {
	Category string
	Title    string
	Body     string // "" when the page has no body element
	Date     time.Time
	Photos   []PhotoRef
}

// ParseArticlePage extracts all sections from an article page. Image URLs
// are resolved against rootURL. Missing title, breadcrumb or date elements
// are errors; a missing body element yields an empty body.
func ParseArticlePage(html, rootURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{Section: "document", Err: err}
	}

	page := &Page{}

	bread := doc.Find("#bread li")
	if bread.Length() == 0 {
		return nil, &ParseError{Section: "breadcrumb"}
	}
	page.Category = bread.Last().Text()

	title := doc.Find(".article_title")
	if title.Length() == 0 {
		return nil, &ParseError{Section: "title"}
	}
	page.Title = title.First().Text()

	// Body may legitimately be absent (photo-only articles).
	if body := doc.Find(".article_detail_text"); body.Length() > 0 {
		page.Body = strings.ReplaceAll(body.First().Text(), "　", "")
	}

	dateEl := doc.Find(".date")
	if dateEl.Length() == 0 {
		return nil, &ParseError{Section: "date"}
	}
	date, err := ParseDate(dateEl.First().Text())
	if err != nil {
		return nil, &ParseError{Section: "date", Err: err}
	}
	page.Date = date

	var photoErr error
	doc.Find(".photo_set").EachWithBreak(func(i int, set *goquery.Selection) bool {
		caption := ""
		if capEl := set.Find(".cap"); capEl.Length() > 0 {
			caption = capEl.First().Text()
		}

		src, ok := set.Find("img").First().Attr("src")
		if !ok || src == "" {
			photoErr = &ParseError{Section: fmt.Sprintf("photo gallery block %d", i)}
			return false
		}

		page.Photos = append(page.Photos, PhotoRef{URL: rootURL + src, Caption: caption})
		return true
	})
	if photoErr != nil {
		return nil, photoErr
	}

	return page, nil
}

// ParseDate parses the site's "YYYY年MM月DD日" date text. Trailing content
// after the 日 marker (time of day etc.) is ignored. Malformed input is an
// error, never a zero default.
func ParseDate(text string) (time.Time, error) {
	idx := strings.Index(text, "日")
	if idx < 0 {
		return time.Time{}, fmt.Errorf("no date marker in %q", text)
	}
	datePart := text[:idx+len("日")]

	t, err := time.Parse("2006年1月2日", datePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", datePart, err)
	}
	return t, nil
}
