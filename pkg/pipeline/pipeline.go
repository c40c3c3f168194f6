// Package pipeline orchestrates one ingestion run: login, discover links,
// extract articles, persist, publish photos, synthesize the feed.
//
// The run is strictly sequential with one request in flight at a time and
// fixed politeness delays toward the site and the file host. That timing is
// part of the external contract, not an implementation detail: concurrent
// fetching would change observable request patterns against third-party
// services and is a behavior change, not an optimization.
package pipeline

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"kprss/pkg/config"
	"kprss/pkg/content"
	"kprss/pkg/domain"
	"kprss/pkg/feed"
	"kprss/pkg/links"
	"kprss/pkg/site"
)

// Store is the persistence seam the pipeline writes to and the feed
// synthesizer reads from.
type Store interface {
	StoreArticles(ctx context.Context, articles []domain.Article) (int, error)
	StorePhotos(ctx context.Context, photos []domain.Photo) (int, error)
	RecentArticles(ctx context.Context, now time.Time, windowDays int) ([]domain.Article, error)
	PhotosForArticle(ctx context.Context, key string) ([]domain.Photo, error)
}

// FileHost republishes a staged local file and returns its shareable link.
type FileHost interface {
	PublishFile(ctx context.Context, localPath, remoteName string) (string, error)
}

// Delays are the politeness pauses between outbound requests.
type Delays struct {
	Settle        time.Duration // after submitting the login form
	Fetch         time.Duration // after each article page fetch
	PhotoDownload time.Duration // after each photo download
	Publish       time.Duration // after each file-host publish
}

// DefaultDelays returns the production politeness policy.
func DefaultDelays() Delays {
	return Delays{
		Settle:        5 * time.Second,
		Fetch:         time.Second,
		PhotoDownload: time.Second,
		Publish:       time.Second,
	}
}

// Pipeline runs the full ingestion and feed synthesis sequence.
type Pipeline struct {
	cfg     *config.Config
	store   Store
	host    FileHost // nil disables photo and feed publishing
	delays  Delays
	workdir string
}

// New wires a pipeline. host may be nil when no file-host token is
// configured; photos are then downloaded but not published or persisted.
func New(cfg *config.Config, store Store, host FileHost, delays Delays, workdir string) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		host:    host,
		delays:  delays,
		workdir: workdir,
	}
}

// Run executes one complete run and returns the number of articles that
// went through extraction. A concurrent-session-limit at login is fatal;
// discovery and extraction errors curtail the batch but not the run.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	sess, _, err := site.Login(site.Config{
		RootURL:     p.cfg.RootURL,
		User:        p.cfg.User,
		Password:    p.cfg.Password,
		SettleDelay: p.delays.Settle,
	})
	if err != nil {
		// Covers ErrSessionLimit; callers decide how loudly to fail.
		return 0, err
	}

	articles := p.crawl(sess)

	inserted, err := p.store.StoreArticles(ctx, articles)
	if err != nil {
		return len(articles), err
	}
	log.Printf("Stored %d new articles (%d candidates)", inserted, len(articles))

	photos := p.publishPhotos(ctx, articles)
	insertedPhotos, err := p.store.StorePhotos(ctx, photos)
	if err != nil {
		return len(articles), err
	}
	log.Printf("Stored %d new photos (%d published)", insertedPhotos, len(photos))

	if err := p.synthesizeFeed(ctx); err != nil {
		return len(articles), err
	}

	return len(articles), nil
}

// crawl runs discovery then extraction inside one session scope. The
// deferred release guarantees exactly one logout request on every exit
// path; Session.Logout collapses duplicate calls.
func (p *Pipeline) crawl(sess *site.Session) []domain.Article {
	defer func() {
		if err := sess.Logout(); err != nil {
			log.Printf("Logout failed: %v", err)
		}
	}()

	articles, err := p.discover(sess)
	if err != nil {
		// Discovery failure curtails the run but is not fatal; whatever
		// was accumulated still flows through persistence and the feed.
		log.Printf("Link discovery failed: %v", err)
		return articles
	}
	log.Printf("Discovered %d candidate articles", len(articles))

	return p.extractAll(sess, articles)
}

// discover fetches the landing page and extracts the candidate links.
func (p *Pipeline) discover(sess *site.Session) ([]domain.Article, error) {
	html, err := sess.Get(p.cfg.RootURL)
	if err != nil {
		return nil, err
	}
	return links.ParseFrontPage(html, p.cfg.RootURL, p.cfg.SiteShort)
}

// extractAll extracts each candidate in order. The first failing article
// interrupts the batch: remaining candidates are dropped and only the
// fully extracted prefix proceeds. (One bad article therefore costs the
// rest of that run's batch; re-runs pick the survivors up again because
// persistence is idempotent.)
func (p *Pipeline) extractAll(sess *site.Session, articles []domain.Article) []domain.Article {
	for i := range articles {
		log.Printf("Extracting %s", articles[i].Key)
		if err := p.extractOne(sess, &articles[i]); err != nil {
			log.Printf("Extraction of %s failed, stopping batch: %v", articles[i].Key, err)
			return articles[:i]
		}
		time.Sleep(p.delays.Fetch)
	}
	return articles
}

// extractOne fetches and parses one article page, then stages its photos.
func (p *Pipeline) extractOne(sess *site.Session, a *domain.Article) error {
	html, err := sess.Get(a.URL)
	if err != nil {
		return err
	}

	page, err := content.ParseArticlePage(html, p.cfg.RootURL)
	if err != nil {
		return err
	}

	a.Category = page.Category
	a.Title = page.Title
	a.Body = page.Body
	a.Date = page.Date
	a.PhotoCount = len(page.Photos)

	for _, ph := range page.Photos {
		a.PhotoLinks = append(a.PhotoLinks, ph.URL)
		a.PhotoTexts = append(a.PhotoTexts, ph.Caption)
		if _, err := sess.Download(ph.URL, p.workdir); err != nil {
			return err
		}
		time.Sleep(p.delays.PhotoDownload)
	}

	return nil
}

// publishPhotos uploads every staged photo to the file host and collects
// the records that obtained a shareable link. A host API error skips only
// that photo: its record never reaches the store, siblings are unaffected.
func (p *Pipeline) publishPhotos(ctx context.Context, articles []domain.Article) []domain.Photo {
	if p.host == nil {
		log.Printf("File host not configured; skipping photo publishing")
		return nil
	}

	var photos []domain.Photo
	for ai := range articles {
		a := &articles[ai]
		for i := 0; i < a.PhotoCount; i++ {
			pht := domain.NewPhoto(a, i)

			link, err := p.host.PublishFile(ctx, filepath.Join(p.workdir, pht.Filename), pht.Filename)
			time.Sleep(p.delays.Publish)
			if err != nil {
				log.Printf("Publishing %s failed, skipping: %v", pht.Filename, err)
				continue
			}

			pht.RemoteLink = link
			photos = append(photos, pht)
		}
	}
	return photos
}

// synthesizeFeed writes the feed file for the current window and, when a
// file host is configured, republishes the feed file itself.
func (p *Pipeline) synthesizeFeed(ctx context.Context) error {
	feedPath := filepath.Join(p.workdir, p.cfg.RSSFile)
	feedCfg := feed.Config{
		RootURL:   p.cfg.RootURL,
		SiteLong:  p.cfg.SiteLong,
		SiteShort: p.cfg.SiteShort,
	}

	if err := feed.WriteFile(ctx, p.store, feedCfg, time.Now(), feedPath); err != nil {
		return err
	}
	log.Printf("Feed written to %s", feedPath)

	if p.host != nil {
		link, err := p.host.PublishFile(ctx, feedPath, p.cfg.RSSFile)
		if err != nil {
			log.Printf("Publishing feed file failed: %v", err)
		} else {
			log.Printf("Feed published at %s", link)
		}
	}

	return nil
}
