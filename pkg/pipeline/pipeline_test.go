package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"kprss/pkg/config"
	"kprss/pkg/feed"
	"kprss/pkg/site"
	"kprss/pkg/store"
)

// fakeSite serves a minimal member site: login, landing page with three
// article links, two parseable articles (the first with one photo), a third
// whose page is broken, and a logout endpoint counting calls.
type fakeSite struct {
	server      *httptest.Server
	logoutCalls atomic.Int64
	brokenThird bool
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	fs := &fakeSite{brokenThird: true}
	today := time.Now().Format("2006年01月02日")

	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>welcome</body></html>"))
	})
	mux.HandleFunc("/logout/", func(w http.ResponseWriter, r *http.Request) {
		fs.logoutCalls.Add(1)
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`
<div id="home_pickup"><a href="/news/101/">pickup</a></div>
<ul class="articles_list">
  <li><a href="/news/102/">second</a></li>
  <li><a href="/news/103/">third</a></li>
</ul>`))
	})
	mux.HandleFunc("/news/101/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `
<div id="bread"><ul><li>ホーム</li><li>政治</li></ul></div>
<h1 class="article_title">Article 101</h1>
<div class="date">%s</div>
<div class="article_detail_text">body of 101</div>
<div class="photo_set"><img src="/img/a.jpg"><p class="cap">caption a</p></div>`, today)
	})
	mux.HandleFunc("/news/102/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `
<div id="bread"><ul><li>ホーム</li><li>経済</li></ul></div>
<h1 class="article_title">Article 102</h1>
<div class="date">%s</div>
<div class="article_detail_text">body of 102</div>`, today)
	})
	mux.HandleFunc("/news/103/", func(w http.ResponseWriter, r *http.Request) {
		if fs.brokenThird {
			// No title element: extraction must fail here.
			w.Write([]byte(`<div id="bread"><ul><li>ホーム</li></ul></div>`))
			return
		}
		fmt.Fprintf(w, `
<div id="bread"><ul><li>ホーム</li><li>社会</li></ul></div>
<h1 class="article_title">Article 103</h1>
<div class="date">%s</div>`, today)
	})
	mux.HandleFunc("/img/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpegbytes"))
	})

	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

// fakeHost records publishes and returns deterministic direct links.
type fakeHost struct {
	published []string
	failAll   bool
}

func (h *fakeHost) PublishFile(ctx context.Context, localPath, remoteName string) (string, error) {
	if h.failAll {
		return "", errors.New("API error 409")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	h.published = append(h.published, remoteName)
	return "https://files.example.com/" + remoteName + "?raw=1", nil
}

func newTestPipeline(t *testing.T, fs *fakeSite, host FileHost) (*Pipeline, *store.Store, string) {
	t.Helper()
	workdir := t.TempDir()

	st, err := store.Open(store.Config{
		Path:         filepath.Join(workdir, "example.db"),
		ArticleTable: "example",
	})
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		SiteLong:  "Example News Digest",
		SiteShort: "example",
		RootURL:   fs.server.URL,
		User:      "user",
		Password:  "secret",
		DBFile:    "example.db",
		RSSFile:   "feed.xml",
	}

	return New(cfg, st, host, Delays{}, workdir), st, workdir
}

func TestRun_InterruptedBatch(t *testing.T) {
	fs := newFakeSite(t)
	host := &fakeHost{}
	p, st, workdir := newTestPipeline(t, fs, host)

	processed, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("A failing article must not fail the run: %v", err)
	}

	// Extraction succeeded for the first two candidates, failed on the third.
	if processed != 2 {
		t.Errorf("Expected 2 processed articles, got %d", processed)
	}

	articles, err := st.RecentArticles(context.Background(), time.Now(), feed.WindowDays)
	if err != nil {
		t.Fatalf("RecentArticles failed: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("Expected exactly 2 article rows, got %d", len(articles))
	}

	// Exactly one logout regardless of the extraction failure.
	if got := fs.logoutCalls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 logout call, got %d", got)
	}

	// The photo of article 101 was staged, published and persisted.
	first := articles[0]
	if first.PhotoCount != 1 {
		t.Errorf("Expected photo_count 1 for article 101, got %d", first.PhotoCount)
	}
	photos, err := st.PhotosForArticle(context.Background(), first.Key)
	if err != nil {
		t.Fatalf("PhotosForArticle failed: %v", err)
	}
	if len(photos) != first.PhotoCount {
		t.Fatalf("photo_count must equal joined photo rows, got %d vs %d", first.PhotoCount, len(photos))
	}
	if !strings.HasSuffix(photos[0].RemoteLink, "?raw=1") {
		t.Errorf("Persisted photo must carry the direct link, got %q", photos[0].RemoteLink)
	}

	// Feed written with both surviving articles.
	feedData, err := os.ReadFile(filepath.Join(workdir, "feed.xml"))
	if err != nil {
		t.Fatalf("Feed file missing: %v", err)
	}
	if !strings.Contains(string(feedData), "Article 101") || !strings.Contains(string(feedData), "Article 102") {
		t.Errorf("Feed missing expected entries")
	}
	if strings.Contains(string(feedData), "Article 103") {
		t.Errorf("Feed contains the article whose extraction failed")
	}

	// The feed file itself is republished after the photos.
	if host.published[len(host.published)-1] != "feed.xml" {
		t.Errorf("Expected feed.xml published last, got %v", host.published)
	}
}

func TestRun_SecondRunInsertsNothing(t *testing.T) {
	fs := newFakeSite(t)
	fs.brokenThird = false
	host := &fakeHost{}
	p, st, _ := newTestPipeline(t, fs, host)
	ctx := context.Background()

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	before, err := st.RecentArticles(ctx, time.Now(), feed.WindowDays)
	if err != nil {
		t.Fatalf("RecentArticles failed: %v", err)
	}

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	after, err := st.RecentArticles(ctx, time.Now(), feed.WindowDays)
	if err != nil {
		t.Fatalf("RecentArticles failed: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("Re-run against unchanged site inserted rows: %d -> %d", len(before), len(after))
	}

	for _, a := range after {
		photos, err := st.PhotosForArticle(ctx, a.Key)
		if err != nil {
			t.Fatalf("PhotosForArticle failed: %v", err)
		}
		if len(photos) != a.PhotoCount {
			t.Errorf("photo_count mismatch for %s after re-run: %d vs %d", a.Key, a.PhotoCount, len(photos))
		}
	}
}

func TestRun_SessionLimitIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p class="error_text">このアカウントは現在ご利用中です。</p>`))
	}))
	defer server.Close()

	fs := &fakeSite{server: server}
	p, _, _ := newTestPipeline(t, fs, &fakeHost{})

	_, err := p.Run(context.Background())
	if !errors.Is(err, site.ErrSessionLimit) {
		t.Fatalf("Expected ErrSessionLimit, got %v", err)
	}
	if got := fs.logoutCalls.Load(); got != 0 {
		t.Errorf("No session was established, logout must not be called, got %d", got)
	}
}

func TestRun_PublishFailureSkipsPhotoOnly(t *testing.T) {
	fs := newFakeSite(t)
	fs.brokenThird = false
	host := &fakeHost{failAll: true}
	p, st, _ := newTestPipeline(t, fs, host)
	ctx := context.Background()

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("A publish failure must not fail the run: %v", err)
	}

	articles, err := st.RecentArticles(ctx, time.Now(), feed.WindowDays)
	if err != nil {
		t.Fatalf("RecentArticles failed: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("Articles must persist regardless of publish failures, got %d", len(articles))
	}

	for _, a := range articles {
		photos, err := st.PhotosForArticle(ctx, a.Key)
		if err != nil {
			t.Fatalf("PhotosForArticle failed: %v", err)
		}
		if len(photos) != 0 {
			t.Errorf("Photos without a remote link must never be persisted, found %d for %s", len(photos), a.Key)
		}
	}
}

func TestRun_DiscoveryFailureCurtailsRun(t *testing.T) {
	var logoutCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/logout/", func(w http.ResponseWriter, r *http.Request) {
		logoutCalls.Add(1)
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fs := &fakeSite{server: server}
	p, st, _ := newTestPipeline(t, fs, &fakeHost{})

	processed, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Discovery failure must not fail the run: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected 0 processed articles, got %d", processed)
	}
	if got := logoutCalls.Load(); got != 1 {
		t.Errorf("Session must still be released exactly once, got %d logouts", got)
	}

	articles, err := st.RecentArticles(context.Background(), time.Now(), feed.WindowDays)
	if err != nil {
		t.Fatalf("RecentArticles failed: %v", err)
	}
	if len(articles) != 0 {
		t.Errorf("Expected empty store after curtailed run, got %d rows", len(articles))
	}
}
