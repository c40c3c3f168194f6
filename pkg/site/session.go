package site

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kprss/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

// ErrSessionLimit is returned by Login when the site reports that the
// account's concurrent session limit is exceeded. The run cannot proceed
// and must not retry within this invocation.
var ErrSessionLimit = errors.New("concurrent session limit exceeded, try again later")

// sessionLimitMarker is the leading text of the site's error_text element
// when another session already holds the account.
const sessionLimitMarker = "このアカウントは現在ご利用中です"

// Config holds what Login needs to establish a session.
type Config struct {
	RootURL  string
	User     string
	Password string

	// SettleDelay is the fixed pause between submitting the login form and
	// inspecting the response. The site populates the error marker with a
	// short lag.
	SettleDelay time.Duration
}

// Session is an authenticated crawling session. The zero value is not
// usable; obtain one from Login. Logout is safe to call from multiple
// paths: only the first call issues the logout request.
type Session struct {
	http    *httpclient.Client
	rootURL string

	logoutOnce sync.Once
	logoutErr  error
}

// Login submits the site's login form and returns a session plus the raw
// login response body. If the response carries the concurrent-session-limit
// marker, ErrSessionLimit is returned. No retry is attempted here.
func Login(cfg Config) (*Session, string, error) {
	client, err := httpclient.New()
	if err != nil {
		return nil, "", err
	}

	payload := url.Values{
		"mode":       {"login"},
		"tran":       {""},
		"ext_login":  {cfg.User},
		"ext_passwd": {cfg.Password},
	}
	resp, err := client.PostForm(cfg.RootURL+"/login/", payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to submit login form: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read login response: %w", err)
	}

	time.Sleep(cfg.SettleDelay)

	if hasSessionLimitMarker(string(body)) {
		return nil, string(body), ErrSessionLimit
	}

	return &Session{http: client, rootURL: cfg.RootURL}, string(body), nil
}

// hasSessionLimitMarker reports whether the login response contains the
// site's "account currently in use" error element.
func hasSessionLimitMarker(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	errText := doc.Find(".error_text").First()
	if errText.Length() == 0 {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(errText.Text()), sessionLimitMarker)
}

// Get fetches a page through the authenticated session.
func (s *Session) Get(pageURL string) (string, error) {
	return s.http.GetBody(pageURL)
}

// Download fetches a binary resource and stages it under destDir, named
// after the URL's last path segment. Returns the full local path.
func (s *Session) Download(fileURL, destDir string) (string, error) {
	data, err := s.http.GetBytes(fileURL)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", fileURL, err)
	}

	name := fileURL
	if i := strings.LastIndex(fileURL, "/"); i >= 0 {
		name = fileURL[i+1:]
	}
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// Logout issues the site's logout request. Exactly one request is sent no
// matter how many times Logout is called; later calls return the first
// call's result.
func (s *Session) Logout() error {
	s.logoutOnce.Do(func() {
		resp, err := s.http.Get(s.rootURL + "/logout/")
		if err != nil {
			s.logoutErr = fmt.Errorf("logout request failed: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			s.logoutErr = fmt.Errorf("logout returned status %d", resp.StatusCode)
		}
	})
	return s.logoutErr
}
