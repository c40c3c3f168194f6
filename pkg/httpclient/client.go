package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
)

// Client wraps an http.Client with a cookie jar and the header profile the
// member site expects. One Client carries one authenticated session: the
// login response sets session cookies into the jar and every later request
// presents them.
type Client struct {
	client *http.Client
}

// New creates a client with a fresh cookie jar.
func New() (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		client: &http.Client{Jar: jar},
	}, nil
}

// Do executes a request with the site header profile applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	return c.client.Do(req)
}

// Get is a convenience method for GET requests.
func (c *Client) Get(pageURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// GetBody fetches a page and returns its body as a string.
// Non-200 responses are errors.
func (c *Client) GetBody(pageURL string) (string, error) {
	resp, err := c.Get(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}

// GetBytes fetches a binary resource (photo bytes) and returns its content.
func (c *Client) GetBytes(fileURL string) ([]byte, error) {
	resp, err := c.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// PostForm submits an HTML form with the site header profile applied.
func (c *Client) PostForm(formURL string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, formURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req)
}

// setHeaders applies the header profile the member site serves Japanese
// content for. The site rejects clients without a browser User-Agent.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept-Language", "ja")
	req.Header.Set("User-Agent", "Mozilla/5.0")
}
