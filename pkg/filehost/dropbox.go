// Package filehost republishes staged files to Dropbox and mints shareable
// direct-content links for them.
package filehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultAPIURL     = "https://api.dropboxapi.com"
	defaultContentURL = "https://content.dropboxapi.com"
)

// Client talks to the Dropbox HTTP API.
type Client struct {
	httpClient *http.Client
	token      string
	apiURL     string
	contentURL string
}

// New creates a client against the production Dropbox endpoints.
func New(token string) *Client {
	return NewWithEndpoints(token, defaultAPIURL, defaultContentURL)
}

// NewWithEndpoints creates a client against the given endpoints. Tests use
// this to point the client at a fake server.
func NewWithEndpoints(token, apiURL, contentURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		token:      token,
		apiURL:     apiURL,
		contentURL: contentURL,
	}
}

// uploadArg is the Dropbox-API-Arg header payload for /2/files/upload.
type uploadArg struct {
	Path           string `json:"path"`
	Mode           string `json:"mode"`
	ClientModified string `json:"client_modified"`
	Mute           bool   `json:"mute"`
}

// Upload writes the content to remotePath with overwrite semantics,
// forwarding clientModified as the file's modification time.
func (c *Client) Upload(ctx context.Context, remotePath string, content io.Reader, clientModified time.Time) error {
	arg := uploadArg{
		Path:           remotePath,
		Mode:           "overwrite",
		ClientModified: clientModified.UTC().Format("2006-01-02T15:04:05Z"),
		Mute:           true,
	}
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("marshal upload arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+"/2/files/upload", content)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(argJSON))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload %s: API error %d: %s", remotePath, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// SharedLink requests a shareable URL for remotePath and rewrites the
// host's preview marker (dl=0) into the direct-content marker (raw=1).
func (c *Client) SharedLink(ctx context.Context, remotePath string) (string, error) {
	reqBody, err := json.Marshal(map[string]string{"path": remotePath})
	if err != nil {
		return "", fmt.Errorf("marshal shared link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/2/sharing/create_shared_link_with_settings", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("shared link for %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("shared link for %s: API error %d: %s", remotePath, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode shared link response: %w", err)
	}

	return strings.Replace(result.URL, "dl=0", "raw=1", 1), nil
}

// PublishFile uploads the local file under /{remoteName} and returns its
// shareable direct link. The local file's mtime is forwarded to the host.
func (c *Client) PublishFile(ctx context.Context, localPath, remoteName string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	remotePath := normalizePath("/" + remoteName)
	if err := c.Upload(ctx, remotePath, f, info.ModTime()); err != nil {
		return "", err
	}

	return c.SharedLink(ctx, remotePath)
}

// normalizePath collapses duplicate slashes in a remote path.
func normalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
