// Package githost talks to the GitHub REST API to resolve what changed in
// a push or pull request: the compare listing between two commits and the
// contents of individual files at a ref.
package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pitabwire/util"
)

const defaultBaseURL = "https://api.github.com"

// ChangedFile is one entry from a commit comparison.
type ChangedFile struct {
	Path   string `json:"filename"`
	Status string `json:"status"`
	Patch  string `json:"patch,omitempty"`
}

// Client fetches diffs and file contents from a GitHub-compatible API.
type Client struct {
	httpc   *resty.Client
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host, e.g. a GitHub
// Enterprise install or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithToken attaches a bearer token to every request. Without a token the
// client still works against public repositories at a lower rate limit.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.httpc.SetAuthToken(token)
		}
	}
}

// NewClient creates a GitHub API client with retry on transient failures.
func NewClient(opts ...Option) *Client {
	httpc := resty.New().
		SetTimeout(20 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			switch resp.StatusCode() {
			case http.StatusTooManyRequests,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout:
				return true
			}
			return false
		}).
		SetHeader("Accept", "application/vnd.github+json")

	c := &Client{
		httpc:   httpc,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type compareResponse struct {
	Files []ChangedFile `json:"files"`
}

// Compare lists the files changed between two commits. The repo is the
// "owner/name" form.
func (c *Client) Compare(ctx context.Context, repo, base, head string) ([]ChangedFile, error) {
	url := fmt.Sprintf("%s/repos/%s/compare/%s...%s", c.baseURL, repo, base, head)

	resp, err := c.httpc.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("compare %s %s...%s: %w", repo, base, head, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("compare %s %s...%s: status %d", repo, base, head, resp.StatusCode())
	}

	var out compareResponse
	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode compare response: %w", err)
	}
	return out.Files, nil
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FileContent fetches the content of one file at a ref. Failures are not
// fatal to a review run, so it reports ok=false instead of an error; a
// file it cannot fetch is simply skipped by the caller.
func (c *Client) FileContent(ctx context.Context, repo, path, ref string) (string, bool) {
	log := util.Log(ctx)

	url := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, repo, path)
	resp, err := c.httpc.R().SetContext(ctx).SetQueryParam("ref", ref).Get(url)
	if err != nil {
		log.WithError(err).Warn("fetch file content failed", "repo", repo, "path", path)
		return "", false
	}
	if resp.StatusCode() != http.StatusOK {
		log.Warn("fetch file content non-200", "repo", repo, "path", path, "status", resp.StatusCode())
		return "", false
	}

	var out contentsResponse
	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		log.WithError(err).Warn("decode file content failed", "repo", repo, "path", path)
		return "", false
	}

	if out.Encoding != "base64" {
		return out.Content, true
	}

	decoded, err := base64.StdEncoding.DecodeString(
		strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		log.WithError(err).Warn("decode base64 content failed", "repo", repo, "path", path)
		return "", false
	}
	return string(decoded), true
}
