// Package versionlog records the upstream commit count after an update so
// the bot can tell which version it runs.
package versionlog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"

	"github.com/danieljhkim/nazupdate/internal/fsops"
)

// ErrNoLastPage is returned when the response carries no rel="last" link.
var ErrNoLastPage = errors.New("no last page in Link header")

var lastPage = regexp.MustCompile(`page=(\d+)>;\s*rel="last"`)

// Record is the content of the version log file.
type Record struct {
	Total int `json:"total"`
}

// Client queries the commits API.
type Client struct {
	http *req.Client
	url  string
}

// NewClient creates a Client for the commits endpoint at url.
func NewClient(http *req.Client, url string) *Client {
	return &Client{http: http, url: url}
}

// FetchTotal returns the total number of commits, read from the last-page
// number of a one-commit-per-page listing. It is 0 when the response has no
// last page.
func (c *Client) FetchTotal(ctx context.Context) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/vnd.github+json").
		SetQueryParam("per_page", "1").
		Get(c.url)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", c.url, err)
	}
	if resp.IsErrorState() {
		return 0, fmt.Errorf("failed to query %s: %s", c.url, resp.Status)
	}
	// A listing that fits on one page has no rel="last" link.
	total, err := ParseLink(resp.GetHeader("Link"))
	if errors.Is(err, ErrNoLastPage) {
		return 0, nil
	}
	return total, err
}

// ParseLink extracts the rel="last" page number from a Link header.
func ParseLink(header string) (int, error) {
	m := lastPage.FindStringSubmatch(header)
	if m == nil {
		return 0, ErrNoLastPage
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid last page %q: %w", m[1], err)
	}
	return n, nil
}

// Write stores total at path atomically.
func Write(fs fsops.FS, path string, total int) error {
	data, err := json.MarshalIndent(Record{Total: total}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version log: %w", err)
	}
	if err := fs.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write version log: %w", err)
	}
	return nil
}

// Read loads the record at path.
func Read(fs fsops.FS, path string) (Record, error) {
	var rec Record
	data, err := fs.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse version log: %w", err)
	}
	return rec, nil
}
