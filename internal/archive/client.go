// Package archive talks to the digitized archive: plain GETs with retry and
// the permalink -> zoomify -> tile chain used to reach a scan's first tile.
package archive

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kozaktomas/archive-similarity/internal/constants"
)

// DefaultBaseURL is the public catalog of the Prague city archive.
const DefaultBaseURL = "https://katalog.ahmp.cz/pragapublica"

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "archive-similarity/1.0"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	Retries    int           // additional attempts after the first
	RetryWait  time.Duration // base delay, doubled per attempt
	HTTPClient *http.Client  // optional, mainly for tests
}

// Client is an HTTP client for the archive.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	retries    int
	retryWait  time.Duration
}

// NewClient creates an archive client.
func NewClient(opts Options) (*Client, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid archive base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("archive base URL must use http or https")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = constants.DefaultRetryWait
	}

	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		userAgent:  userAgent,
		retries:    max(0, opts.Retries),
		retryWait:  retryWait,
	}, nil
}

// BaseURL returns the normalized archive base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// PermalinkURL builds the permalink of a scan. Scan indices are zero based
// here and one based in the archive.
func (c *Client) PermalinkURL(xid string, scanIndex int) string {
	u := c.baseURL.JoinPath("permalink")
	q := url.Values{}
	q.Set("xid", xid)
	q.Set("scan", fmt.Sprint(max(0, scanIndex)+1))
	u.RawQuery = q.Encode()
	return u.String()
}

// bareRecordURL is the permalink without a scan parameter.
func (c *Client) bareRecordURL(xid string) string {
	u := c.baseURL.JoinPath("permalink")
	u.RawQuery = url.Values{"xid": []string{xid}}.Encode()
	return u.String()
}
