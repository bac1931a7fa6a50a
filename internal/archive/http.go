package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kozaktomas/archive-similarity/internal/constants"
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func retryable(status int) bool {
	switch {
	case status == http.StatusForbidden, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}
	return false
}

// throttleBackOff raises the next delay to a floor requested by the last
// failed attempt (throttling status or Retry-After).
type throttleBackOff struct {
	backoff.BackOff
	attempt int
	floor   time.Duration
}

func (t *throttleBackOff) NextBackOff() time.Duration {
	next := t.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	t.attempt++
	if t.floor > next {
		next = t.floor
	}
	t.floor = 0
	return next
}

func (t *throttleBackOff) Reset() {
	t.BackOff.Reset()
	t.attempt = 0
	t.floor = 0
}

func (c *Client) newBackOff(ctx context.Context) (*throttleBackOff, backoff.BackOff) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryWait
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxInterval = 2 * time.Minute
	exp.MaxElapsedTime = 0

	throttle := &throttleBackOff{BackOff: exp}
	return throttle, backoff.WithContext(backoff.WithMaxRetries(throttle, uint64(c.retries)), ctx)
}

// Get fetches a URL and returns the body, retrying transient failures with
// exponential backoff and jitter.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	throttle, policy := c.newBackOff(ctx)

	body, err := backoff.RetryWithData(func() ([]byte, error) {
		data, err := c.getOnce(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		var se *StatusError
		if errors.As(err, &se) {
			if !retryable(se.StatusCode) {
				return nil, backoff.Permanent(err)
			}
			if se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusTooManyRequests {
				throttle.floor = constants.ThrottledRetryFloor * time.Duration(throttle.attempt+1)
			}
			throttle.floor = max(throttle.floor, se.RetryAfter)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, policy)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// getOnce performs a single GET request.
func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req) //nolint:gosec // URLs come from the archive or the catalog
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp.Body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	return body, nil
}

// parseRetryAfter understands the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// readErrorBody reads a bounded prefix of the response body for error messages.
func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, constants.MaxErrorBodySize))
	if err != nil {
		return "<unreadable body>"
	}
	return strings.TrimSpace(string(data))
}
