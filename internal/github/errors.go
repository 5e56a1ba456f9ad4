// internal/github/errors.go
package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"

	custom_errors "github-trending/internal/errors"
)

// tooLargeMessage is the marker upstream puts in a 403 body when a dataset
// exceeds what the contributors endpoint will serve.
const tooLargeMessage = "too large"

const badCredentialsMessage = "bad credentials"

// rateLimitError exposes the reset time reported by upstream.
type rateLimitError struct {
	*custom_errors.UpstreamError
	reset time.Time
}

func (e *rateLimitError) ResetAt() time.Time {
	return e.reset
}

// classify maps a go-github error onto the upstream failure classes.
func classify(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &rateLimitError{
			UpstreamError: upstream(custom_errors.ErrRateLimited, op, err),
			reset:         rateErr.Rate.Reset.Time,
		}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		rle := &rateLimitError{UpstreamError: upstream(custom_errors.ErrRateLimited, op, err)}
		if retryAfter := abuseErr.GetRetryAfter(); retryAfter > 0 {
			rle.reset = time.Now().Add(retryAfter)
		}
		return rle
	}
	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return upstream(custom_errors.ErrInProgress, op, err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return classifyStatus(op, ghErr.Response.StatusCode, ghErr.Message, err)
	}
	if resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest {
		return classifyStatus(op, resp.StatusCode, "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return upstream(custom_errors.ErrTransient, op, err)
	}
	return err
}

func classifyStatus(op string, status int, message string, err error) error {
	switch {
	case status == http.StatusForbidden && strings.Contains(strings.ToLower(message), tooLargeMessage):
		return upstream(custom_errors.ErrTooLarge, op, err)
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden && strings.Contains(strings.ToLower(message), badCredentialsMessage):
		return upstream(custom_errors.ErrAuth, op, err)
	case status == http.StatusTooManyRequests:
		return &rateLimitError{UpstreamError: upstream(custom_errors.ErrRateLimited, op, err)}
	case status == http.StatusNotFound, status == http.StatusConflict:
		return upstream(custom_errors.ErrNotFound, op, err)
	case status >= http.StatusInternalServerError:
		return upstream(custom_errors.ErrTransient, op, err)
	default:
		return &custom_errors.UpstreamError{Kind: errUnclassified, Op: op, Err: err}
	}
}

// errUnclassified marks upstream failures that belong to no retry or skip class.
var errUnclassified = errors.New("upstream request failed")

func upstream(kind error, op string, err error) *custom_errors.UpstreamError {
	return &custom_errors.UpstreamError{Kind: kind, Op: op, Err: err}
}
