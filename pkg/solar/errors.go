package solar

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is returned for HTTP 429. It is the only retried failure.
	ErrRateLimited = errors.New("solar: rate limited")
	// ErrMalformedResponse means the upstream answered 2xx without the expected payload.
	ErrMalformedResponse = errors.New("solar: malformed response")
	// ErrEmptyInput is returned before any network call for blank input.
	ErrEmptyInput = errors.New("solar: empty input")
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("solar %s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("solar %s: status %d: %s", e.Op, e.Code, e.Body)
}

// Is lets errors.Is(err, ErrRateLimited) match a 429.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == http.StatusTooManyRequests
}
