package runner

import (
	"context"
	"fmt"
)

// HTTPError represents a response whose status is not accepted as success.
type HTTPError struct {
	StatusCode int
	Message    string // "message" field of a JSON error body, if any
	Body       string // body snippet
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// FailureLogger logs failed iterations.
type FailureLogger interface {
	LogFailure(it Iteration, err error)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context, it Iteration) error {
	err := l.inner.Do(ctx, it)
	if err != nil {
		l.logger.LogFailure(it, err)
	}
	return err
}
