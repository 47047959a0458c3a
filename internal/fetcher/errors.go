package fetcher

import "fmt"

// CancellationError marks a fetch aborted by its context.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "fetch cancelled"
	}
	return e.Reason
}

// RedirectError is raised when redirect following is disabled and the
// server answers 3xx.
type RedirectError struct {
	StatusCode int
	From       string
	To         string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect %d from %s to %s", e.StatusCode, e.From, e.To)
}

// FetchError is a transport or status failure. Retryable errors are retried
// by the fetcher itself; callers only see the final outcome.
type FetchError struct {
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }
