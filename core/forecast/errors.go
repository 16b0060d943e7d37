package forecast

import "fmt"

// UpstreamError reports a transport or HTTP failure against the forecast API
// after the retry budget has been exhausted. It is fatal to a scheduling run.
type UpstreamError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ParseError reports a malformed or unexpectedly shaped response. Retrying
// cannot fix a shape mismatch, so it is never retried.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse forecast: %s: %v", e.Reason, e.Err)
	}
	return "parse forecast: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
