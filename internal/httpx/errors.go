package httpx

import "fmt"

// ClientError indicates a transport or parse failure for a single request.
type ClientError struct {
	URL   string
	Cause error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Cause)
}

func (e *ClientError) Unwrap() error { return e.Cause }

// RetriesExhaustedError indicates the retry budget ran out without a
// successful response.
type RetriesExhaustedError struct {
	URL     string
	Retries int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("failed to get a successful response from %s after %d retries", e.URL, e.Retries)
}
