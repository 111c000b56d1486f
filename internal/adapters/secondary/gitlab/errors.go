package gitlab

import "fmt"

// TimeoutError reports a transport-level timeout. It is never retried
// by the transport; callers decide whether to try again.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query timeout was reached: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RetryExhaustedError reports that a request kept hitting retryable
// statuses until the attempt budget ran out.
type RetryExhaustedError struct {
	Attempts   int
	LastStatus int
}

func (e *RetryExhaustedError) Error() string {
	hint := "Verify the status of the endpoint"
	if e.LastStatus == 429 {
		hint = "Check the applicable rate limits for this endpoint"
	}

	return fmt.Sprintf(
		"could not successfully complete this request after %d retries, last status code: %d. %s",
		e.Attempts, e.LastStatus, hint,
	)
}

// RequestFailedError reports a non-retryable HTTP failure, carrying a
// human-readable description extracted from the error body.
type RequestFailedError struct {
	Status      int
	Description string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Description)
}
