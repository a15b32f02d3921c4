package bulk

import (
	"fmt"
	"time"
)

// TransportError reports a failed exchange with the server: an unreachable
// host, an authentication rejection, or any response with an unexpected
// status. The body is preserved so callers can inspect server diagnostics.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("turbobulk transport error: %v", e.Err)
	}
	return fmt.Sprintf("turbobulk API returned status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidInputError reports a problem detected before any network call, such
// as a missing data file or malformed options.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// TimeoutError is returned when a job does not reach a terminal status within
// the caller's wait budget. The remote job keeps running; only the local wait
// is abandoned.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %s", e.JobID, e.Timeout)
}

// JobFailedError is returned when a job reaches the errored or failed status.
// Job holds the full terminal snapshot as last polled.
type JobFailedError struct {
	Message string
	Job     *Job
}

func (e *JobFailedError) Error() string {
	return "job failed: " + e.Message
}
