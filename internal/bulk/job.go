package bulk

import (
	"encoding/json"
	"fmt"
)

// JobStatus is the server-reported lifecycle state of a bulk job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobErrored   JobStatus = "errored"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. The client never drives the
// state machine; it only observes it via polling.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobErrored || s == JobFailed
}

// Job is a read-only snapshot of a bulk job as last reported by the server.
// A submission response carries only the ID; later polls fill in status,
// operation counters, and (for exports) the download URL.
type Job struct {
	ID              string         `json:"job_id,omitempty"`
	Status          JobStatus      `json:"status,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	DownloadURL     string         `json:"download_url,omitempty"`
}

// RowsAffected returns the rows_affected counter from the job data, or 0 if
// the field is absent.
func (j *Job) RowsAffected() int64 {
	return dataInt(j.Data, "rows_affected")
}

// ErrorMessage returns the server error string from the job data.
func (j *Job) ErrorMessage() string {
	if j.Data == nil {
		return ""
	}
	s, _ := j.Data["error"].(string)
	return s
}

// RowError describes a single rejected row from a validation pass.
type RowError struct {
	Row     int64  `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of a dry-run load or delete. It is an
// expected branch outcome rather than a transport fault: the job completes
// normally and reports what a committed run would have done.
type ValidationResult struct {
	Valid    bool       `json:"valid"`
	Rows     int64      `json:"rows"`
	Errors   []RowError `json:"errors,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// ValidationResult extracts the dry-run outcome from a completed job. It
// returns an error when the job data does not carry a validation payload.
func (j *Job) ValidationResult() (*ValidationResult, error) {
	if j.Data == nil {
		return nil, fmt.Errorf("job %s has no data payload", j.ID)
	}
	raw, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("re-encode job data: %w", err)
	}
	var out ValidationResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode validation result for job %s: %w", j.ID, err)
	}
	return &out, nil
}

func dataInt(data map[string]any, key string) int64 {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
