package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turbobulk/turbobulk-go/internal/metrics"
)

const apiPrefix = "/api/plugins/turbobulk"

// Config is the immutable connection configuration for a Client. It is
// passed in once at construction; the client holds no mutable session state,
// so multiple clients may run concurrently against the same service.
type Config struct {
	// BaseURL is the root service URL, e.g. "http://netbox:8080".
	BaseURL string
	// Token is the API token. Tokens with the "nbt_" prefix are sent with
	// the Bearer scheme; legacy tokens use the Token scheme.
	Token string
	// HTTPClient overrides the default HTTP client when set.
	HTTPClient *http.Client
	// Logger overrides slog.Default when set.
	Logger *slog.Logger
}

// Client talks to the bulk-job API. All methods take a context and are safe
// for concurrent use; no call mutates client state.
type Client struct {
	baseURL    string
	apiBase    string
	authHeader string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, &InvalidInputError{Reason: "base URL is required"}
	}
	if cfg.Token == "" {
		return nil, &InvalidInputError{Reason: "API token is required"}
	}

	scheme := "Token"
	if strings.HasPrefix(cfg.Token, "nbt_") {
		scheme = "Bearer"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		apiBase:    base + apiPrefix,
		authHeader: scheme + " " + cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Load submits a bulk insert/upsert job for model from the data file at
// dataPath and returns the pending job handle. When the server performs the
// operation synchronously the returned Job is already terminal. Use AwaitJob
// to wait for completion.
func (c *Client) Load(ctx context.Context, model, dataPath string, opts LoadOptions) (*Job, error) {
	form, err := opts.formValues(model)
	if err != nil {
		return nil, err
	}
	job, err := c.submitFile(ctx, "/load/", dataPath, form)
	if err != nil {
		return nil, err
	}
	metrics.JobSubmitted("load")
	c.logger.Info("bulk load submitted",
		"model", model, "file", filepath.Base(dataPath), "job_id", job.ID, "dry_run", opts.DryRun)
	return job, nil
}

// Delete submits a bulk delete job for model. The data file carries the key
// rows to delete (primary keys by default, or opts.KeyFields).
func (c *Client) Delete(ctx context.Context, model, dataPath string, opts DeleteOptions) (*Job, error) {
	form, err := opts.formValues(model)
	if err != nil {
		return nil, err
	}
	job, err := c.submitFile(ctx, "/delete/", dataPath, form)
	if err != nil {
		return nil, err
	}
	metrics.JobSubmitted("delete")
	c.logger.Info("bulk delete submitted",
		"model", model, "file", filepath.Base(dataPath), "job_id", job.ID, "dry_run", opts.DryRun)
	return job, nil
}

// Validate runs a dry-run load and waits for the validation outcome. Nothing
// is committed; the result reports row counts and structured row errors.
func (c *Client) Validate(ctx context.Context, model, dataPath string, opts LoadOptions, pollInterval, timeout time.Duration) (*ValidationResult, error) {
	opts.DryRun = true
	job, err := c.Load(ctx, model, dataPath, opts)
	if err != nil {
		return nil, err
	}
	if job.ID != "" {
		job, err = c.AwaitJob(ctx, job.ID, pollInterval, timeout)
		if err != nil {
			return nil, err
		}
	}
	return job.ValidationResult()
}

// JobStatus performs a single non-blocking status check.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/jobs/"+jobID+"/", nil, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	metrics.PollObserved()
	return &job, nil
}

// AwaitJob polls jobID every pollInterval until the job reaches a terminal
// status or timeout elapses. A timeout returns *TimeoutError without touching
// the remote job; errored/failed returns *JobFailedError with the terminal
// snapshot. Cancelling ctx aborts the wait between polls.
func (c *Client) AwaitJob(ctx context.Context, jobID string, pollInterval, timeout time.Duration) (*Job, error) {
	if jobID == "" {
		return nil, &InvalidInputError{Reason: "job ID is required"}
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	start := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastStatus JobStatus
	for {
		job, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status != lastStatus {
			c.logger.Debug("job status",
				"job_id", jobID, "status", job.Status, "elapsed", time.Since(start).Round(time.Millisecond))
			lastStatus = job.Status
		}

		if job.Status.Terminal() {
			metrics.JobTerminal(string(job.Status))
			if job.Status == JobCompleted {
				metrics.JobWaitObserved(time.Since(start).Seconds())
				return job, nil
			}
			msg := job.ErrorMessage()
			if msg == "" {
				msg = "unknown error"
			}
			return nil, &JobFailedError{Message: msg, Job: job}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutC:
			return nil, &TimeoutError{JobID: jobID, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// submitFile uploads the data file at dataPath with the given form fields to
// apiBase+path and decodes the submission response.
func (c *Client) submitFile(ctx context.Context, path, dataPath string, form map[string][]string) (*Job, error) {
	f, err := os.Open(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InvalidInputError{Reason: "data file not found: " + dataPath}
		}
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, vals := range form {
		for _, val := range vals {
			if err := mw.WriteField(key, val); err != nil {
				return nil, fmt.Errorf("write form field %s: %w", key, err)
			}
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(dataPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy data file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	// Correlation ID ties server logs back to this submission.
	req.Header.Set("X-Correlation-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode submission response: %w", err)
	}
	return &job, nil
}

// doJSON issues a JSON request and decodes the response into out. Responses
// outside the 2xx range become *TransportError with the body preserved.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
