package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/turbobulk/turbobulk-go/internal/metrics"
)

// ExportFormat selects the interchange format of an export file.
type ExportFormat string

const (
	FormatJSONL   ExportFormat = "jsonl"
	FormatParquet ExportFormat = "parquet"
)

// ExportOutcome classifies how an export request was satisfied.
type ExportOutcome string

const (
	// OutcomeNotModified: the client's cache key matches the server's
	// current key; no download is needed.
	OutcomeNotModified ExportOutcome = "not_modified"
	// OutcomeCacheHit: the server holds a valid cached export; the file is
	// downloaded without creating a job (unless CheckOnly is set).
	OutcomeCacheHit ExportOutcome = "cache_hit"
	// OutcomeCacheMiss: no valid cache exists. Only returned with CheckOnly;
	// no job is created.
	OutcomeCacheMiss ExportOutcome = "cache_miss"
	// OutcomeFresh: a new export job was run to completion.
	OutcomeFresh ExportOutcome = "fresh"
)

// ExportOptions configures an export request and the cache negotiation
// around it.
type ExportOptions struct {
	Filters             map[string]any
	Fields              []string
	Format              ExportFormat // default jsonl
	IncludeCustomFields *bool        // default true
	IncludeTags         *bool        // default true

	// ForceRefresh bypasses the server cache and always runs a fresh job.
	ForceRefresh bool
	// CheckOnly answers "would this require work" without side effects: no
	// job is created on a miss and no file is downloaded on a hit.
	CheckOnly bool
	// ClientCacheKey is the cache key from a previous export. When it still
	// matches the server's current key the outcome is OutcomeNotModified.
	ClientCacheKey string

	// OutputPath is where the export file is written. Empty means a
	// temporary file.
	OutputPath string

	PollInterval time.Duration
	Timeout      time.Duration
}

// ExportResult reports the negotiated outcome. Path is set only when a file
// was downloaded (cache hit or fresh export).
type ExportResult struct {
	Outcome     ExportOutcome
	Cached      bool
	CacheKey    string
	RowCount    int64
	DataChanged bool
	DownloadURL string
	Path        string
	Job         *Job
}

type exportResponse struct {
	Cached      bool   `json:"cached"`
	CacheKey    string `json:"cache_key"`
	RowCount    int64  `json:"row_count"`
	DataChanged bool   `json:"data_changed"`
	DownloadURL string `json:"download_url"`
	JobID       string `json:"job_id"`
}

// Export requests an export of model, negotiating against the server-side
// export cache. Four outcomes are possible:
//
//  1. ClientCacheKey matches the server's current key: OutcomeNotModified,
//     nothing downloaded.
//  2. A valid cache exists and ForceRefresh is false: OutcomeCacheHit, the
//     cached file is downloaded.
//  3. CheckOnly is set and no valid cache exists: OutcomeCacheMiss, no job.
//  4. Otherwise a job is submitted and awaited: OutcomeFresh.
func (c *Client) Export(ctx context.Context, model string, opts ExportOptions) (*ExportResult, error) {
	format := opts.Format
	if format == "" {
		format = FormatJSONL
	}
	if format != FormatJSONL && format != FormatParquet {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("unknown export format %q", format)}
	}

	body := map[string]any{
		"model":                 model,
		"format":                string(format),
		"include_custom_fields": boolOrDefault(opts.IncludeCustomFields, true),
		"include_tags":          boolOrDefault(opts.IncludeTags, true),
	}
	if len(opts.Filters) > 0 {
		body["filters"] = opts.Filters
	}
	if len(opts.Fields) > 0 {
		body["fields"] = opts.Fields
	}
	if opts.ForceRefresh {
		body["force_refresh"] = true
	}
	if opts.CheckOnly {
		body["check_cache_only"] = true
	}
	if opts.ClientCacheKey != "" {
		body["client_cache_key"] = opts.ClientCacheKey
	}

	status, payload, err := c.postExport(ctx, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotModified {
		metrics.ExportOutcome(string(OutcomeNotModified))
		c.logger.Info("export cache current", "model", model)
		return &ExportResult{
			Outcome:  OutcomeNotModified,
			Cached:   true,
			CacheKey: opts.ClientCacheKey,
		}, nil
	}

	var resp exportResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("decode export response: %w", err)
		}
	}

	result := &ExportResult{
		Cached:      resp.Cached,
		CacheKey:    resp.CacheKey,
		RowCount:    resp.RowCount,
		DataChanged: resp.DataChanged,
		DownloadURL: resp.DownloadURL,
	}

	// Check-only answers the cache question without touching the file layer.
	if opts.CheckOnly {
		if resp.Cached {
			result.Outcome = OutcomeCacheHit
		} else {
			result.Outcome = OutcomeCacheMiss
		}
		metrics.ExportOutcome(string(result.Outcome))
		return result, nil
	}

	if resp.Cached {
		result.Outcome = OutcomeCacheHit
		metrics.ExportOutcome(string(result.Outcome))
		c.logger.Info("export cache hit", "model", model, "rows", resp.RowCount)
		if resp.DownloadURL != "" {
			path, err := c.downloadExport(ctx, resp.DownloadURL, opts.OutputPath, format)
			if err != nil {
				return nil, err
			}
			result.Path = path
		}
		return result, nil
	}

	if resp.JobID == "" {
		return nil, fmt.Errorf("export response missing job_id (status %d)", status)
	}
	metrics.JobSubmitted("export")
	c.logger.Info("export cache miss, job submitted", "model", model, "job_id", resp.JobID)

	job, err := c.AwaitJob(ctx, resp.JobID, opts.PollInterval, opts.Timeout)
	if err != nil {
		return nil, err
	}

	downloadURL := job.DownloadURL
	if downloadURL == "" {
		if s, ok := job.Data["file_url"].(string); ok {
			downloadURL = s
		}
	}
	if downloadURL == "" {
		downloadURL = c.apiBase + "/jobs/" + resp.JobID + "/download/"
	}

	path, err := c.downloadExport(ctx, downloadURL, opts.OutputPath, format)
	if err != nil {
		return nil, err
	}

	result.Outcome = OutcomeFresh
	result.Cached = false
	result.RowCount = job.RowsAffected()
	result.DownloadURL = downloadURL
	result.Path = path
	result.Job = job
	metrics.ExportOutcome(string(OutcomeFresh))
	return result, nil
}

// postExport issues the export request and returns the raw status and body.
// 304 is an expected negotiation answer, not an error.
func (c *Client) postExport(ctx context.Context, body map[string]any) (int, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode export request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/export/", strings.NewReader(string(encoded)))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	if resp.StatusCode == http.StatusNotModified {
		return resp.StatusCode, payload, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return 0, nil, &TransportError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	return resp.StatusCode, payload, nil
}

// downloadExport fetches an export file to outputPath. Relative URLs are
// resolved against the service root. The returned path is owned by the
// caller; the client never deletes it.
func (c *Client) downloadExport(ctx context.Context, rawURL, outputPath string, format ExportFormat) (string, error) {
	if strings.HasPrefix(rawURL, "/") {
		rawURL = c.baseURL + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out *os.File
	if outputPath == "" {
		suffix := ".jsonl.gz"
		if format == FormatParquet {
			suffix = ".parquet"
		}
		out, err = os.CreateTemp("", "turbobulk-export-*"+suffix)
	} else {
		out, err = os.Create(outputPath)
	}
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	metrics.AddDownloadBytes(n)
	c.logger.Debug("export file downloaded", "path", out.Name(), "bytes", n)
	return out.Name(), nil
}
