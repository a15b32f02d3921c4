package bulk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RestPage is one page of a read-only listing query.
type RestPage struct {
	Count   int64            `json:"count"`
	Next    string           `json:"next"`
	Results []map[string]any `json:"results"`
}

// RestGet issues a GET against the plain REST API (outside the bulk plugin
// namespace), e.g. "/api/dcim/sites/".
func (c *Client) RestGet(ctx context.Context, endpoint string, params url.Values) (*RestPage, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	rawURL := c.baseURL + endpoint
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	var page RestPage
	if err := c.doJSON(ctx, http.MethodGet, rawURL, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RestGetAll follows offset pagination until the listing is exhausted and
// returns all result rows.
func (c *Client) RestGetAll(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	merged := url.Values{}
	for k, vals := range params {
		merged[k] = vals
	}
	merged.Set("limit", "1000")

	var results []map[string]any
	for {
		page, err := c.RestGet(ctx, endpoint, merged)
		if err != nil {
			return nil, err
		}
		results = append(results, page.Results...)

		if page.Next == "" {
			return results, nil
		}
		next, err := url.Parse(page.Next)
		if err != nil {
			return nil, fmt.Errorf("parse next page URL %q: %w", page.Next, err)
		}
		offset := next.Query().Get("offset")
		if offset == "" {
			return results, nil
		}
		merged.Set("offset", offset)
	}
}

// ObjectTypeID resolves the content-type ID for appLabel.model, needed for
// generic foreign keys such as cable terminations.
func (c *Client) ObjectTypeID(ctx context.Context, appLabel, model string) (int64, error) {
	params := url.Values{}
	params.Set("app_label", appLabel)
	params.Set("model", model)
	page, err := c.RestGet(ctx, "/api/core/object-types/", params)
	if err != nil {
		return 0, err
	}
	if len(page.Results) == 0 {
		return 0, fmt.Errorf("content type not found: %s.%s", appLabel, model)
	}
	id := dataInt(page.Results[0], "id")
	if id == 0 {
		return 0, fmt.Errorf("content type %s.%s has no id field", appLabel, model)
	}
	return id, nil
}
