package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	senseisync "github.com/chukwu07/savings-sensei/internal/sync"
	"github.com/chukwu07/savings-sensei/internal/types"
)

// HTTPClient implements Remote against the hosted store's REST API.
type HTTPClient struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.client = hc }
}

// WithPageSize sets how many records are requested per page.
func WithPageSize(n int) Option {
	return func(c *HTTPClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewHTTPClient creates a client for the API at baseURL authenticating
// with the bearer token.
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: senseisync.DefaultPageSize,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks connectivity to the hosted store.
func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, false)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Select pages through the user's records of a table.
func (c *HTTPClient) Select(ctx context.Context, table types.Table, userID string) ([]types.Record, error) {
	records := []types.Record{}
	cursor := ""
	for {
		q := url.Values{}
		q.Set("user_id", userID)
		q.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("after", cursor)
		}

		var page types.ListResponse
		if err := c.call(ctx, http.MethodGet, "/api/v1/"+string(table)+"?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		records = append(records, page.Records...)

		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			return records, nil
		}
		cursor = page.NextCursor
	}
}

// Insert creates a record by its client-generated id.
func (c *HTTPClient) Insert(ctx context.Context, table types.Table, rec types.Record) (*types.Record, error) {
	var out types.Record
	if err := c.call(ctx, http.MethodPost, "/api/v1/"+string(table), rec, &out); err != nil {
		return nil, fmt.Errorf("insert %s %s: %w", table, rec.ID, err)
	}
	return &out, nil
}

// Update overwrites a record.
func (c *HTTPClient) Update(ctx context.Context, table types.Table, id string, rec types.Record) (*types.Record, error) {
	var out types.Record
	if err := c.call(ctx, http.MethodPut, "/api/v1/"+string(table)+"/"+url.PathEscape(id), rec, &out); err != nil {
		return nil, fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return &out, nil
}

// Delete removes a record.
func (c *HTTPClient) Delete(ctx context.Context, table types.Table, id string) error {
	var out types.DeleteResponse
	if err := c.call(ctx, http.MethodDelete, "/api/v1/"+string(table)+"/"+url.PathEscape(id), nil, &out); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// call sends an authenticated request and decodes a JSON response into out.
func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, auth bool) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	statusErr := &StatusError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&problem) == nil {
		if problem.Title != "" {
			statusErr.Title = problem.Title
		}
		statusErr.Detail = problem.Detail
	}
	return nil, statusErr
}
