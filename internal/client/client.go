// Package client talks to the hookcatch dashboard API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rsclarke/hookcatch/internal/models"
	"github.com/rsclarke/hookcatch/internal/query"
	"github.com/rsclarke/hookcatch/internal/types"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
	}
}

// APIError is a response with success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Health returns the server status.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var result types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListFiles returns every day file, newest first.
func (c *Client) ListFiles(ctx context.Context) ([]models.LogFileInfo, error) {
	var files []models.LogFileInfo
	if err := c.do(ctx, http.MethodGet, "/api/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetRequests returns all records of date's file.
func (c *Client) GetRequests(ctx context.Context, date string) ([]models.CaptureRecord, error) {
	var records []models.CaptureRecord
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(date), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// QueryRequests returns one filtered page of date's file.
func (c *Client) QueryRequests(ctx context.Context, date string, f query.Filter, page int) (*query.Page, error) {
	q := url.Values{}
	if f.Method != "" {
		q.Set("method", f.Method)
	}
	if f.ContentType != "" {
		q.Set("content_type", f.ContentType)
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}

	path := "/api/files/" + url.PathEscape(date) + "/requests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result query.Page
	if err := c.do(ctx, http.MethodGet, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteRequest removes the record at index from date's file.
func (c *Client) DeleteRequest(ctx context.Context, date string, index int) error {
	path := fmt.Sprintf("/api/files/%s/requests/%d", url.PathEscape(date), index)
	return c.do(ctx, http.MethodDelete, path, nil)
}

// DeleteFile removes date's file.
func (c *Client) DeleteFile(ctx context.Context, date string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(date), nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env types.Envelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
