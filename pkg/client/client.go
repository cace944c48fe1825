package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/keen-eye/survey-engine/internal/models"
)

// Client is a Go SDK for the survey-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIKey sets the admin key sent with statistics requests
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient creates a new survey-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is returned when the server answers with an error envelope
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the API
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// Rank is the population position of a score
type Rank struct {
	Stats *models.PopulationStats `json:"stats"`
	Score int                     `json:"score"`
	Rank  *float64                `json:"rank"`
}

// StartSession opens a survey session. screen may be nil.
func (c *Client) StartSession(ctx context.Context, screen *models.ScreenReport) (*models.StartSessionResponse, error) {
	var out models.StartSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", models.StartSessionRequest{Screen: screen}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession retrieves a session with its trials and answers
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionView, error) {
	var out models.SessionView
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer records the choice for one trial
func (c *Client) SubmitAnswer(ctx context.Context, id string, req models.SubmitAnswerRequest) (*models.SubmitAnswerResponse, error) {
	var out models.SubmitAnswerResponse
	path := fmt.Sprintf("/api/v1/sessions/%s/answers", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResult retrieves the scored result of a completed session
func (c *Client) GetResult(ctx context.Context, id string) (*models.Result, error) {
	var out models.Result
	path := fmt.Sprintf("/api/v1/sessions/%s/result", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Catalog retrieves the survey layout
func (c *Client) Catalog(ctx context.Context) (*models.CatalogInfo, error) {
	var out models.CatalogInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats retrieves population statistics
func (c *Client) Stats(ctx context.Context) (*models.PopulationStats, error) {
	var out models.PopulationStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RankScore reports where score sits among completed sessions
func (c *Client) RankScore(ctx context.Context, score int) (*Rank, error) {
	var out Rank
	path := "/api/v1/stats?score=" + strconv.Itoa(score)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportSession downloads the session workbook
func (c *Client) ExportSession(ctx context.Context, id string) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s/export.xlsx", url.PathEscape(id))
	status, body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, decodeError(status, body)
	}
	return body, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do sends in as JSON and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, resp)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var result struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Error == nil {
		return &APIError{Status: status, Code: "http_error", Message: fmt.Sprintf("HTTP %d: %s", status, string(body))}
	}
	return &APIError{Status: status, Code: result.Error.Code, Message: result.Error.Message}
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
