package testbatches

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/types"
)

// Client talks to the scoring service API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Accepted mirrors the async submission response.
type Accepted struct {
	BatchID   string       `json:"batch_id"`
	Status    types.Status `json:"status"`
	Duplicate bool         `json:"duplicate"`
}

// APIError is a non-success response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Health checks the metrics endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, "")
	return err
}

// ScoreCSV scores data synchronously and returns the scored table.
func (c *Client) ScoreCSV(ctx context.Context, data []byte, threshold float64) ([]byte, error) {
	return c.do(ctx, http.MethodPost, scorePath("/v1/score", threshold), data, "text/csv")
}

// ScoreReport scores data synchronously and returns the JSON report.
func (c *Client) ScoreReport(ctx context.Context, data []byte, threshold float64) (*model.Report, error) {
	body, err := c.do(ctx, http.MethodPost, scorePath("/v1/score", threshold), data, "application/json")
	if err != nil {
		return nil, err
	}
	var rep model.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

// Submit queues data for async scoring.
func (c *Client) Submit(ctx context.Context, data []byte, threshold float64) (Accepted, error) {
	var acc Accepted
	body, err := c.do(ctx, http.MethodPost, scorePath("/v1/batches", threshold), data, "application/json")
	if err != nil {
		return acc, err
	}
	if err := json.Unmarshal(body, &acc); err != nil {
		return acc, fmt.Errorf("decode submission: %w", err)
	}
	return acc, nil
}

// Batch fetches a batch status.
func (c *Client) Batch(ctx context.Context, id string) (*types.Batch, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/batches/"+id, nil, "application/json")
	if err != nil {
		return nil, err
	}
	var b types.Batch
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

// Wait polls a batch until it reaches a terminal status.
func (c *Client) Wait(ctx context.Context, id string, every time.Duration) (*types.Batch, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		b, err := c.Batch(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.Status.Terminal() {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download fetches the scored table of a completed batch.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/v1/batches/"+id+"/download", nil, "text/csv")
}

func scorePath(path string, threshold float64) string {
	return fmt.Sprintf("%s?threshold=%g", path, threshold)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, accept string) ([]byte, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/csv")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return nil, apiErr
	}
	return data, nil
}
