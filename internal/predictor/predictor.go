// Package predictor talks to the remote state-of-charge prediction service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kartoza/soc-estimator/internal/models"
)

// DefaultEndpoint is the hosted capacity model
const DefaultEndpoint = "https://battery-capacity-cnn-nomarlized-inputs.onrender.com/predict"

// DefaultTimeout bounds a single prediction call
const DefaultTimeout = 30 * time.Second

// ErrMalformedResponse is returned when a 2xx body lacks a numeric prediction
var ErrMalformedResponse = errors.New("malformed prediction response")

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client posts reading vectors to a prediction endpoint. There are no retries.
type Client struct {
	mu         sync.RWMutex
	endpoint   string
	httpClient *http.Client
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a Client for the given endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL predictions are sent to
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// SetEndpoint changes the URL for subsequent calls
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()
}

const maxErrorBody = 512

// Predict sends the values in order and returns the predicted capacity.
// Returns *APIError for non-2xx responses and ErrMalformedResponse when the
// body does not carry a numeric predicted_capacity.
func (c *Client) Predict(ctx context.Context, values []float64) (float64, error) {
	payload, err := json.Marshal(models.NewPredictRequest(values))
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(body)
		if len(bodyStr) > maxErrorBody {
			bodyStr = bodyStr[:maxErrorBody]
		}
		return 0, &APIError{StatusCode: resp.StatusCode, Body: bodyStr}
	}

	var out models.PredictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.PredictedCapacity == nil {
		return 0, fmt.Errorf("%w: predicted_capacity missing", ErrMalformedResponse)
	}

	return *out.PredictedCapacity, nil
}
