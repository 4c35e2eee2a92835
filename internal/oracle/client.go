// Package oracle talks to an external next-close prediction service
// and keeps its latest answer cached so the scoring path never blocks
// on the network.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client is a thin HTTP client for the prediction service.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *logrus.Entry
}

type predictionRequest struct {
	Instrument string    `json:"instrument"`
	Closes     []float64 `json:"closes"`
}

type predictionResponse struct {
	Prediction float64 `json:"prediction"`
}

// NewClient creates a prediction service client.
func NewClient(url string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:    url,
		logger: logger.WithField("component", "oracle"),
	}
}

// Predict posts the recent close window and returns the predicted next
// close.
func (c *Client) Predict(ctx context.Context, instrument string, closes []float64) (float64, error) {
	body, err := json.Marshal(predictionRequest{Instrument: instrument, Closes: closes})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("prediction service returned status %d", resp.StatusCode)
	}

	var out predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Prediction, nil
}
