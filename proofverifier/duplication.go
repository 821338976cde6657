package proofverifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DuplicationChecker reports the percentage of ids already known to the ledger.
// It never fails: errors collapse into DuplicatePercentageOnError.
type DuplicationChecker interface {
	CheckDuplicates(ctx context.Context, ids []string) float64
}

type duplicationRequest struct {
	IDs []string `json:"ids"`
}

type duplicationResponse struct {
	ExistPercentage *float64 `json:"existPercentage"`
}

// HTTPDuplicationChecker posts the whole id batch to the dedup API once.
type HTTPDuplicationChecker struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

type DuplicationOption func(*HTTPDuplicationChecker)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) DuplicationOption {
	return func(c *HTTPDuplicationChecker) { c.apiKey = key }
}

func WithDuplicationTimeout(timeout time.Duration) DuplicationOption {
	return func(c *HTTPDuplicationChecker) { c.client.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) DuplicationOption {
	return func(c *HTTPDuplicationChecker) { c.client = client }
}

func WithDuplicationLogger(l *zap.Logger) DuplicationOption {
	return func(c *HTTPDuplicationChecker) { c.logger = l }
}

func NewHTTPDuplicationChecker(endpoint string, opts ...DuplicationOption) *HTTPDuplicationChecker {
	c := &HTTPDuplicationChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultDuplicationTimeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPDuplicationChecker) CheckDuplicates(ctx context.Context, ids []string) float64 {
	if len(ids) == 0 {
		c.logger.Info("No duplication keys in batch, treating batch as fully duplicate",
			zap.String("component", "DuplicationChecker"))
		return DuplicatePercentageNoIDs
	}

	pct, err := c.query(ctx, ids)
	if err != nil {
		c.logger.Warn("Duplication check failed, assuming no duplicates",
			zap.String("component", "DuplicationChecker"),
			zap.Int("ids", len(ids)),
			zap.Error(err))
		return DuplicatePercentageOnError
	}

	c.logger.Info("Duplication check complete",
		zap.String("component", "DuplicationChecker"),
		zap.Int("ids", len(ids)),
		zap.Float64("exist_percentage", pct))
	return pct
}

func (c *HTTPDuplicationChecker) query(ctx context.Context, ids []string) (float64, error) {
	body, err := json.Marshal(duplicationRequest{IDs: ids})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("dedup API returned HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var payload duplicationResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if payload.ExistPercentage == nil {
		return 0, fmt.Errorf("response has no existPercentage field")
	}
	pct := *payload.ExistPercentage
	if math.IsNaN(pct) || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("existPercentage %v outside [0,100]", pct)
	}
	return pct, nil
}
