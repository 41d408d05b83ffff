// Package taskqueue publishes JSON tasks to an Upstash QStash endpoint, which
// delivers them to a destination URL after an optional delay.
package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the QStash API used when Config.BaseURL is empty.
const DefaultBaseURL = "https://qstash.upstash.io"

// ErrMissingConfig is returned when the destination URL or token is missing.
var ErrMissingConfig = errors.New("missing task queue configuration")

// Config holds the queue settings. URL is the destination the tasks are
// delivered to; Token authenticates against the QStash API.
type Config struct {
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("QSTASH_QUEUE_URL is required: %w", ErrMissingConfig)
	}
	if c.Token == "" {
		return fmt.Errorf("QSTASH_TOKEN is required: %w", ErrMissingConfig)
	}
	return nil
}

// Task is a message to publish.
type Task[T any] struct {
	Body            T
	Delay           time.Duration
	DeduplicationID string
}

// Receipt is QStash's answer to a publish.
type Receipt struct {
	MessageID    string `json:"messageId"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// Queue publishes tasks with bodies of type T.
type Queue[T any] struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New creates a queue. It fails when the configuration is incomplete, before
// any request is made. A nil client uses http.DefaultClient.
func New[T any](config Config, client *http.Client, logger *zap.Logger) (*Queue[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue[T]{config: config, client: client, logger: logger}, nil
}

// Create publishes task as JSON to the configured destination.
func (q *Queue[T]) Create(ctx context.Context, task Task[T]) (*Receipt, error) {
	body, err := json.Marshal(task.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task body: %w", err)
	}

	endpoint := strings.TrimSuffix(q.config.BaseURL, "/") + "/v2/publish/" + q.config.URL
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+q.config.Token)
	req.Header.Set("Content-Type", "application/json")
	if task.Delay > 0 {
		req.Header.Set("Upstash-Delay", fmt.Sprintf("%ds", int64(task.Delay/time.Second)))
	}
	if task.DeduplicationID != "" {
		req.Header.Set("Upstash-Deduplication-Id", task.DeduplicationID)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		q.logger.Error("Failed to create message", zap.String("destination", q.config.URL), zap.Error(err))
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read publish response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		q.logger.Error("Failed to create message",
			zap.String("destination", q.config.URL),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", payload),
		)
		return nil, fmt.Errorf("failed to create message: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var receipt Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode publish response: %w", err)
	}
	q.logger.Debug("Message created",
		zap.String("destination", q.config.URL),
		zap.String("messageId", receipt.MessageID),
		zap.Bool("deduplicated", receipt.Deduplicated),
	)
	return &receipt, nil
}
