package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jamroom/internal/core/ports"
	"jamroom/pkg/circuitbreaker"
	"jamroom/pkg/tracing"

	"go.uber.org/zap"
)

// HTTPClient forwards engine events to the external playback-driving backend
// over HTTP. The backend replies 202 and acknowledges asynchronously through
// the callback surface; a non-2xx status here means the event was not taken
// at all.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.PlaybackBackend = (*HTTPClient)(nil)

type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	Breaker        circuitbreaker.Config
}

func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	c := &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		breaker: circuitbreaker.New(cfg.Breaker),
		logger:  logger.Sugar(),
	}

	c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		c.logger.Infow("backend circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return c
}

// Send implements ports.PlaybackBackend.
func (c *HTTPClient) Send(ctx context.Context, event ports.BackendEvent) error {
	ctx, span := tracing.StartSpan(ctx, "backend.send", tracing.WithAttributes(
		tracing.RoomIDKey.String(string(event.RoomID)),
		tracing.CommandKey.String(string(event.Kind)),
	))
	defer span.End()

	err := c.breaker.Execute(ctx, func() error {
		return c.post(ctx, event)
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Infow("backend send failed",
			"kind", event.Kind,
			"room_id", event.RoomID,
			"ack_id", event.AckID,
			"error", err,
		)
		return err
	}

	c.logger.Debugw("backend event sent",
		"kind", event.Kind,
		"room_id", event.RoomID,
		"ack_id", event.AckID,
	)
	return nil
}

func (c *HTTPClient) post(ctx context.Context, event ports.BackendEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal backend event: %w", err)
	}

	url := fmt.Sprintf("%s/events/%s", c.baseURL, event.Kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend rejected event %s: status %d", event.Kind, resp.StatusCode)
	}
	return nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *HTTPClient) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}
