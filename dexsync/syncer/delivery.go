package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pogodex/dexsync/dexsync/database/models"
	"github.com/pogodex/dexsync/dexsync/database/repositories"
	"github.com/pogodex/dexsync/dexsync/logger"
)

// Channel ships an outbox batch to the receiver. RequestFlush is
// fire-and-forget: it returns immediately and the scheduler learns about
// failures only indirectly, by finding the entries still queued on its next
// tick.
type Channel interface {
	RequestFlush(ctx context.Context, payload models.FlushPayload)
}

// HTTPChannel POSTs batches to the receiver's /batchedUpdates endpoint and
// deletes exactly the delivered keys from the outbox on a 2xx response.
// Anything queued while the request was in flight stays queued.
type HTTPChannel struct {
	client  *http.Client
	baseURL string
	outbox  repositories.OutboxRepository
}

func NewHTTPChannel(baseURL string, timeout time.Duration, outbox repositories.OutboxRepository) *HTTPChannel {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPChannel{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		outbox:  outbox,
	}
}

func (c *HTTPChannel) RequestFlush(ctx context.Context, payload models.FlushPayload) {
	go func() {
		if err := c.deliver(ctx, payload); err != nil {
			logger.LogError("Flush delivery failed", err,
				slog.Int("instances", len(payload.PokemonUpdates)),
				slog.Int("trades", len(payload.TradeUpdates)))
		}
	}()
}

func (c *HTTPChannel) deliver(ctx context.Context, payload models.FlushPayload) error {
	if len(payload.PokemonUpdates) == 0 && len(payload.TradeUpdates) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode flush payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/batchedUpdates", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build flush request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("flush request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("receiver rejected flush: status %d", resp.StatusCode)
	}

	slog.Debug("Delivered flush batch",
		slog.Int("instances", len(payload.PokemonUpdates)),
		slog.Int("trades", len(payload.TradeUpdates)),
		slog.Duration("took", time.Since(start)))

	instanceKeys := make([]string, 0, len(payload.PokemonUpdates))
	for _, u := range payload.PokemonUpdates {
		instanceKeys = append(instanceKeys, u.Key)
	}
	tradeKeys := make([]string, 0, len(payload.TradeUpdates))
	for _, u := range payload.TradeUpdates {
		tradeKeys = append(tradeKeys, u.Key)
	}

	if err := c.outbox.DeleteInstanceUpdates(ctx, instanceKeys); err != nil {
		return err
	}
	if err := c.outbox.DeleteTradeUpdates(ctx, tradeKeys); err != nil {
		return err
	}
	return nil
}
