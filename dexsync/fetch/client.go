// Package fetch is the read side of the sync engine: a thin client for the
// reader API that serves authoritative ownership snapshots.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pogodex/dexsync/dexsync/database/models"
)

// ErrUserNotFound is returned when the reader knows no such user.
var ErrUserNotFound = errors.New("user not found")

// OwnershipData is one user's authoritative snapshot: their own instances,
// their trades, and the partner-side instances those trades reference.
type OwnershipData struct {
	Username  string           `json:"username"`
	Instances models.Instances `json:"pokemon_instances"`
	Trades    models.Trades    `json:"trades"`
	Related   models.Instances `json:"related_instances"`
}

type Client struct {
	client  *http.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchOwnership pulls the full snapshot for a username. The reader matches
// usernames case-insensitively and returns the canonical spelling in the
// response.
func (c *Client) FetchOwnership(ctx context.Context, username string) (*OwnershipData, error) {
	endpoint := c.baseURL + "/ownershipData/username/" + url.PathEscape(username)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ownership request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ownership request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("reader returned status %d for %s", resp.StatusCode, username)
	}

	var data OwnershipData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode ownership response: %w", err)
	}
	if data.Username == "" {
		data.Username = username
	}

	slog.Debug("Fetched ownership snapshot",
		slog.String("username", data.Username),
		slog.Int("instances", len(data.Instances)),
		slog.Int("trades", len(data.Trades)),
		slog.Duration("took", time.Since(start)))
	return &data, nil
}

// FetchUserInstances returns just the instance map for a username.
func (c *Client) FetchUserInstances(ctx context.Context, username string) (models.Instances, error) {
	data, err := c.FetchOwnership(ctx, username)
	if err != nil {
		return nil, err
	}
	return data.Instances, nil
}

// FetchUserTrades returns a username's trades along with the partner-side
// instance snapshots they reference.
func (c *Client) FetchUserTrades(ctx context.Context, username string) (models.Trades, models.Instances, error) {
	data, err := c.FetchOwnership(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	return data.Trades, data.Related, nil
}

// FetchCatalog pulls the static variant templates the catalog provider
// serves.
func (c *Client) FetchCatalog(ctx context.Context) ([]*models.Variant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pokemons", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("reader returned status %d for catalog", resp.StatusCode)
	}

	var variants []*models.Variant
	if err := json.NewDecoder(resp.Body).Decode(&variants); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return variants, nil
}
