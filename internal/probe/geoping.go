package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type GeoPingConfig struct {
	BaseURL string
	APIKey  string
	// Regions restricts which regions count; empty accepts all.
	Regions []string
	Timeout time.Duration
}

// GeoPing asks a geo-distributed ping API for per-region packet loss and
// succeeds when any acceptable region lost fewer than all packets.
type GeoPing struct {
	cfg     GeoPingConfig
	client  *http.Client
	regions map[string]bool
}

type geoPingResponse struct {
	Host    string `json:"host"`
	Results []struct {
		Region     string   `json:"region"`
		PacketLoss *float64 `json:"packet_loss"`
	} `json:"results"`
}

func NewGeoPing(cfg GeoPingConfig, client *http.Client) *GeoPing {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	regions := make(map[string]bool, len(cfg.Regions))
	for _, r := range cfg.Regions {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			regions[r] = true
		}
	}
	return &GeoPing{cfg: cfg, client: client, regions: regions}
}

func (g *GeoPing) Name() string { return "geoping" }

func (g *GeoPing) Check(ctx context.Context, host string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	q := url.Values{"host": {host}}
	if g.cfg.APIKey != "" {
		q.Set("key", g.cfg.APIKey)
	}
	u := strings.TrimRight(g.cfg.BaseURL, "/") + "/ping?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return false, fmt.Errorf("geoping: status %d", resp.StatusCode)
	}

	var out geoPingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return false, fmt.Errorf("geoping: decode: %w", err)
	}
	for _, r := range out.Results {
		if r.PacketLoss == nil {
			continue
		}
		if len(g.regions) > 0 && !g.regions[strings.ToLower(r.Region)] {
			continue
		}
		if *r.PacketLoss < 100 {
			return true, nil
		}
	}
	return false, nil
}
