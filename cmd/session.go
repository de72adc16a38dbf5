package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/BioHazard786/roommesh/internal/config"
	"github.com/BioHazard786/roommesh/internal/dns"
	"github.com/BioHazard786/roommesh/internal/ui"
)

const requestTimeout = 10 * time.Second

// relayClient talks to the relay's HTTP endpoints, resolving names the same
// way the websocket dialer does.
type relayClient struct {
	cfg  *config.Config
	http *http.Client
}

func newRelayClient(cfg *config.Config) *relayClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		resolved, err := dns.ResolveHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		var d net.Dialer
		return d.DialContext(ctx, network, resolved)
	}
	return &relayClient{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout, Transport: transport},
	}
}

func (c *relayClient) do(ctx context.Context, method, path string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.HTTPURL(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("relay: %s", body.Error)
		}
		return fmt.Errorf("relay: unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// allocateRoom asks the relay for a free room code.
func (c *relayClient) allocateRoom(ctx context.Context) (string, error) {
	var body struct {
		RoomCode string `json:"roomCode"`
	}
	if err := c.do(ctx, http.MethodPost, "/rooms", http.StatusCreated, &body); err != nil {
		return "", err
	}
	return body.RoomCode, nil
}

// listRooms fetches the relay's open rooms.
func (c *relayClient) listRooms(ctx context.Context) ([]ui.RoomRow, error) {
	var body struct {
		Rooms []ui.RoomRow `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", http.StatusOK, &body); err != nil {
		return nil, err
	}
	return body.Rooms, nil
}
