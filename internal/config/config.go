package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultDomain             = "localhost:8080"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultReconnectAttempts  = 3
)

// Config holds the mesh client configuration.
type Config struct {
	// Domain is the relay host (and optional port).
	Domain string

	// WebSocketURL is the relay control-plane endpoint.
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay bool

	DisplayName        string
	NegotiationTimeout time.Duration
	ReconnectAttempts  int
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain      string
	ServerURL   string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	DisplayName string
	ForceRelay  bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	v := viper.New()
	for key, env := range map[string]string{
		"domain":              "DOMAIN",
		"server_url":          "SERVER_URL",
		"stun_server":         "STUN_SERVER",
		"turn_server":         "TURN_SERVER",
		"turn_username":       "TURN_USERNAME",
		"turn_password":       "TURN_PASSWORD",
		"force_relay":         "FORCE_RELAY",
		"display_name":        "DISPLAY_NAME",
		"negotiation_timeout": "NEGOTIATION_TIMEOUT",
		"reconnect_attempts":  "RECONNECT_ATTEMPTS",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("stun_server", DefaultSTUN)
	v.SetDefault("negotiation_timeout", DefaultNegotiationTimeout)
	v.SetDefault("reconnect_attempts", DefaultReconnectAttempts)

	override := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	override("domain", opts.Domain)
	override("server_url", opts.ServerURL)
	override("stun_server", opts.STUNServer)
	override("turn_server", opts.TURNServer)
	override("turn_username", opts.TURNUser)
	override("turn_password", opts.TURNPass)
	override("display_name", opts.DisplayName)
	if opts.ForceRelay {
		v.Set("force_relay", true)
	}

	cfg := &Config{
		Domain:             v.GetString("domain"),
		STUNServer:         v.GetString("stun_server"),
		TURNServer:         v.GetString("turn_server"),
		TURNUser:           v.GetString("turn_username"),
		TURNPass:           v.GetString("turn_password"),
		ForceRelay:         v.GetBool("force_relay"),
		DisplayName:        v.GetString("display_name"),
		NegotiationTimeout: v.GetDuration("negotiation_timeout"),
		ReconnectAttempts:  v.GetInt("reconnect_attempts"),
	}

	wsURL := v.GetString("server_url")
	if wsURL == "" {
		wsURL = websocketURL(cfg.Domain)
	}
	u, err := url.Parse(wsURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("invalid relay url %q", wsURL)
	}
	cfg.WebSocketURL = wsURL

	if cfg.NegotiationTimeout <= 0 {
		return nil, fmt.Errorf("negotiation timeout must be positive")
	}
	if cfg.ReconnectAttempts < 0 {
		return nil, fmt.Errorf("reconnect attempts must not be negative")
	}
	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("force relay requires a TURN server")
	}
	return cfg, nil
}

// websocketURL picks ws:// for loopback hosts and wss:// otherwise.
func websocketURL(domain string) string {
	scheme := "wss"
	if isLoopback(domain) {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, domain)
}

func isLoopback(domain string) bool {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// HTTPURL returns the relay's HTTP URL for path, derived from WebSocketURL.
func (c *Config) HTTPURL(path string) string {
	u, err := url.Parse(c.WebSocketURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
