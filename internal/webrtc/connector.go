// Package webrtc adapts pion to the mesh's peer connection capability.
package webrtc

import (
	"log/slog"

	"github.com/pion/ice/v4"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/roommesh/internal/config"
	"github.com/BioHazard786/roommesh/internal/logging"
	"github.com/BioHazard786/roommesh/internal/mesh"
)

var _ mesh.PeerConnector = (*Connector)(nil)

// Options selects ICE servers and policy for new connections.
type Options struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	// ForceRelay restricts ICE to TURN relay candidates. It only applies
	// when TURN servers are configured.
	ForceRelay bool
	// DetectRelay forces relay when the host looks like it sits behind a
	// VPN or CGNAT.
	DetectRelay bool
	// IncludeLoopback gathers loopback host candidates and disables mDNS.
	IncludeLoopback bool
	Logger          *slog.Logger
}

// OptionsFromConfig maps client configuration to connector options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	user, pass := cfg.GetTURNCredentials()
	return Options{
		STUNServers: cfg.GetSTUNServers(),
		TURNServers: cfg.GetTURNServers(),
		TURNUser:    user,
		TURNPass:    pass,
		ForceRelay:  cfg.ForceRelay,
		DetectRelay: true,
		Logger:      logger,
	}
}

// Connector creates pion peer connections.
type Connector struct {
	api    *pion.API
	config pion.Configuration
	logger *slog.Logger
}

// NewConnector builds a connector. Pion's internal logging goes through
// the given slog logger.
func NewConnector(opts Options) *Connector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var se pion.SettingEngine
	se.LoggerFactory = logging.PionFactory{Logger: logger}
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	return &Connector{
		api:    pion.NewAPI(pion.WithSettingEngine(se)),
		config: configuration(opts),
		logger: logger.With("component", "webrtc"),
	}
}

func configuration(opts Options) pion.Configuration {
	var servers []pion.ICEServer
	if len(opts.STUNServers) > 0 {
		servers = append(servers, pion.ICEServer{URLs: opts.STUNServers})
	}
	if len(opts.TURNServers) > 0 {
		servers = append(servers, pion.ICEServer{
			URLs:       opts.TURNServers,
			Username:   opts.TURNUser,
			Credential: opts.TURNPass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if len(opts.TURNServers) > 0 && (opts.ForceRelay || (opts.DetectRelay && ShouldForceRelay())) {
		policy = pion.ICETransportPolicyRelay
	}
	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// Relayed reports whether connections are restricted to TURN.
func (c *Connector) Relayed() bool {
	return c.config.ICETransportPolicy == pion.ICETransportPolicyRelay
}

// NewConnection implements mesh.PeerConnector.
func (c *Connector) NewConnection(peerID string) (mesh.PeerConnection, error) {
	pc, err := c.api.NewPeerConnection(c.config)
	if err != nil {
		return nil, mesh.NewPeerError("create peer connection", peerID, err)
	}
	return &peerConnection{pc: pc, peerID: peerID, logger: c.logger.With("remote", peerID)}, nil
}
