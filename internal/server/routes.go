package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/roommesh/internal/relay"
	"github.com/BioHazard786/roommesh/internal/roomcode"
)

// Options configures the relay HTTP surface.
type Options struct {
	// Mode is the gin mode: "release", "debug" or "test".
	Mode           string
	AllowedOrigins []string
	Client         relay.ClientOptions
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type handlers struct {
	fwd      *relay.Forwarder
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRouter builds the relay's HTTP router.
func NewRouter(fwd *relay.Forwarder, opts Options) *gin.Engine {
	switch opts.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(opts.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{
		fwd:    fwd,
		opts:   opts,
		logger: logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// Origins are checked by originFilter.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := gin.New()
	if opts.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	if len(opts.AllowedOrigins) > 0 {
		r.Use(originFilter(opts.AllowedOrigins))
	}

	r.GET("/health", h.health)
	r.GET("/ws", h.serveWs)
	r.GET("/rooms", h.listRooms)
	r.POST("/rooms", h.allocateRoom)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": h.fwd.Registry().Len()})
}

// serveWs upgrades the connection and hands it to a relay client.
func (h *handlers) serveWs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := relay.NewClient(conn, h.fwd, h.opts.Client, h.logger)
	h.logger.Debug("client connected", "remote", client.String())

	go client.WritePump()
	go client.ReadPump()
}

// listRooms reports room codes and sizes. Member identities stay private.
func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.fwd.Registry().Stats()})
}

// allocateRoom returns a memorable code not currently in use. The room
// itself only exists once someone joins it.
func (h *handlers) allocateRoom(c *gin.Context) {
	code, err := roomcode.Generate(h.fwd.Registry().Exists)
	if errors.Is(err, roomcode.ErrExhausted) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no room code available"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roomCode": code})
}
