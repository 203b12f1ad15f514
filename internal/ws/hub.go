package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fieldnote/scrapesched/internal/fanout"
	"github.com/fieldnote/scrapesched/internal/logger"
)

// Registry is the subset of *fanout.Hub the WS surface depends on.
type Registry interface {
	SubscribeGlobal(o fanout.Observer)
	SubscribeJob(jobID string, o fanout.Observer)
	Unsubscribe(o fanout.Observer)
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// wires each one into the fan-out registry as an Observer, grounded on the
// teacher's internal/api/sse_handler.go subscribe/unsubscribe lifecycle but
// adapted to a bidirectional transport per §6.
type Handler struct {
	registry          Registry
	logger            logger.Logger
	heartbeatInterval time.Duration
	upgrader          websocket.Upgrader
}

// NewHandler builds a Handler. heartbeatInterval is ws_heartbeat_interval
// from configuration (§6).
func NewHandler(registry Registry, heartbeatInterval time.Duration, log logger.Logger) *Handler {
	return &Handler{
		registry:          registry,
		logger:            log,
		heartbeatInterval: heartbeatInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The API is consumed by arbitrary scheduler clients, not
			// same-origin browser pages, so origin checking is left to an
			// upstream reverse proxy rather than enforced here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws (optionally ?job_id=... to scope the subscription
// to one job; otherwise the connection observes every job's events).
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	jobID := c.Query("job_id")
	wsConn := newConnection(conn, h.logger)

	if jobID == "" {
		h.registry.SubscribeGlobal(wsConn)
	} else {
		h.registry.SubscribeJob(jobID, wsConn)
	}

	done := make(chan struct{})
	go wsConn.heartbeatLoop(h.heartbeatInterval, done)
	go wsConn.controlPingLoop(done)

	wsConn.readLoop()

	close(done)
	h.registry.Unsubscribe(wsConn)
	wsConn.close()
}

// Register mounts the streaming surface onto router at /ws, grounded on the
// teacher's route-registration style in internal/api/api.go.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/ws", h.Serve)
}
