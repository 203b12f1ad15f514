package ws_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/fanout"
	"github.com/fieldnote/scrapesched/internal/logger"
	"github.com/fieldnote/scrapesched/internal/ws"
)

func newTestServer(t *testing.T, hub *fanout.Hub, heartbeat time.Duration) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := ws.NewHandler(hub, heartbeat, logger.NewNop())
	handler.Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readProgressEvent reads frames until one decodes as a domain.ProgressEvent
// (skipping periodic heartbeat frames, which don't carry a job_id).
func readProgressEvent(t *testing.T, conn *websocket.Conn, within time.Duration) (domain.ProgressEvent, bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return domain.ProgressEvent{}, false
		}
		var event domain.ProgressEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		if event.JobID == "" {
			continue
		}
		return event, true
	}
	return domain.ProgressEvent{}, false
}

func TestServe_GlobalSubscriberReceivesDispatchedEvent(t *testing.T) {
	hub := fanout.NewHub(logger.NewNop())
	server := newTestServer(t, hub, time.Hour)
	conn := dial(t, server, "")

	require.Eventually(t, func() bool {
		hub.Dispatch(domain.NewJobUpdate("job-1", "IN_PROGRESS", 1, 0, 3))
		event, ok := readProgressEvent(t, conn, 100*time.Millisecond)
		return ok && event.JobID == "job-1"
	}, 2*time.Second, 50*time.Millisecond)
}

func TestServe_JobScopedSubscriberOnlyReceivesMatchingJob(t *testing.T) {
	hub := fanout.NewHub(logger.NewNop())
	server := newTestServer(t, hub, time.Hour)
	conn := dial(t, server, "?job_id=job-1")

	require.Eventually(t, func() bool {
		hub.Dispatch(domain.NewJobUpdate("job-2", "IN_PROGRESS", 1, 0, 3))
		hub.Dispatch(domain.NewJobUpdate("job-1", "IN_PROGRESS", 1, 0, 3))
		event, ok := readProgressEvent(t, conn, 100*time.Millisecond)
		return ok && event.JobID == "job-1"
	}, 2*time.Second, 50*time.Millisecond)
}

func TestServe_ClientPingReceivesPong(t *testing.T) {
	hub := fanout.NewHub(logger.NewNop())
	server := newTestServer(t, hub, time.Hour)
	conn := dial(t, server, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "timed out waiting for pong")
		_ = conn.SetReadDeadline(deadline)
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		if string(payload) == "pong" {
			return
		}
	}
}

func TestServe_HeartbeatFrameIsSentPeriodically(t *testing.T) {
	hub := fanout.NewHub(logger.NewNop())
	server := newTestServer(t, hub, 20*time.Millisecond)
	conn := dial(t, server, "")

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "timed out waiting for heartbeat")
		_ = conn.SetReadDeadline(deadline)
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &frame); err == nil && frame.Type == "heartbeat" {
			return
		}
	}
}

// unsubscribeRecorder wraps a Hub and signals every Unsubscribe call made
// through the Registry interface.
type unsubscribeRecorder struct {
	*fanout.Hub
	unsubscribed chan struct{}
}

func (r *unsubscribeRecorder) Unsubscribe(o fanout.Observer) {
	r.Hub.Unsubscribe(o)
	select {
	case r.unsubscribed <- struct{}{}:
	default:
	}
}

func TestServe_DisconnectUnsubscribesObserver(t *testing.T) {
	hub := fanout.NewHub(logger.NewNop())
	registry := &unsubscribeRecorder{Hub: hub, unsubscribed: make(chan struct{}, 1)}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ws.NewHandler(registry, time.Hour, logger.NewNop()).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	conn := dial(t, server, "")

	require.Eventually(t, func() bool {
		hub.Dispatch(domain.NewJobUpdate("job-1", "IN_PROGRESS", 1, 0, 3))
		_, ok := readProgressEvent(t, conn, 100*time.Millisecond)
		return ok
	}, 2*time.Second, 50*time.Millisecond)

	require.NoError(t, conn.Close())

	select {
	case <-registry.unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not unsubscribed after disconnect")
	}

	// Dispatch must not block or panic once the connection is gone.
	require.Eventually(t, func() bool {
		hub.Dispatch(domain.NewJobUpdate("job-1", "IN_PROGRESS", 2, 0, 3))
		return true
	}, time.Second, 50*time.Millisecond)
}
