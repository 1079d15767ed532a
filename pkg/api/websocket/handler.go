package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/internal/application/executor"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// eventBuffer bounds the per-connection queue; a slow client drops
	// events rather than stalling the bus.
	eventBuffer = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens at the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler streams run lifecycle events over WebSocket connections.
type Handler struct {
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler on the given event bus.
func NewHandler(eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{eventBus: eventBus, logger: logger}
}

// HandleRunStream upgrades the request and forwards run and stage events
// for the run named in the path until the client disconnects.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.logger.With(zap.String("run_id", runID), zap.String("client", c.ClientIP()))
	log.Info("event stream opened")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan *domain.Event, eventBuffer)
	h.subscribe(ctx, events)

	// The read pump only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("event stream closed")
			return
		case <-ping.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case ev := <-events:
			if ev == nil || ev.RunID != runID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error("event marshal failed", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("event write failed", zap.Error(err))
				return
			}
		}
	}
}

// subscribe wires the run and stage topics into the connection's queue.
func (h *Handler) subscribe(ctx context.Context, ch chan<- *domain.Event) {
	forward := func(ctx context.Context, event domain.Event) error {
		select {
		case ch <- &event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event queue full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}

	for _, topic := range []string{executor.TopicRunEvents, executor.TopicStageEvents} {
		if err := h.eventBus.Subscribe(ctx, topic, forward); err != nil {
			h.logger.Error("event subscription failed",
				zap.String("topic", topic), zap.Error(err))
		}
	}
}
