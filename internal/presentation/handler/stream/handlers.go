package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ikoral/burnbox/internal/chat"
	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/events"
	"github.com/ikoral/burnbox/internal/infrastructure/json"
	"github.com/ikoral/burnbox/internal/presentation/utils"
)

// Handler upgrades authenticated members to a websocket carrying the room's
// live event stream: buffered history first, then publications as they land.
type Handler struct {
	gate     *chat.Gate
	bus      events.Bus
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

func NewHandler(gate *chat.Gate, bus events.Bus, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		gate: gate,
		bus:  bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("room ID is missing"))
		return
	}

	token := utils.GetAuthToken(r)
	if err := h.gate.Authenticate(r.Context(), roomID, token); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			json.WriteError(w, http.StatusUnauthorized, err, "Missing or invalid authentication")
		} else {
			json.WriteInternalError(w, err)
		}
		return
	}

	sub, err := h.bus.Subscribe(r.Context(), events.Channel(roomID),
		events.EventMessage, events.EventDestroy)
	if err != nil {
		json.WriteInternalError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "roomId", roomID, "error", err)
		_ = sub.Close()
		return
	}

	wrapped := newConnWrapper(conn)
	go h.writePump(wrapped, sub, roomID)
	go h.readPump(wrapped, sub, roomID)
}

// writePump relays events until the subscription drains. The stream is
// one-way; the subscription closing (disconnect or bus shutdown) ends it.
func (h *Handler) writePump(conn *connWrapper, sub events.Subscription, roomID string) {
	defer conn.Close()

	for ev := range sub.Events() {
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debugw("websocket write failed", "roomId", roomID, "error", err)
			_ = sub.Close()
			return
		}
	}
}

// readPump exists to notice the peer going away; inbound frames are ignored.
// Unsubscribing here guarantees the delivery registration is released.
func (h *Handler) readPump(conn *connWrapper, sub events.Subscription, roomID string) {
	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("websocket read ended", "roomId", roomID, "error", err)
			}
			return
		}
	}
}
