package rooms

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ikoral/burnbox/internal/chat"
	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/json"
	"github.com/ikoral/burnbox/internal/presentation/utils"
)

type Handler struct {
	registry  *chat.Registry
	gate      *chat.Gate
	destroyer *chat.Destroyer
	logger    *zap.SugaredLogger
}

func NewHandler(registry *chat.Registry, gate *chat.Gate, destroyer *chat.Destroyer, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		registry:  registry,
		gate:      gate,
		destroyer: destroyer,
		logger:    logger,
	}
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := h.registry.Create(r.Context())
	if err != nil {
		h.writeStoreError(w, "create room", err)
		return
	}

	json.Write(w, http.StatusCreated, createRoomResponse{RoomID: roomID})
}

// JoinRoomHandler admits the caller into the room. Re-joining with a valid
// cookie is idempotent; a fresh caller takes one of the two slots or gets
// told the room is full.
func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("roomId query parameter is required"))
		return
	}

	token, err := h.gate.Admit(r.Context(), roomID, utils.GetAuthToken(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
		case errors.Is(err, domain.ErrRoomFull):
			json.WriteError(w, http.StatusConflict, err, "Room is full")
		default:
			h.writeStoreError(w, "join room", err)
		}
		return
	}

	ttl, err := h.registry.RemainingLifetime(r.Context(), roomID)
	if err != nil {
		// The room can expire between admit and the TTL read. Treat it as gone.
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		h.writeStoreError(w, "read room ttl", err)
		return
	}

	utils.SetAuthTokenCookie(w, token, ttl)
	json.Write(w, http.StatusOK, joinRoomResponse{RoomID: roomID, TTL: int64(ttl.Seconds())})
}

func (h *Handler) TTLHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("roomId query parameter is required"))
		return
	}

	ttl, err := h.registry.RemainingLifetime(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
			return
		}
		h.writeStoreError(w, "read room ttl", err)
		return
	}

	json.Write(w, http.StatusOK, ttlResponse{TTL: int64(ttl.Seconds())})
}

// DestroyRoomHandler tears the room down on behalf of a member. Destroying a
// room that is already gone succeeds quietly.
func (h *Handler) DestroyRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("roomId query parameter is required"))
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = utils.GetAuthToken(r)
	}

	if err := h.destroyer.Destroy(r.Context(), roomID, token); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			json.WriteError(w, http.StatusUnauthorized, err, "You are not a member of this room")
		default:
			h.writeStoreError(w, "destroy room", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		h.logger.Warnw("store unavailable", "op", op, "error", err)
		json.WriteServiceUnavailableError(w, err)
		return
	}
	h.logger.Errorw("unexpected error", "op", op, "error", err)
	json.WriteInternalError(w, err)
}
