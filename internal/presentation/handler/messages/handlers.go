package messages

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ikoral/burnbox/internal/chat"
	"github.com/ikoral/burnbox/internal/domain"
	"github.com/ikoral/burnbox/internal/infrastructure/json"
	"github.com/ikoral/burnbox/internal/infrastructure/validate"
	"github.com/ikoral/burnbox/internal/presentation/utils"
)

// Request limits the clients already enforce; the server is the authority.
var (
	validateSender = validate.Field("sender", validate.Required(), validate.MaxLength(100))
	validateText   = validate.Field("text", validate.Required(), validate.MaxLength(1000))
)

type Handler struct {
	gate     *chat.Gate
	messages *chat.Messages
	logger   *zap.SugaredLogger
}

func NewHandler(gate *chat.Gate, messages *chat.Messages, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		gate:     gate,
		messages: messages,
		logger:   logger,
	}
}

func (h *Handler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("roomId query parameter is required"))
		return
	}

	token := utils.GetAuthToken(r)
	if err := h.gate.Authenticate(r.Context(), roomID, token); err != nil {
		h.writeAuthError(w, err)
		return
	}

	var req createMessageRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if err := validateSender(req.Sender); err != nil {
		json.WriteValidationError(w, err)
		return
	}
	if err := validateText(req.Text); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	msg, err := h.messages.Append(r.Context(), roomID, req.Sender, req.Text, token)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
		case errors.Is(err, domain.ErrStoreUnavailable):
			json.WriteServiceUnavailableError(w, err)
		default:
			h.logger.Errorw("append message", "roomId", roomID, "error", err)
			json.WriteInternalError(w, err)
		}
		return
	}

	json.Write(w, http.StatusCreated, msg)
}

func (h *Handler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		json.WriteValidationError(w, errors.New("roomId query parameter is required"))
		return
	}

	token := utils.GetAuthToken(r)
	if err := h.gate.Authenticate(r.Context(), roomID, token); err != nil {
		h.writeAuthError(w, err)
		return
	}

	msgs, err := h.messages.List(r.Context(), roomID, token)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			json.WriteError(w, http.StatusNotFound, err, "Room not found")
		case errors.Is(err, domain.ErrStoreUnavailable):
			json.WriteServiceUnavailableError(w, err)
		default:
			h.logger.Errorw("list messages", "roomId", roomID, "error", err)
			json.WriteInternalError(w, err)
		}
		return
	}

	json.Write(w, http.StatusOK, listMessagesResponse{Messages: msgs})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		json.WriteError(w, http.StatusUnauthorized, err, "Missing or invalid authentication")
		return
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		json.WriteServiceUnavailableError(w, err)
		return
	}
	h.logger.Errorw("authenticate", "error", err)
	json.WriteInternalError(w, err)
}
