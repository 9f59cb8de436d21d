package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"darna/internal/messages/service"
	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type StatusUpdateResponse struct {
	Updated int64 `json:"updated"`
}

type MessageHandler struct {
	service service.MessageService
	log     *logger.Logger
}

func NewMessageHandler(service service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		log:     log,
	}
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "List")
	if !ok {
		return
	}

	msgs, err := h.service.Load(r.Context(), ps.ByName("id"), caller.UserID)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WriteList(w, msgs, len(msgs)); err != nil {
		h.log.Error("failed to write list response", "handler", "List", "operation", "WriteList", "error", err)
	}
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "Create")
	if !ok {
		return
	}

	var input model.MessageCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	msg, err := h.service.Append(r.Context(), ps.ByName("id"), caller.UserID, &input)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, msg); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *MessageHandler) Seen(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.advance(w, r, ps, "Seen", h.service.MarkSeen)
}

func (h *MessageHandler) Delivered(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.advance(w, r, ps, "Delivered", h.service.MarkDelivered)
}

func (h *MessageHandler) advance(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	action func(ctx context.Context, conversationID, viewerID string) (int64, error),
) {
	caller, ok := h.caller(w, r, name)
	if !ok {
		return
	}

	n, err := action(r.Context(), ps.ByName("id"), caller.UserID)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, StatusUpdateResponse{Updated: n}); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *MessageHandler) caller(w http.ResponseWriter, r *http.Request, name string) (identity.Identity, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, name, apperrors.Unauthorized("authentication required"))
	}
	return caller, ok
}

func (h *MessageHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}

func (h *MessageHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/conversations/id/:id/messages", h.List)
	router.POST("/api/v1/conversations/id/:id/messages", h.Create)
	router.POST("/api/v1/conversations/id/:id/seen", h.Seen)
	router.POST("/api/v1/conversations/id/:id/delivered", h.Delivered)
}
