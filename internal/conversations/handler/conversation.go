package handler

import (
	"encoding/json"
	"net/http"

	"darna/internal/conversations/service"
	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type UnreadResponse struct {
	TotalUnread int `json:"total_unread"`
}

type ConversationHandler struct {
	service service.ConversationService
	log     *logger.Logger
}

func NewConversationHandler(service service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		log:     log,
	}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "List")
	if !ok {
		return
	}

	views, err := h.service.Refresh(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WriteList(w, views, len(views)); err != nil {
		h.log.Error("failed to write list response", "handler", "List", "operation", "WriteList", "error", err)
	}
}

// Create returns the existing conversation for the triple or starts one. The
// caller is always the client side.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "Create")
	if !ok {
		return
	}

	var input model.ConversationCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	conv, err := h.service.FindOrCreate(r.Context(), caller.UserID, input.OwnerID, input.PropertyID)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteSuccess(w, conv); err != nil {
		h.log.Error("failed to write success response", "handler", "Create", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ConversationHandler) Unread(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "Unread")
	if !ok {
		return
	}

	total, err := h.service.TotalUnread(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, "Unread", err)
		return
	}

	if err := httputil.WriteSuccess(w, UnreadResponse{TotalUnread: total}); err != nil {
		h.log.Error("failed to write success response", "handler", "Unread", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ConversationHandler) caller(w http.ResponseWriter, r *http.Request, name string) (identity.Identity, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, name, apperrors.Unauthorized("authentication required"))
	}
	return caller, ok
}

func (h *ConversationHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ConversationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/conversations", h.List)
	router.POST("/api/v1/conversations", h.Create)
	router.GET("/api/v1/conversations/unread", h.Unread)
}
