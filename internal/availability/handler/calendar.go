package handler

import (
	"encoding/json"
	"net/http"

	"darna/internal/availability/service"
	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type CalendarHandler struct {
	service service.CalendarService
	log     *logger.Logger
}

func NewCalendarHandler(service service.CalendarService, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		log:     log,
	}
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	cal, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) SetWindow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, "SetWindow", apperrors.Unauthorized("authentication required"))
		return
	}

	var window model.DateRange
	if err := json.NewDecoder(r.Body).Decode(&window); err != nil {
		h.writeError(w, "SetWindow", apperrors.InvalidInput("Invalid request body"))
		return
	}

	cal, err := h.service.SetWindow(r.Context(), ps.ByName("id"), caller.UserID, window)
	if err != nil {
		h.writeError(w, "SetWindow", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "SetWindow", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) Clear(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, "Clear", apperrors.Unauthorized("authentication required"))
		return
	}

	if _, err := h.service.Clear(r.Context(), ps.ByName("id"), caller.UserID); err != nil {
		h.writeError(w, "Clear", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CalendarHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *CalendarHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/properties/:id/calendar", h.Get)
	router.PUT("/api/v1/properties/:id/calendar/window", h.SetWindow)
	router.DELETE("/api/v1/properties/:id/calendar", h.Clear)
}
