package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"darna/internal/bookings/service"
	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	roleOwner     = "owner"
	roleRequester = "requester"
)

type BookingRequestHandler struct {
	service service.BookingRequestService
	log     *logger.Logger
}

func NewBookingRequestHandler(service service.BookingRequestService, log *logger.Logger) *BookingRequestHandler {
	return &BookingRequestHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingRequestHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "Create")
	if !ok {
		return
	}

	var input model.BookingRequestCreate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	req, err := h.service.Create(r.Context(), caller.UserID, &input)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, req); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingRequestHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := h.caller(w, r, "List")
	if !ok {
		return
	}

	role := r.URL.Query().Get("role")
	if role == "" {
		role = roleRequester
	}

	var (
		reqs []model.BookingRequest
		err  error
	)
	switch role {
	case roleOwner:
		reqs, err = h.service.ListForOwner(r.Context(), caller.UserID)
	case roleRequester:
		reqs, err = h.service.ListForRequester(r.Context(), caller.UserID)
	default:
		err = apperrors.InvalidInput(fmt.Sprintf("invalid role parameter: %s", role))
	}
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WriteList(w, reqs, len(reqs)); err != nil {
		h.log.Error("failed to write list response", "handler", "List", "operation", "WriteList", "error", err)
	}
}

func (h *BookingRequestHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := h.caller(w, r, "GetByID")
	if !ok {
		return
	}

	req, err := h.service.Get(r.Context(), ps.ByName("id"), caller.UserID)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, req); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingRequestHandler) Accept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.resolve(w, r, ps, "Accept", h.service.Accept)
}

func (h *BookingRequestHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.resolve(w, r, ps, "Reject", h.service.Reject)
}

func (h *BookingRequestHandler) Reconcile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.resolve(w, r, ps, "Reconcile", h.service.ReconcileAvailability)
}

// resolve runs an owner action. A partial failure is answered with the
// committed request and the recovery link.
func (h *BookingRequestHandler) resolve(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	action func(ctx context.Context, id, actorID string) (*model.BookingRequest, error),
) {
	caller, ok := h.caller(w, r, name)
	if !ok {
		return
	}

	req, err := action(r.Context(), ps.ByName("id"), caller.UserID)
	if err != nil {
		if req != nil && apperrors.IsCode(err, apperrors.CodePartialFailure) {
			if writeErr := httputil.WritePartial(w, req, err); writeErr != nil {
				h.log.Error("failed to write partial response", "handler", name, "operation", "WritePartial", "error", writeErr)
			}
			return
		}
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, req); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingRequestHandler) caller(w http.ResponseWriter, r *http.Request, name string) (identity.Identity, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, name, apperrors.Unauthorized("authentication required"))
	}
	return caller, ok
}

func (h *BookingRequestHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingRequestHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/booking-requests", h.Create)
	router.GET("/api/v1/booking-requests", h.List)
	router.GET("/api/v1/booking-requests/id/:id", h.GetByID)
	router.POST("/api/v1/booking-requests/id/:id/accept", h.Accept)
	router.POST("/api/v1/booking-requests/id/:id/reject", h.Reject)
	router.POST("/api/v1/booking-requests/id/:id/reconcile", h.Reconcile)
}
