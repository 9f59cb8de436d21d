package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	liveerrors "darna/internal/live/errors"
	"darna/internal/live/service"
	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type endPayload struct {
	Reason string `json:"reason"`
}

// LiveHandler serves the server-sent event stream. It must be mounted
// outside the request timeout middleware, which buffers the whole response.
type LiveHandler struct {
	factory   service.Factory
	heartbeat time.Duration
	log       *logger.Logger
}

func NewLiveHandler(factory service.Factory, heartbeat time.Duration, log *logger.Logger) *LiveHandler {
	return &LiveHandler{
		factory:   factory,
		heartbeat: heartbeat,
		log:       log,
	}
}

// Stream opens a live session for the caller. Repeat the conversation query
// parameter to follow message streams.
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()

	caller, ok := identity.FromContext(ctx)
	if !ok {
		h.writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	provider := identity.NewSession(caller)
	session := service.NewSession(h.factory, provider, h.log)
	if err := session.Open(ctx, r.URL.Query()["conversation"]); err != nil {
		h.writeError(w, err)
		return
	}
	defer session.Close()

	// The session ends at token expiry; the client reconnects with a fresh token.
	if expires, ok := middleware.TokenExpiry(ctx); ok {
		timer := time.AfterFunc(time.Until(expires), provider.SignOut)
		defer timer.Stop()
	}

	rc := http.NewResponseController(w)
	// Clear the server write deadline; liveness comes from heartbeats.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Error("streaming not supported by response writer", "handler", "Stream", "error", err)
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-session.Done():
			reason := liveerrors.ErrSessionClosed
			if err := session.Err(); err != nil {
				reason = err
			}
			h.send(w, rc, "end", endPayload{Reason: reason.Error()})
			return

		case <-session.Events():
			for _, ev := range session.Drain() {
				if !h.send(w, rc, ev.Name, ev.Data) {
					return
				}
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) send(w http.ResponseWriter, rc *http.ResponseController, name string, data any) bool {
	body, err := json.Marshal(data)
	if err != nil {
		h.log.Error("failed to encode live event", "handler", "Stream", "event", name, "error", err)
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body); err != nil {
		h.log.Debug("live client went away", "handler", "Stream", "error", err)
		return false
	}
	return rc.Flush() == nil
}

func (h *LiveHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Stream", "operation", "WriteError", "error", writeErr)
	}
}

func (h *LiveHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/live", h.Stream)
}
