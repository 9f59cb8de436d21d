package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "darna/pkg/errors"
	httputil "darna/pkg/http"
	"darna/pkg/identity"
	"darna/pkg/logger"
	"darna/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockBookingRequestService struct {
	createFunc           func(ctx context.Context, requesterID string, input *model.BookingRequestCreate) (*model.BookingRequest, error)
	acceptFunc           func(ctx context.Context, id, actorID string) (*model.BookingRequest, error)
	listForOwnerFunc     func(ctx context.Context, ownerID string) ([]model.BookingRequest, error)
	listForRequesterFunc func(ctx context.Context, requesterID string) ([]model.BookingRequest, error)
}

func (m *mockBookingRequestService) Create(ctx context.Context, requesterID string, input *model.BookingRequestCreate) (*model.BookingRequest, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, requesterID, input)
	}
	return &model.BookingRequest{ID: "req-1"}, nil
}

func (m *mockBookingRequestService) Get(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	return nil, nil
}

func (m *mockBookingRequestService) Accept(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	if m.acceptFunc != nil {
		return m.acceptFunc(ctx, id, actorID)
	}
	return &model.BookingRequest{ID: id, Status: model.BookingAccepted}, nil
}

func (m *mockBookingRequestService) Reject(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	return nil, nil
}

func (m *mockBookingRequestService) ReconcileAvailability(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	return nil, nil
}

func (m *mockBookingRequestService) ListForOwner(ctx context.Context, ownerID string) ([]model.BookingRequest, error) {
	if m.listForOwnerFunc != nil {
		return m.listForOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockBookingRequestService) ListForRequester(ctx context.Context, requesterID string) ([]model.BookingRequest, error) {
	if m.listForRequesterFunc != nil {
		return m.listForRequesterFunc(ctx, requesterID)
	}
	return nil, nil
}

func (m *mockBookingRequestService) Enrich(ctx context.Context, viewerID string, reqs []model.BookingRequest) {}

func newTestRouter(svc *mockBookingRequestService) *httprouter.Router {
	router := httprouter.New()
	NewBookingRequestHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(identity.WithIdentity(req.Context(), identity.Identity{UserID: userID, Role: identity.RoleGuest}))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreate(t *testing.T) {
	var gotRequester string
	svc := &mockBookingRequestService{
		createFunc: func(ctx context.Context, requesterID string, input *model.BookingRequestCreate) (*model.BookingRequest, error) {
			gotRequester = requesterID
			if input.PropertyID == "taken" {
				return nil, apperrors.Conflict("Selected dates are not available")
			}
			return &model.BookingRequest{ID: "req-1", PropertyID: input.PropertyID, Status: model.BookingPending}, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		name       string
		body       string
		userID     string
		wantStatus int
		wantCode   string
	}{
		{"created", `{"property_id":"p1","owner_id":"o1","start_date":"2026-07-01","end_date":"2026-07-05"}`, "guest-1", http.StatusCreated, ""},
		{"malformed body", `{"property_id":`, "guest-1", http.StatusBadRequest, ""},
		{"dates taken", `{"property_id":"taken","owner_id":"o1","start_date":"2026-07-01","end_date":"2026-07-05"}`, "guest-1", http.StatusConflict, apperrors.CodeConflict},
		{"anonymous", `{}`, "", http.StatusUnauthorized, apperrors.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPost, "/api/v1/booking-requests", tt.body, tt.userID)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body)
			}
			if tt.wantCode != "" {
				var resp httputil.ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Code != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, rec.Body)
				}
			}
		})
	}

	if gotRequester != "guest-1" {
		t.Errorf("requester should come from the token, got %q", gotRequester)
	}
}

func TestList_Role(t *testing.T) {
	var called string
	svc := &mockBookingRequestService{
		listForOwnerFunc: func(ctx context.Context, ownerID string) ([]model.BookingRequest, error) {
			called = "owner"
			return []model.BookingRequest{{ID: "a"}, {ID: "b"}}, nil
		},
		listForRequesterFunc: func(ctx context.Context, requesterID string) ([]model.BookingRequest, error) {
			called = "requester"
			return []model.BookingRequest{{ID: "c"}}, nil
		},
	}
	router := newTestRouter(svc)

	tests := []struct {
		query      string
		wantStatus int
		wantCalled string
		wantTotal  int
	}{
		{"", http.StatusOK, "requester", 1},
		{"?role=requester", http.StatusOK, "requester", 1},
		{"?role=owner", http.StatusOK, "owner", 2},
		{"?role=admin", http.StatusBadRequest, "", 0},
	}

	for _, tt := range tests {
		t.Run("role"+tt.query, func(t *testing.T) {
			called = ""
			rec := serve(router, http.MethodGet, "/api/v1/booking-requests"+tt.query, "", "user-1")

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("expected %q listing, got %q", tt.wantCalled, called)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp httputil.ListResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.TotalCount != tt.wantTotal {
				t.Errorf("expected total %d, got %d", tt.wantTotal, resp.TotalCount)
			}
		})
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name       string
		accept     func(ctx context.Context, id, actorID string) (*model.BookingRequest, error)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "accepted",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"accepted"`,
		},
		{
			name: "partial failure keeps the committed request",
			accept: func(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
				req := &model.BookingRequest{ID: id, Status: model.BookingAccepted}
				return req, apperrors.PartialFailure("Calendar not updated", "/api/v1/booking-requests/id/"+id+"/reconcile", errors.New("write failed"))
			},
			wantStatus: http.StatusAccepted,
			wantBody:   `"recovery":"/api/v1/booking-requests/id/req-9/reconcile"`,
		},
		{
			name: "already handled",
			accept: func(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
				return nil, apperrors.State("Booking request has already been handled", string(model.BookingRejected))
			},
			wantStatus: http.StatusConflict,
			wantBody:   `"current_status":"rejected"`,
		},
		{
			name: "not the owner",
			accept: func(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
				return nil, apperrors.Forbidden("Only the property owner can accept this request")
			},
			wantStatus: http.StatusForbidden,
			wantBody:   apperrors.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockBookingRequestService{acceptFunc: tt.accept})
			rec := serve(router, http.MethodPost, "/api/v1/booking-requests/id/req-9/accept", "", "owner-1")

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %s, got %s", tt.wantBody, rec.Body)
			}
		})
	}
}
