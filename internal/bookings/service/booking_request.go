package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bookingserrors "darna/internal/bookings/errors"
	"darna/internal/bookings/repository"
	"darna/internal/bookings/validator"
	"darna/internal/directory"
	"darna/pkg/config"
	apperrors "darna/pkg/errors"
	"darna/pkg/model"
	"darna/pkg/notify"
	"darna/pkg/sanitizer"
)

// Calendar is the part of the availability service bookings depend on.
type Calendar interface {
	IsRangeAvailable(ctx context.Context, propertyID string, r model.DateRange, requestID string) (bool, error)
	BookRange(ctx context.Context, propertyID string, r model.DateRange, requestID string) (*model.AvailabilityCalendar, error)
}

type BookingRequestService interface {
	Create(ctx context.Context, requesterID string, input *model.BookingRequestCreate) (*model.BookingRequest, error)
	Get(ctx context.Context, id, actorID string) (*model.BookingRequest, error)
	Accept(ctx context.Context, id, actorID string) (*model.BookingRequest, error)
	Reject(ctx context.Context, id, actorID string) (*model.BookingRequest, error)
	// ReconcileAvailability writes the range of an accepted request to the
	// calendar if an earlier accept could not. Safe to repeat.
	ReconcileAvailability(ctx context.Context, id, actorID string) (*model.BookingRequest, error)
	ListForOwner(ctx context.Context, ownerID string) ([]model.BookingRequest, error)
	ListForRequester(ctx context.Context, requesterID string) ([]model.BookingRequest, error)
	// Enrich attaches property and counterpart summaries as seen by viewerID.
	// Lookup failures leave the fields empty.
	Enrich(ctx context.Context, viewerID string, reqs []model.BookingRequest)
}

type bookingRequestService struct {
	repo       repository.BookingRequestRepository
	calendar   Calendar
	validator  *validator.BookingRequestValidator
	profiles   directory.ProfileLookup
	properties directory.PropertyLookup
	notifier   notify.Notifier
	cfg        *config.Config
}

func NewBookingRequestService(
	repo repository.BookingRequestRepository,
	calendar Calendar,
	validator *validator.BookingRequestValidator,
	profiles directory.ProfileLookup,
	properties directory.PropertyLookup,
	notifier notify.Notifier,
	cfg *config.Config,
) BookingRequestService {
	return &bookingRequestService{
		repo:       repo,
		calendar:   calendar,
		validator:  validator,
		profiles:   profiles,
		properties: properties,
		notifier:   notifier,
		cfg:        cfg,
	}
}

func RecoveryPath(id string) string {
	return fmt.Sprintf("/api/v1/booking-requests/id/%s/reconcile", id)
}

func (s *bookingRequestService) Create(ctx context.Context, requesterID string, input *model.BookingRequestCreate) (*model.BookingRequest, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}

	s.sanitize(input)
	r, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	if input.OwnerID == requesterID {
		return nil, apperrors.Validation("You cannot request your own property", map[string]any{"field": "OwnerID"})
	}
	if err := s.verifyOwner(ctx, input.PropertyID, input.OwnerID); err != nil {
		return nil, err
	}

	available, err := s.calendar.IsRangeAvailable(ctx, input.PropertyID, r, "")
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, apperrors.Conflict("Requested dates are not available").
			WithDetails(map[string]any{"start_date": r.Start, "end_date": r.End})
	}

	req := &model.BookingRequest{
		PropertyID:  input.PropertyID,
		RequesterID: requesterID,
		OwnerID:     input.OwnerID,
		StartDate:   r.Start,
		EndDate:     r.End,
		Status:      model.BookingPending,
		Message:     input.Message,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		s.cfg.Log.Error("Failed to create booking request", "error", err)
		return nil, apperrors.Internal("Failed to create booking request", err)
	}

	s.cfg.Log.Info("Booking request created",
		"id", req.ID,
		"property_id", req.PropertyID,
		"requester_id", req.RequesterID,
		"range", r.String(),
	)

	s.notifier.Notify(ctx, notify.Notification{
		Kind:             notify.KindBookingRequested,
		RecipientID:      req.OwnerID,
		Title:            "New booking request",
		Body:             fmt.Sprintf("Stay from %s to %s", req.StartDate, req.EndDate),
		BookingRequestID: req.ID,
		PropertyID:       req.PropertyID,
		CreatedAt:        req.CreatedAt,
	})
	return req, nil
}

func (s *bookingRequestService) Get(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.HasParticipant(actorID) {
		return nil, apperrors.Forbidden("Only the requester or the owner can view this booking request")
	}

	reqs := []model.BookingRequest{*req}
	s.Enrich(ctx, actorID, reqs)
	return &reqs[0], nil
}

func (s *bookingRequestService) Accept(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	req, err := s.findPendingForOwner(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	available, err := s.calendar.IsRangeAvailable(ctx, req.PropertyID, req.Range(), req.ID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, apperrors.Conflict("Requested dates are no longer available").
			WithDetails(map[string]any{"start_date": req.StartDate, "end_date": req.EndDate})
	}

	accepted, err := s.transition(ctx, id, model.BookingAccepted, actorID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		Kind:             notify.KindBookingAccepted,
		RecipientID:      accepted.RequesterID,
		Title:            "Your booking request was accepted",
		Body:             fmt.Sprintf("Stay from %s to %s", accepted.StartDate, accepted.EndDate),
		BookingRequestID: accepted.ID,
		PropertyID:       accepted.PropertyID,
		CreatedAt:        time.Now().UTC(),
	})

	synced, err := s.syncCalendar(ctx, accepted)
	if err != nil {
		s.notifier.Notify(ctx, notify.Notification{
			Kind:             notify.KindCalendarPending,
			RecipientID:      accepted.OwnerID,
			Title:            "Calendar update pending",
			Body:             "The booking was accepted but the dates were not blocked yet",
			BookingRequestID: accepted.ID,
			PropertyID:       accepted.PropertyID,
			CreatedAt:        time.Now().UTC(),
		})
		return accepted, err
	}

	s.cfg.Log.Info("Booking request accepted", "id", id, "owner_id", actorID)
	return synced, nil
}

func (s *bookingRequestService) Reject(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	if _, err := s.findPendingForOwner(ctx, id, actorID); err != nil {
		return nil, err
	}

	rejected, err := s.transition(ctx, id, model.BookingRejected, actorID)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Booking request rejected", "id", id, "owner_id", actorID)
	s.notifier.Notify(ctx, notify.Notification{
		Kind:             notify.KindBookingRejected,
		RecipientID:      rejected.RequesterID,
		Title:            "Your booking request was declined",
		BookingRequestID: rejected.ID,
		PropertyID:       rejected.PropertyID,
		CreatedAt:        time.Now().UTC(),
	})
	return rejected, nil
}

func (s *bookingRequestService) ReconcileAvailability(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != actorID {
		return nil, apperrors.Forbidden("Only the property owner can reconcile this booking request")
	}
	if req.Status != model.BookingAccepted {
		return nil, apperrors.State("Only accepted booking requests can be reconciled", string(req.Status))
	}
	if req.CalendarSynced {
		return req, nil
	}

	synced, err := s.syncCalendar(ctx, req)
	if err != nil {
		return req, err
	}
	s.cfg.Log.Info("Booking request calendar reconciled", "id", id)
	return synced, nil
}

func (s *bookingRequestService) ListForOwner(ctx context.Context, ownerID string) ([]model.BookingRequest, error) {
	if ownerID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	reqs, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		s.cfg.Log.Error("Failed to list booking requests", "owner_id", ownerID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve booking requests", err)
	}
	s.Enrich(ctx, ownerID, reqs)
	return reqs, nil
}

func (s *bookingRequestService) ListForRequester(ctx context.Context, requesterID string) ([]model.BookingRequest, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	reqs, err := s.repo.FindByRequester(ctx, requesterID)
	if err != nil {
		s.cfg.Log.Error("Failed to list booking requests", "requester_id", requesterID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve booking requests", err)
	}
	s.Enrich(ctx, requesterID, reqs)
	return reqs, nil
}

func (s *bookingRequestService) Enrich(ctx context.Context, viewerID string, reqs []model.BookingRequest) {
	if len(reqs) == 0 {
		return
	}

	propertyIDs := make([]string, 0, len(reqs))
	userIDs := make([]string, 0, len(reqs))
	for i := range reqs {
		propertyIDs = append(propertyIDs, reqs[i].PropertyID)
		userIDs = append(userIDs, reqs[i].CounterpartOf(viewerID))
	}

	var (
		wg         sync.WaitGroup
		properties map[string]model.PropertySummary
		profiles   map[string]model.ProfileSummary
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		properties, err = s.properties.GetMany(ctx, propertyIDs)
		if err != nil {
			s.logTransient(apperrors.TransientFetch("properties", err))
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		profiles, err = s.profiles.GetMany(ctx, userIDs)
		if err != nil {
			s.logTransient(apperrors.TransientFetch("profiles", err))
		}
	}()

	wg.Wait()

	for i := range reqs {
		if p, ok := properties[reqs[i].PropertyID]; ok {
			reqs[i].Property = &p
		}
		if p, ok := profiles[reqs[i].CounterpartOf(viewerID)]; ok {
			reqs[i].Counterpart = &p
		}
	}
}

func (s *bookingRequestService) logTransient(err *apperrors.AppError) {
	s.cfg.Log.Warn("Enrichment skipped", "code", err.Code, "error", err)
}

// syncCalendar books the request's range and records that it did. Any
// failure is reported as a partial failure since the status change has
// already been committed.
func (s *bookingRequestService) syncCalendar(ctx context.Context, req *model.BookingRequest) (*model.BookingRequest, error) {
	recovery := RecoveryPath(req.ID)

	if _, err := s.calendar.BookRange(ctx, req.PropertyID, req.Range(), req.ID); err != nil {
		s.cfg.Log.Error("Calendar update failed after accept",
			"id", req.ID,
			"property_id", req.PropertyID,
			"error", err,
		)
		return nil, apperrors.PartialFailure("Booking request accepted but the calendar was not updated", recovery, err)
	}

	synced, err := s.repo.MarkCalendarSynced(ctx, req.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to record calendar sync", "id", req.ID, "error", err)
		return nil, apperrors.PartialFailure("Calendar updated but the booking request was not marked as synced", recovery, err)
	}
	return synced, nil
}

func (s *bookingRequestService) findPendingForOwner(ctx context.Context, id, actorID string) (*model.BookingRequest, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != actorID {
		return nil, apperrors.Forbidden("Only the property owner can respond to this booking request")
	}
	if req.Status != model.BookingPending {
		return nil, apperrors.State("Booking request has already been handled", string(req.Status))
	}
	return req, nil
}

func (s *bookingRequestService) transition(ctx context.Context, id string, to model.BookingStatus, actorID string) (*model.BookingRequest, error) {
	updated, err := s.repo.TransitionStatus(ctx, id, model.BookingPending, to, actorID)
	if err == nil {
		return updated, nil
	}

	if errors.Is(err, bookingserrors.ErrStatusChanged) {
		current := ""
		if req, findErr := s.repo.FindByID(ctx, id); findErr == nil {
			current = string(req.Status)
		}
		s.cfg.Log.Warn("Booking request transition lost race",
			"id", id,
			"target", to,
			"current", current,
		)
		return nil, apperrors.State("Booking request has already been handled", current)
	}
	return nil, s.mapRepoError(id, err)
}

func (s *bookingRequestService) find(ctx context.Context, id string) (*model.BookingRequest, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking request ID cannot be empty")
	}
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(id, err)
	}
	return req, nil
}

func (s *bookingRequestService) mapRepoError(id string, err error) error {
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking request", id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking request ID format")
	default:
		return apperrors.Internal("Failed to access booking request", err)
	}
}

// verifyOwner rejects a request whose owner does not match the property. A
// directory outage does not block creation.
func (s *bookingRequestService) verifyOwner(ctx context.Context, propertyID, ownerID string) error {
	props, err := s.properties.GetMany(ctx, []string{propertyID})
	if err != nil {
		s.logTransient(apperrors.TransientFetch("properties", err))
		return nil
	}
	prop, ok := props[propertyID]
	if !ok {
		return apperrors.NotFoundWithID("Property", propertyID)
	}
	if prop.OwnerID != ownerID {
		return apperrors.Validation("owner_id does not match the property owner", map[string]any{"field": "OwnerID"})
	}
	return nil
}

func (s *bookingRequestService) validate(input *model.BookingRequestCreate) (model.DateRange, error) {
	r, err := s.validator.Validate(input)
	if err != nil {
		s.cfg.Log.Warn("Booking request validation failed", "error", err)
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			return model.DateRange{}, apperrors.Validation("Booking request validation failed", map[string]any{
				"field":  validationErrs[0].Field,
				"errors": validationErrs,
			})
		}
		return model.DateRange{}, apperrors.Validation("Booking request validation failed", nil)
	}
	return r, nil
}

func (s *bookingRequestService) sanitize(input *model.BookingRequestCreate) {
	input.PropertyID = sanitizer.TrimSpace(input.PropertyID)
	input.OwnerID = sanitizer.TrimSpace(input.OwnerID)
	input.StartDate = sanitizer.TrimSpace(input.StartDate)
	input.EndDate = sanitizer.TrimSpace(input.EndDate)
	input.Message = sanitizer.NormalizeText(input.Message)
}
