package service

import (
	"context"
	"errors"
	"fmt"

	availabilityerrors "darna/internal/availability/errors"
	"darna/internal/availability/repository"
	"darna/internal/directory"
	"darna/pkg/config"
	apperrors "darna/pkg/errors"
	"darna/pkg/model"
)

// CalendarService is the only writer of property calendars.
type CalendarService interface {
	Get(ctx context.Context, propertyID string) (*model.AvailabilityCalendar, error)
	IsRangeAvailable(ctx context.Context, propertyID string, r model.DateRange, requestID string) (bool, error)
	BookRange(ctx context.Context, propertyID string, r model.DateRange, requestID string) (*model.AvailabilityCalendar, error)
	SetWindow(ctx context.Context, propertyID, actorID string, r model.DateRange) (*model.AvailabilityCalendar, error)
	Clear(ctx context.Context, propertyID, actorID string) (*model.AvailabilityCalendar, error)
}

type calendarService struct {
	repo       repository.CalendarRepository
	properties directory.PropertyLookup
	cfg        *config.Config
}

func NewCalendarService(repo repository.CalendarRepository, properties directory.PropertyLookup, cfg *config.Config) CalendarService {
	return &calendarService{
		repo:       repo,
		properties: properties,
		cfg:        cfg,
	}
}

func (s *calendarService) Get(ctx context.Context, propertyID string) (*model.AvailabilityCalendar, error) {
	if propertyID == "" {
		return nil, apperrors.Validation("property_id is required", nil)
	}
	cal, err := s.repo.Get(ctx, propertyID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load calendar", err)
	}
	return &cal, nil
}

func (s *calendarService) IsRangeAvailable(ctx context.Context, propertyID string, r model.DateRange, requestID string) (bool, error) {
	cal, err := s.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return cal.IsRangeAvailableFor(r, requestID), nil
}

// BookRange marks r as booked by requestID. Days already booked by requestID
// are left alone, so repeating the call after a partial failure is safe. Days
// booked by another request abort with a conflict.
func (s *calendarService) BookRange(ctx context.Context, propertyID string, r model.DateRange, requestID string) (*model.AvailabilityCalendar, error) {
	if err := r.ValidateStay(); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	cal, err := s.mutate(ctx, propertyID, func(cal model.AvailabilityCalendar) (model.AvailabilityCalendar, error) {
		if taken := cal.ForeignBookings(r, requestID); len(taken) > 0 {
			return cal, apperrors.Conflict("Requested dates are already booked").
				WithDetails(map[string]any{"dates": taken})
		}
		return cal.MarkBooked(r, requestID), nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Calendar range booked",
		"property_id", propertyID,
		"booking_request_id", requestID,
		"range", r.String(),
		"version", cal.Version,
	)
	return cal, nil
}

func (s *calendarService) SetWindow(ctx context.Context, propertyID, actorID string, r model.DateRange) (*model.AvailabilityCalendar, error) {
	if err := r.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), map[string]any{"field": "window"})
	}
	if err := s.authorizeOwner(ctx, propertyID, actorID); err != nil {
		return nil, err
	}

	cal, err := s.mutate(ctx, propertyID, func(cal model.AvailabilityCalendar) (model.AvailabilityCalendar, error) {
		return cal.WithWindow(r), nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Bookable window published", "property_id", propertyID, "window", r.String())
	return cal, nil
}

func (s *calendarService) Clear(ctx context.Context, propertyID, actorID string) (*model.AvailabilityCalendar, error) {
	if err := s.authorizeOwner(ctx, propertyID, actorID); err != nil {
		return nil, err
	}

	cal, err := s.mutate(ctx, propertyID, func(cal model.AvailabilityCalendar) (model.AvailabilityCalendar, error) {
		return cal.Clear(), nil
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Calendar cleared", "property_id", propertyID)
	return cal, nil
}

// mutate applies fn to the latest calendar and saves it conditioned on the
// version it read, re-reading on conflict.
func (s *calendarService) mutate(ctx context.Context, propertyID string, fn func(model.AvailabilityCalendar) (model.AvailabilityCalendar, error)) (*model.AvailabilityCalendar, error) {
	if propertyID == "" {
		return nil, apperrors.Validation("property_id is required", nil)
	}

	attempts := max(s.cfg.CalendarWriteRetries, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		current, err := s.repo.Get(ctx, propertyID)
		if err != nil {
			return nil, apperrors.Internal("Failed to load calendar", err)
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next.Equal(current) && current.Version > 0 {
			return &current, nil
		}

		saved, err := s.repo.Save(ctx, next, current.Version)
		if err == nil {
			return &saved, nil
		}
		if !errors.Is(err, availabilityerrors.ErrVersionConflict) {
			return nil, apperrors.Internal("Failed to save calendar", err)
		}

		s.cfg.Log.Debug("Calendar version conflict, retrying",
			"property_id", propertyID,
			"attempt", attempt,
		)
	}

	return nil, apperrors.Wrap(availabilityerrors.ErrVersionConflict, apperrors.CodeUnavailable,
		fmt.Sprintf("Calendar for property %s is busy, retry later", propertyID), 503)
}

func (s *calendarService) authorizeOwner(ctx context.Context, propertyID, actorID string) error {
	if actorID == "" {
		return apperrors.Unauthorized("authentication required")
	}
	props, err := s.properties.GetMany(ctx, []string{propertyID})
	if err != nil {
		return apperrors.Unavailable("Property directory")
	}
	prop, ok := props[propertyID]
	if !ok {
		return apperrors.NotFoundWithID("Property", propertyID)
	}
	if prop.OwnerID != actorID {
		return apperrors.Forbidden("Only the property owner can edit its calendar")
	}
	return nil
}
