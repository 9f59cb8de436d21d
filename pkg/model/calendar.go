package model

import (
	"sort"
	"time"
)

type DayStatus string

const (
	DayAvailable DayStatus = "available"
	DayBooked    DayStatus = "booked"
)

type CalendarDay struct {
	Status           DayStatus `json:"status" bson:"status"`
	BookingRequestID string    `json:"booking_request_id,omitempty" bson:"booking_request_id,omitempty"`
}

// AvailabilityCalendar holds the bookable window of a property and its
// per-date overrides. All methods are pure: mutators return a new calendar and
// never touch the receiver's map.
type AvailabilityCalendar struct {
	PropertyID string               `json:"property_id" bson:"_id"`
	Window     *DateRange           `json:"window,omitempty" bson:"window,omitempty"`
	Dates      map[Date]CalendarDay `json:"dates,omitempty" bson:"dates,omitempty"`
	Version    int64                `json:"version" bson:"version"`
	UpdatedAt  time.Time            `json:"updated_at" bson:"updated_at"`
}

func NewCalendar(propertyID string) AvailabilityCalendar {
	return AvailabilityCalendar{PropertyID: propertyID}
}

// IsRangeAvailable reports whether every day of r can be booked. A day with an
// explicit entry is available unless booked; a day without one is available
// only inside the published window.
func (c AvailabilityCalendar) IsRangeAvailable(r DateRange) bool {
	return c.IsRangeAvailableFor(r, "")
}

// IsRangeAvailableFor is IsRangeAvailable where days already booked by
// requestID count as available.
func (c AvailabilityCalendar) IsRangeAvailableFor(r DateRange, requestID string) bool {
	if r.ValidateStay() != nil {
		return false
	}
	for _, d := range r.Days() {
		if !c.dayAvailableFor(d, requestID) {
			return false
		}
	}
	return true
}

func (c AvailabilityCalendar) dayAvailableFor(d Date, requestID string) bool {
	if day, ok := c.Dates[d]; ok {
		if day.Status != DayBooked {
			return true
		}
		return requestID != "" && day.BookingRequestID == requestID
	}
	return c.Window != nil && c.Window.Contains(d)
}

// ForeignBookings lists days in r that are booked by a request other than
// requestID.
func (c AvailabilityCalendar) ForeignBookings(r DateRange, requestID string) []Date {
	var taken []Date
	for _, d := range r.Days() {
		day, ok := c.Dates[d]
		if ok && day.Status == DayBooked && day.BookingRequestID != requestID {
			taken = append(taken, d)
		}
	}
	return taken
}

// MarkBooked returns a calendar with every day of r booked by requestID.
// Entries outside r are carried over untouched and a day already booked keeps
// its original booking, so applying the same range twice is a no-op.
func (c AvailabilityCalendar) MarkBooked(r DateRange, requestID string) AvailabilityCalendar {
	next := c.clone()
	if next.Dates == nil {
		next.Dates = make(map[Date]CalendarDay, r.Len())
	}
	for _, d := range r.Days() {
		if day, ok := next.Dates[d]; ok && day.Status == DayBooked {
			continue
		}
		next.Dates[d] = CalendarDay{Status: DayBooked, BookingRequestID: requestID}
	}
	return next
}

// WithWindow publishes r as the bookable window, keeping per-date overrides.
func (c AvailabilityCalendar) WithWindow(r DateRange) AvailabilityCalendar {
	next := c.clone()
	w := r
	next.Window = &w
	return next
}

// Clear removes the window and every per-date entry.
func (c AvailabilityCalendar) Clear() AvailabilityCalendar {
	return AvailabilityCalendar{
		PropertyID: c.PropertyID,
		Version:    c.Version,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (c AvailabilityCalendar) IsBooked(d Date) bool {
	day, ok := c.Dates[d]
	return ok && day.Status == DayBooked
}

func (c AvailabilityCalendar) BookedDates() []Date {
	var booked []Date
	for d, day := range c.Dates {
		if day.Status == DayBooked {
			booked = append(booked, d)
		}
	}
	sort.Slice(booked, func(i, j int) bool { return booked[i] < booked[j] })
	return booked
}

// Equal compares window and per-date entries, ignoring bookkeeping fields.
func (c AvailabilityCalendar) Equal(other AvailabilityCalendar) bool {
	if (c.Window == nil) != (other.Window == nil) {
		return false
	}
	if c.Window != nil && *c.Window != *other.Window {
		return false
	}
	if len(c.Dates) != len(other.Dates) {
		return false
	}
	for d, day := range c.Dates {
		if o, ok := other.Dates[d]; !ok || o != day {
			return false
		}
	}
	return true
}

func (c AvailabilityCalendar) clone() AvailabilityCalendar {
	next := c
	if c.Window != nil {
		w := *c.Window
		next.Window = &w
	}
	if c.Dates != nil {
		next.Dates = make(map[Date]CalendarDay, len(c.Dates))
		for d, day := range c.Dates {
			next.Dates[d] = day
		}
	}
	return next
}
