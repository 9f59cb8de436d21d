package model

import "time"

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingAccepted BookingStatus = "accepted"
	BookingRejected BookingStatus = "rejected"
)

func (s BookingStatus) IsTerminal() bool {
	return s == BookingAccepted || s == BookingRejected
}

type BookingRequest struct {
	ID             string        `json:"id,omitempty" bson:"_id,omitempty"`
	PropertyID     string        `json:"property_id" bson:"property_id"`
	RequesterID    string        `json:"requester_id" bson:"requester_id"`
	OwnerID        string        `json:"owner_id" bson:"owner_id"`
	StartDate      Date          `json:"start_date" bson:"start_date"`
	EndDate        Date          `json:"end_date" bson:"end_date"`
	Status         BookingStatus `json:"status" bson:"status"`
	Message        string        `json:"message,omitempty" bson:"message,omitempty"`
	CalendarSynced bool          `json:"calendar_synced" bson:"calendar_synced"`
	ResolvedBy     string        `json:"resolved_by,omitempty" bson:"resolved_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at"`

	Property    *PropertySummary `json:"property,omitempty" bson:"-"`
	Counterpart *ProfileSummary  `json:"counterpart,omitempty" bson:"-"`
}

func (b *BookingRequest) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

func (b *BookingRequest) HasParticipant(userID string) bool {
	return userID != "" && (b.OwnerID == userID || b.RequesterID == userID)
}

// CounterpartOf returns the participant who is not viewerID.
func (b *BookingRequest) CounterpartOf(viewerID string) string {
	if b.OwnerID == viewerID {
		return b.RequesterID
	}
	return b.OwnerID
}

// NeedsReconcile is true for an accepted request whose range has not been
// written to the property calendar.
func (b *BookingRequest) NeedsReconcile() bool {
	return b.Status == BookingAccepted && !b.CalendarSynced
}

type BookingRequestCreate struct {
	PropertyID string `json:"property_id" validate:"required,notblank,max=64"`
	OwnerID    string `json:"owner_id" validate:"required,notblank,max=64"`
	StartDate  string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Message    string `json:"message,omitempty" validate:"omitempty,max=2000"`
}
