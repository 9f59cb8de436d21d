//go:build integration

package testutil

import (
	"time"

	"darna/pkg/model"
)

// BookingRequestBuilder provides a fluent interface for building booking
// request payloads. Dates default to a week starting thirty days out.
type BookingRequestBuilder struct {
	req *model.BookingRequestCreate
}

func NewBookingRequestBuilder(propertyID, ownerID string) *BookingRequestBuilder {
	start := model.DateOf(time.Now().AddDate(0, 0, 30))
	return &BookingRequestBuilder{
		req: &model.BookingRequestCreate{
			PropertyID: propertyID,
			OwnerID:    ownerID,
			StartDate:  string(start),
			EndDate:    string(start.AddDays(6)),
		},
	}
}

func (b *BookingRequestBuilder) WithDates(start, end model.Date) *BookingRequestBuilder {
	b.req.StartDate = string(start)
	b.req.EndDate = string(end)
	return b
}

func (b *BookingRequestBuilder) WithMessage(msg string) *BookingRequestBuilder {
	b.req.Message = msg
	return b
}

func (b *BookingRequestBuilder) Build() *model.BookingRequestCreate {
	return b.req
}

// Window returns a date range covering the next four months.
func Window() model.DateRange {
	start := model.DateOf(time.Now())
	return model.DateRange{Start: start, End: start.AddDays(120)}
}
