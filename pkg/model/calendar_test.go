package model

import (
	"testing"
)

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	r, err := NewDateRange(start, end)
	if err != nil {
		t.Fatalf("NewDateRange(%s, %s): %v", start, end, err)
	}
	return r
}

func windowCalendar(t *testing.T) AvailabilityCalendar {
	t.Helper()
	return NewCalendar("prop-1").WithWindow(mustRange(t, "2024-06-01", "2024-09-30"))
}

func TestIsRangeAvailable(t *testing.T) {
	window := windowCalendar(t)
	booked := window.MarkBooked(mustRange(t, "2024-07-01", "2024-07-05"), "req-1")

	perDate := NewCalendar("prop-2")
	perDate.Dates = map[Date]CalendarDay{
		"2024-08-01": {Status: DayAvailable},
		"2024-08-02": {Status: DayAvailable},
		"2024-08-03": {Status: DayBooked, BookingRequestID: "req-9"},
	}

	tests := []struct {
		name string
		cal  AvailabilityCalendar
		r    DateRange
		want bool
	}{
		{"inside window", window, mustRange(t, "2024-07-01", "2024-07-05"), true},
		{"window edges", window, mustRange(t, "2024-06-01", "2024-09-30"), true},
		{"starts before window", window, mustRange(t, "2024-05-31", "2024-06-02"), false},
		{"ends after window", window, mustRange(t, "2024-09-29", "2024-10-01"), false},
		{"overlaps booked", booked, mustRange(t, "2024-07-03", "2024-07-06"), false},
		{"adjacent to booked", booked, mustRange(t, "2024-07-06", "2024-07-10"), true},
		{"no window no dates", NewCalendar("empty"), mustRange(t, "2024-07-01", "2024-07-01"), false},
		{"per-date available", perDate, mustRange(t, "2024-08-01", "2024-08-02"), true},
		{"per-date includes booked", perDate, mustRange(t, "2024-08-02", "2024-08-03"), false},
		{"per-date outside map", perDate, mustRange(t, "2024-08-04", "2024-08-04"), false},
		{"inverted range", window, DateRange{Start: "2024-07-05", End: "2024-07-01"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cal.IsRangeAvailable(tt.r); got != tt.want {
				t.Errorf("IsRangeAvailable(%s) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestIsRangeAvailableFor_OwnBookingCounts(t *testing.T) {
	r := mustRange(t, "2024-07-01", "2024-07-05")
	cal := windowCalendar(t).MarkBooked(r, "req-1")

	if !cal.IsRangeAvailableFor(r, "req-1") {
		t.Errorf("days booked by the same request should count as available")
	}
	if cal.IsRangeAvailableFor(r, "req-2") {
		t.Errorf("days booked by another request must not be available")
	}
}

func TestMarkBooked_NonDestructiveMerge(t *testing.T) {
	r1 := mustRange(t, "2024-07-01", "2024-07-05")
	r2 := mustRange(t, "2024-08-10", "2024-08-12")

	base := windowCalendar(t)
	base.Dates = map[Date]CalendarDay{"2024-09-01": {Status: DayAvailable}}

	after := base.MarkBooked(r1, "req-1").MarkBooked(r2, "req-2")

	for _, d := range append(r1.Days(), r2.Days()...) {
		if !after.IsBooked(d) {
			t.Errorf("expected %s to be booked", d)
		}
	}
	if got := len(after.BookedDates()); got != r1.Len()+r2.Len() {
		t.Errorf("expected %d booked dates, got %d", r1.Len()+r2.Len(), got)
	}
	if after.Dates["2024-09-01"].Status != DayAvailable {
		t.Errorf("unrelated entry was modified: %+v", after.Dates["2024-09-01"])
	}
	if after.Window == nil || *after.Window != *base.Window {
		t.Errorf("window should be preserved, got %v", after.Window)
	}
	if after.Dates["2024-08-11"].BookingRequestID != "req-2" {
		t.Errorf("expected req-2 to own 2024-08-11")
	}
}

func TestMarkBooked_DoesNotMutateReceiver(t *testing.T) {
	base := windowCalendar(t)
	base.Dates = map[Date]CalendarDay{"2024-06-10": {Status: DayAvailable}}

	_ = base.MarkBooked(mustRange(t, "2024-06-10", "2024-06-11"), "req-1")

	if len(base.Dates) != 1 || base.Dates["2024-06-10"].Status != DayAvailable {
		t.Errorf("receiver was mutated: %+v", base.Dates)
	}
}

func TestMarkBooked_Idempotent(t *testing.T) {
	r := mustRange(t, "2024-07-01", "2024-07-05")
	once := windowCalendar(t).MarkBooked(r, "req-1")
	twice := once.MarkBooked(r, "req-1")

	if !once.Equal(twice) {
		t.Errorf("applying MarkBooked twice changed the calendar")
	}
}

func TestMarkBooked_KeepsExistingBooking(t *testing.T) {
	cal := windowCalendar(t).MarkBooked(mustRange(t, "2024-07-01", "2024-07-02"), "req-1")
	cal = cal.MarkBooked(mustRange(t, "2024-07-02", "2024-07-03"), "req-2")

	if cal.Dates["2024-07-02"].BookingRequestID != "req-1" {
		t.Errorf("existing booking was overwritten: %+v", cal.Dates["2024-07-02"])
	}
}

func TestForeignBookings(t *testing.T) {
	cal := windowCalendar(t).MarkBooked(mustRange(t, "2024-07-01", "2024-07-03"), "req-1")

	got := cal.ForeignBookings(mustRange(t, "2024-07-02", "2024-07-06"), "req-2")
	if len(got) != 2 || got[0] != "2024-07-02" || got[1] != "2024-07-03" {
		t.Errorf("unexpected foreign bookings %v", got)
	}
	if len(cal.ForeignBookings(mustRange(t, "2024-07-01", "2024-07-03"), "req-1")) != 0 {
		t.Errorf("own bookings should not be reported as foreign")
	}
}

func TestClear(t *testing.T) {
	cal := windowCalendar(t).MarkBooked(mustRange(t, "2024-07-01", "2024-07-05"), "req-1")
	cal.Version = 4

	cleared := cal.Clear()
	if cleared.Window != nil || len(cleared.Dates) != 0 {
		t.Errorf("expected empty calendar, got %+v", cleared)
	}
	if cleared.Version != 4 || cleared.PropertyID != "prop-1" {
		t.Errorf("clear should keep identity and version, got %+v", cleared)
	}
	if cleared.IsRangeAvailable(mustRange(t, "2024-06-10", "2024-06-10")) {
		t.Errorf("nothing should be available after clear")
	}
}

func TestWithWindow_KeepsOverrides(t *testing.T) {
	cal := windowCalendar(t).MarkBooked(mustRange(t, "2024-07-01", "2024-07-02"), "req-1")
	moved := cal.WithWindow(mustRange(t, "2024-07-01", "2024-12-31"))

	if !moved.IsBooked("2024-07-01") {
		t.Errorf("booked override lost when the window changed")
	}
	if moved.IsRangeAvailable(mustRange(t, "2024-06-15", "2024-06-16")) {
		t.Errorf("old window should no longer apply")
	}
}
