package model

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// MaxRangeDays bounds a single stay so calendar walks stay small. Published
// windows are not bounded.
const MaxRangeDays = 366

// Date is a calendar day in YYYY-MM-DD form. The fixed layout makes string
// ordering equal to chronological ordering.
type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(t.Format(DateLayout)), nil
}

func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string {
	return string(d)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start Date `json:"start_date" bson:"start_date"`
	End   Date `json:"end_date" bson:"end_date"`
}

func NewDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	r := DateRange{Start: s, End: e}
	return r, r.Validate()
}

func (r DateRange) Validate() error {
	if !r.Start.Valid() || !r.End.Valid() {
		return fmt.Errorf("%w: dates must use %s", ErrInvalidRange, DateLayout)
	}
	if r.Start > r.End {
		return fmt.Errorf("%w: start_date %s is after end_date %s", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// ValidateStay is Validate plus the MaxRangeDays bound on a booked stay.
func (r DateRange) ValidateStay() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Len() > MaxRangeDays {
		return fmt.Errorf("%w: stay spans more than %d days", ErrInvalidRange, MaxRangeDays)
	}
	return nil
}

// Len is the number of days in the range, both ends included.
func (r DateRange) Len() int {
	if r.Start > r.End {
		return 0
	}
	return int(r.End.Time().Sub(r.Start.Time()).Hours()/24) + 1
}

func (r DateRange) Days() []Date {
	n := r.Len()
	days := make([]Date, 0, n)
	start := r.Start.Time()
	for i := 0; i < n; i++ {
		days = append(days, DateOf(start.AddDate(0, 0, i)))
	}
	return days
}

func (r DateRange) Contains(d Date) bool {
	return r.Start <= d && d <= r.End
}

func (r DateRange) ContainsRange(other DateRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start, r.End)
}
