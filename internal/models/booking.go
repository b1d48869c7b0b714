package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingApproved  BookingStatus = "APPROVED"
	BookingRejected  BookingStatus = "REJECTED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transition is permitted.
func (s BookingStatus) Terminal() bool {
	return s == BookingRejected || s == BookingCancelled
}

// ValidBookingStatus reports whether the raw value names a known status.
func ValidBookingStatus(raw string) bool {
	switch BookingStatus(raw) {
	case BookingPending, BookingApproved, BookingRejected, BookingCancelled:
		return true
	default:
		return false
	}
}

// Booking reserves a facility for a time window on a date. Date is
// "YYYY-MM-DD"; StartTime/EndTime are zero-padded "HH:MM" so that the
// half-open overlap comparison works lexicographically.
type Booking struct {
	ID                 string        `db:"id" json:"id"`
	FacilityID         string        `db:"facility_id" json:"facilityId"`
	FacilityName       string        `db:"facility_name" json:"facilityName"`
	UserID             string        `db:"user_id" json:"userId"`
	UserName           string        `db:"user_name" json:"userName"`
	Date               string        `db:"booking_date" json:"date"`
	StartTime          string        `db:"start_time" json:"startTime"`
	EndTime            string        `db:"end_time" json:"endTime"`
	Purpose            string        `db:"purpose" json:"purpose"`
	ExpectedAttendees  int           `db:"expected_attendees" json:"expectedAttendees"`
	Status             BookingStatus `db:"status" json:"status"`
	ReviewedBy         *string       `db:"reviewed_by" json:"reviewedBy,omitempty"`
	RejectionReason    *string       `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellationReason,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`
}

// BookingSummary is the caller-facing description of a colliding booking
// attached to conflict errors.
type BookingSummary struct {
	ID        string        `json:"id"`
	Date      string        `json:"date"`
	StartTime string        `json:"startTime"`
	EndTime   string        `json:"endTime"`
	Status    BookingStatus `json:"status"`
}

// Summary projects the overlap-relevant fields.
func (b *Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:        b.ID,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Status:    b.Status,
	}
}

// BookingFilter captures listing criteria.
type BookingFilter struct {
	UserID     string
	FacilityID string
	Status     *BookingStatus
}

// CanonicalClock re-formats an "HH:MM" clock value with a zero-padded
// hour. time.Parse accepts "9:00", which would sort after "17:00" as a
// string, so every clock value must pass through here before it is
// compared or stored.
func CanonicalClock(raw string) (string, bool) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}

// Overlaps reports half-open interval overlap between two windows on the
// same date: max(startA, startB) < min(endA, endB). Touching endpoints do
// not overlap. Inputs must be canonical "HH:MM" strings.
func Overlaps(startA, endA, startB, endB string) bool {
	lo := startA
	if startB > lo {
		lo = startB
	}
	hi := endA
	if endB < hi {
		hi = endB
	}
	return lo < hi
}
