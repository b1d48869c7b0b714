package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// FacilityType enumerates bookable rooms and equipment.
type FacilityType string

const (
	FacilityLectureHall    FacilityType = "LECTURE_HALL"
	FacilityLab            FacilityType = "LAB"
	FacilityMeetingRoom    FacilityType = "MEETING_ROOM"
	FacilityAuditorium     FacilityType = "AUDITORIUM"
	FacilityProjector      FacilityType = "PROJECTOR"
	FacilityCamera         FacilityType = "CAMERA"
	FacilityLaptop         FacilityType = "LAPTOP"
	FacilityWhiteboard     FacilityType = "WHITEBOARD"
	FacilityOtherEquipment FacilityType = "OTHER_EQUIPMENT"
)

// ValidFacilityType reports whether the raw value names a known type.
func ValidFacilityType(raw string) bool {
	switch FacilityType(raw) {
	case FacilityLectureHall, FacilityLab, FacilityMeetingRoom, FacilityAuditorium,
		FacilityProjector, FacilityCamera, FacilityLaptop, FacilityWhiteboard, FacilityOtherEquipment:
		return true
	default:
		return false
	}
}

// FacilityStatus is the operational state of a facility.
type FacilityStatus string

const (
	FacilityActive           FacilityStatus = "ACTIVE"
	FacilityOutOfService     FacilityStatus = "OUT_OF_SERVICE"
	FacilityUnderMaintenance FacilityStatus = "UNDER_MAINTENANCE"
)

// ValidFacilityStatus reports whether the raw value names a known status.
func ValidFacilityStatus(raw string) bool {
	switch FacilityStatus(raw) {
	case FacilityActive, FacilityOutOfService, FacilityUnderMaintenance:
		return true
	default:
		return false
	}
}

// AvailabilityWindow declares a weekly recurring open slot. Times are
// "HH:MM" strings; DayOfWeek is the uppercase English weekday name.
type AvailabilityWindow struct {
	DayOfWeek string `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// AvailabilityWindows is stored as a JSONB column.
type AvailabilityWindows []AvailabilityWindow

// Value implements driver.Valuer.
func (w AvailabilityWindows) Value() (driver.Value, error) {
	if w == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner.
func (w *AvailabilityWindows) Scan(src interface{}) error {
	if src == nil {
		*w = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported availability windows source %T", src)
	}
	return json.Unmarshal(raw, w)
}

// Facility represents a bookable room or piece of equipment.
type Facility struct {
	ID                  string              `db:"id" json:"id"`
	Name                string              `db:"name" json:"name"`
	Type                FacilityType        `db:"facility_type" json:"type"`
	Capacity            int                 `db:"capacity" json:"capacity"`
	Location            string              `db:"location" json:"location"`
	Building            string              `db:"building" json:"building"`
	Floor               string              `db:"floor" json:"floor"`
	Description         string              `db:"description" json:"description"`
	Amenities           pq.StringArray      `db:"amenities" json:"amenities"`
	ImageURLs           pq.StringArray      `db:"image_urls" json:"imageUrls"`
	Status              FacilityStatus      `db:"status" json:"status"`
	AvailabilityWindows AvailabilityWindows `db:"availability_windows" json:"availabilityWindows"`
	CreatedBy           string              `db:"created_by" json:"createdBy"`
	CreatedAt           time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updatedAt"`
}

// FacilityFilter captures search criteria for listing facilities.
type FacilityFilter struct {
	Type        *FacilityType
	Status      *FacilityStatus
	Location    string
	MinCapacity *int
}
