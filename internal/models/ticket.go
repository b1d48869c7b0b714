package models

import (
	"time"

	"github.com/lib/pq"
)

// TicketPriority ranks urgency of a maintenance report.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "LOW"
	PriorityMedium   TicketPriority = "MEDIUM"
	PriorityHigh     TicketPriority = "HIGH"
	PriorityCritical TicketPriority = "CRITICAL"
)

// ValidTicketPriority reports whether the raw value names a known priority.
func ValidTicketPriority(raw string) bool {
	switch TicketPriority(raw) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// TicketStatus is the lifecycle state of a maintenance ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "OPEN"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketResolved   TicketStatus = "RESOLVED"
	TicketClosed     TicketStatus = "CLOSED"
	TicketRejected   TicketStatus = "REJECTED"
)

// Terminal reports whether no further transition is permitted.
func (s TicketStatus) Terminal() bool {
	return s == TicketClosed || s == TicketRejected
}

// ValidTicketStatus reports whether the raw value names a known status.
func ValidTicketStatus(raw string) bool {
	switch TicketStatus(raw) {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed, TicketRejected:
		return true
	default:
		return false
	}
}

// ticketTransitions is the legal status transition table. REJECTED is
// additionally gated to ADMIN callers by the authorization layer.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:       {TicketInProgress, TicketRejected},
	TicketInProgress: {TicketResolved, TicketRejected},
	TicketResolved:   {TicketClosed},
}

// CanTransition reports whether from -> to is a legal ticket transition.
func CanTransition(from, to TicketStatus) bool {
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Ticket is a maintenance report moving through a supervised workflow.
type Ticket struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	FacilityID      *string        `db:"facility_id" json:"facilityId,omitempty"`
	FacilityName    *string        `db:"facility_name" json:"facilityName,omitempty"`
	Location        string         `db:"location" json:"location"`
	Category        string         `db:"category" json:"category"`
	Description     string         `db:"description" json:"description"`
	Priority        TicketPriority `db:"priority" json:"priority"`
	Status          TicketStatus   `db:"status" json:"status"`
	ReportedBy      string         `db:"reported_by" json:"reportedBy"`
	ReportedByName  string         `db:"reported_by_name" json:"reportedByName"`
	AssignedTo      *string        `db:"assigned_to" json:"assignedTo,omitempty"`
	AssignedToName  *string        `db:"assigned_to_name" json:"assignedToName,omitempty"`
	ContactEmail    *string        `db:"contact_email" json:"contactEmail,omitempty"`
	ContactPhone    *string        `db:"contact_phone" json:"contactPhone,omitempty"`
	AttachmentURLs  pq.StringArray `db:"attachment_urls" json:"attachmentUrls"`
	ResolutionNotes *string        `db:"resolution_notes" json:"resolutionNotes,omitempty"`
	RejectionReason *string        `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolvedAt,omitempty"`
	ClosedAt        *time.Time     `db:"closed_at" json:"closedAt,omitempty"`
}

// TicketFilter captures listing criteria.
type TicketFilter struct {
	ReportedBy string
	AssignedTo string
	Status     *TicketStatus
}
