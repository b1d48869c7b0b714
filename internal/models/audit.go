package models

import "time"

// AuditAction constants represent admin actions to be logged.
const (
	AuditActionFacilityCreate = "FACILITY_CREATE"
	AuditActionFacilityUpdate = "FACILITY_UPDATE"
	AuditActionFacilityDelete = "FACILITY_DELETE"
	AuditActionBookingReview  = "BOOKING_REVIEW"
	AuditActionTicketAssign   = "TICKET_ASSIGN"
	AuditActionTicketDelete   = "TICKET_DELETE"
	AuditActionRolesUpdate    = "ROLES_UPDATE"
)

// AuditLog represents an audit trail record for admin mutations.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
