// Package authz implements the pure role -> operation authorization gate.
// Ownership checks (own booking, own comment, own notification) remain with
// the services; this package only answers what a role set may do.
package authz

import "github.com/campus-hub/campus-ops-api/internal/models"

// Operation names a gated action in the engine.
type Operation string

const (
	OpFacilityRead  Operation = "facility:read"
	OpFacilityWrite Operation = "facility:write"

	OpBookingCreate  Operation = "booking:create"
	OpBookingListAll Operation = "booking:list_all"
	OpBookingReview  Operation = "booking:review"
	OpBookingCancel  Operation = "booking:cancel"
	OpBookingExport  Operation = "booking:export"

	OpTicketCreate       Operation = "ticket:create"
	OpTicketListAll      Operation = "ticket:list_all"
	OpTicketAssign       Operation = "ticket:assign"
	OpTicketUpdateStatus Operation = "ticket:update_status"
	OpTicketReject       Operation = "ticket:reject"
	OpTicketDelete       Operation = "ticket:delete"

	OpCommentCreate   Operation = "comment:create"
	OpCommentModerate Operation = "comment:moderate"

	OpUserManage      Operation = "user:manage"
	OpDashboardView   Operation = "dashboard:view"
	OpNotificationOwn Operation = "notification:own"
)

// baseline is the implicit USER permission set held by every authenticated
// principal regardless of stored roles.
var baseline = map[Operation]struct{}{
	OpFacilityRead:    {},
	OpBookingCreate:   {},
	OpBookingCancel:   {},
	OpTicketCreate:    {},
	OpCommentCreate:   {},
	OpNotificationOwn: {},
}

// grants lists the additional operations each role confers. MANAGER is an
// assignable role with no extra grants yet.
var grants = map[models.UserRole]map[Operation]struct{}{
	models.RoleAdmin: {
		OpFacilityWrite:      {},
		OpBookingListAll:     {},
		OpBookingReview:      {},
		OpBookingExport:      {},
		OpTicketListAll:      {},
		OpTicketAssign:       {},
		OpTicketUpdateStatus: {},
		OpTicketReject:       {},
		OpTicketDelete:       {},
		OpCommentModerate:    {},
		OpUserManage:         {},
		OpDashboardView:      {},
	},
	models.RoleTechnician: {
		OpTicketListAll:      {},
		OpTicketUpdateStatus: {},
	},
	models.RoleManager: {},
}

// Allowed decides whether a role set may perform the operation. It is a
// total function: unknown roles contribute nothing and unknown operations
// are denied unless part of the baseline.
func Allowed(roles models.RoleSet, op Operation) bool {
	if _, ok := baseline[op]; ok {
		return true
	}
	for _, role := range roles {
		if ops, ok := grants[role]; ok {
			if _, ok := ops[op]; ok {
				return true
			}
		}
	}
	return false
}
