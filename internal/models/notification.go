package models

import "time"

// NotificationType labels the lifecycle event that caused a notification.
type NotificationType string

const (
	NotifyBookingApproved     NotificationType = "BOOKING_APPROVED"
	NotifyBookingRejected     NotificationType = "BOOKING_REJECTED"
	NotifyBookingCancelled    NotificationType = "BOOKING_CANCELLED"
	NotifyBookingCreated      NotificationType = "BOOKING_CREATED"
	NotifyTicketCreated       NotificationType = "TICKET_CREATED"
	NotifyTicketAssigned      NotificationType = "TICKET_ASSIGNED"
	NotifyTicketStatusChanged NotificationType = "TICKET_STATUS_CHANGED"
	NotifyTicketResolved      NotificationType = "TICKET_RESOLVED"
	NotifyTicketClosed        NotificationType = "TICKET_CLOSED"
	NotifyTicketRejected      NotificationType = "TICKET_REJECTED"
	NotifyCommentAdded        NotificationType = "COMMENT_ADDED"
	NotifySystem              NotificationType = "SYSTEM"
)

// Reference types for the notification back-pointer.
const (
	ReferenceBooking = "BOOKING"
	ReferenceTicket  = "TICKET"
	ReferenceComment = "COMMENT"
)

// Notification is written only by the dispatcher as a side effect of a
// lifecycle transition; clients may only read, mark and delete their own.
type Notification struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"userId"`
	Title         string           `db:"title" json:"title"`
	Message       string           `db:"message" json:"message"`
	Type          NotificationType `db:"notification_type" json:"type"`
	ReferenceID   *string          `db:"reference_id" json:"referenceId,omitempty"`
	ReferenceType *string          `db:"reference_type" json:"referenceType,omitempty"`
	Read          bool             `db:"is_read" json:"read"`
	CreatedAt     time.Time        `db:"created_at" json:"createdAt"`
}
