package models

import "time"

// Comment is a discussion entry on a ticket. Authorship is immutable.
type Comment struct {
	ID         string    `db:"id" json:"id"`
	TicketID   string    `db:"ticket_id" json:"ticketId"`
	Content    string    `db:"content" json:"content"`
	AuthorID   string    `db:"author_id" json:"authorId"`
	AuthorName string    `db:"author_name" json:"authorName"`
	AuthorRole string    `db:"author_role" json:"authorRole"`
	Edited     bool      `db:"edited" json:"edited"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}
