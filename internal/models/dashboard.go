package models

// StatusCount is one slice of a grouped count query.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int64  `db:"count" json:"count"`
}

// DashboardStats is the admin overview aggregate.
type DashboardStats struct {
	TotalFacilities  int64            `json:"totalFacilities"`
	ActiveFacilities int64            `json:"activeFacilities"`
	TotalBookings    int64            `json:"totalBookings"`
	BookingsByStatus map[string]int64 `json:"bookingsByStatus"`
	BookingsToday    int64            `json:"bookingsToday"`
	TotalTickets     int64            `json:"totalTickets"`
	TicketsByStatus  map[string]int64 `json:"ticketsByStatus"`
	TicketsByPriority map[string]int64 `json:"ticketsByPriority"`
	TotalUsers       int64            `json:"totalUsers"`
}
