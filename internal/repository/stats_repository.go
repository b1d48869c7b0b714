package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

// StatsRepository runs the aggregate queries behind the admin dashboard.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CollectDashboard gathers the dashboard aggregates in one pass.
func (r *StatsRepository) CollectDashboard(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{
		BookingsByStatus:  map[string]int64{},
		TicketsByStatus:   map[string]int64{},
		TicketsByPriority: map[string]int64{},
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM facilities", &stats.TotalFacilities},
		{"SELECT COUNT(*) FROM facilities WHERE status = 'ACTIVE'", &stats.ActiveFacilities},
		{"SELECT COUNT(*) FROM bookings", &stats.TotalBookings},
		{"SELECT COUNT(*) FROM bookings WHERE booking_date = to_char(CURRENT_DATE, 'YYYY-MM-DD')", &stats.BookingsToday},
		{"SELECT COUNT(*) FROM tickets", &stats.TotalTickets},
		{"SELECT COUNT(*) FROM users WHERE enabled", &stats.TotalUsers},
	}
	for _, c := range counts {
		if err := r.db.GetContext(ctx, c.dest, c.query); err != nil {
			return nil, fmt.Errorf("dashboard count: %w", err)
		}
	}

	groups := []struct {
		query string
		dest  map[string]int64
	}{
		{"SELECT status, COUNT(*) AS count FROM bookings GROUP BY status", stats.BookingsByStatus},
		{"SELECT status, COUNT(*) AS count FROM tickets GROUP BY status", stats.TicketsByStatus},
		{"SELECT priority AS status, COUNT(*) AS count FROM tickets GROUP BY priority", stats.TicketsByPriority},
	}
	for _, g := range groups {
		var rows []models.StatusCount
		if err := r.db.SelectContext(ctx, &rows, g.query); err != nil {
			return nil, fmt.Errorf("dashboard group: %w", err)
		}
		for _, row := range rows {
			g.dest[row.Status] = row.Count
		}
	}

	return stats, nil
}
