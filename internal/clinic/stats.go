package clinic

import (
	"context"
	"fmt"
	"time"
)

// ReminderBacklog counts appointments starting in [from, to) that are
// still remindable and have not had their first reminder yet.
func (r *DashboardRepository) ReminderBacklog(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE scheduled_start >= $1 AND scheduled_start < $2
		  AND status IN ('scheduled', 'confirmed')
		  AND reminder_sent = false`
	if err := r.db.QueryRow(ctx, query, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("clinic stats: count backlog: %w", err)
	}
	return count, nil
}

// EscalationSummary reports where reminder records sit on their ladders.
func (r *DashboardRepository) EscalationSummary(ctx context.Context) (EscalationSummary, error) {
	var summary EscalationSummary

	openQuery := `SELECT COUNT(*) FROM reminders WHERE confirmed = false AND exhausted_at IS NULL`
	if err := r.db.QueryRow(ctx, openQuery).Scan(&summary.Open); err != nil {
		return summary, fmt.Errorf("clinic stats: count open: %w", err)
	}

	confirmedQuery := `SELECT COUNT(*) FROM reminders WHERE confirmed = true`
	if err := r.db.QueryRow(ctx, confirmedQuery).Scan(&summary.Confirmed); err != nil {
		return summary, fmt.Errorf("clinic stats: count confirmed: %w", err)
	}

	exhaustedQuery := `SELECT COUNT(*) FROM reminders WHERE confirmed = false AND exhausted_at IS NOT NULL`
	if err := r.db.QueryRow(ctx, exhaustedQuery).Scan(&summary.Exhausted); err != nil {
		return summary, fmt.Errorf("clinic stats: count exhausted: %w", err)
	}

	return summary, nil
}

// PendingFollowups counts exhausted records nobody has acknowledged yet.
func (r *DashboardRepository) PendingFollowups(ctx context.Context) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*) FROM reminders
		WHERE exhausted_at IS NOT NULL AND confirmed = false
		  AND followup_status = 'PENDING'`
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("clinic stats: count followups: %w", err)
	}
	return count, nil
}
