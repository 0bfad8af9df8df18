package clinic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// AppointmentOverview is one row of the dashboard's day schedule.
type AppointmentOverview struct {
	ID             uuid.UUID `json:"id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	Status         string    `json:"status"`
	OwnerName      string    `json:"owner_name"`
	PetName        string    `json:"pet_name,omitempty"`
	ServiceName    string    `json:"service_name"`
	StaffName      string    `json:"staff_name"`
	ReminderSent   bool      `json:"reminder_sent"`
}

// StatusCounts breaks the day schedule down by lifecycle status.
type StatusCounts struct {
	Scheduled  int `json:"scheduled"`
	Confirmed  int `json:"confirmed"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	NoShow     int `json:"no_show"`
	Total      int `json:"total"`
}

// EscalationSummary counts reminder records by where they sit on the
// ladder: still climbing, confirmed by the owner, or out of channels.
type EscalationSummary struct {
	Open      int64 `json:"open"`
	Confirmed int64 `json:"confirmed"`
	Exhausted int64 `json:"exhausted"`
}

// ChannelDelivery is the per-channel slice of the delivery snapshot.
type ChannelDelivery struct {
	Channel string `json:"channel"`
	Sent    int64  `json:"sent"`
	Failed  int64  `json:"failed"`
}

// DeliverySnapshot summarizes send outcomes from the process metrics
// registry. Counters are cumulative since process start.
type DeliverySnapshot struct {
	Sent      int64             `json:"sent"`
	Failed    int64             `json:"failed"`
	Exhausted int64             `json:"exhausted"`
	Channels  []ChannelDelivery `json:"channels,omitempty"`
	SendP50Ms float64           `json:"send_p50_ms"`
	SendP95Ms float64           `json:"send_p95_ms"`
}

// PendingAction points staff at a queue that needs attention.
type PendingAction struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Count       int64  `json:"count"`
	Link        string `json:"link"`
}

// Dashboard is the response for the admin home screen.
type Dashboard struct {
	Date            string                `json:"date"`
	Timezone        string                `json:"timezone"`
	GeneratedAt     time.Time             `json:"generated_at"`
	Appointments    []AppointmentOverview `json:"appointments"`
	Counts          StatusCounts          `json:"counts"`
	ReminderBacklog int64                 `json:"reminder_backlog"`
	Escalation      EscalationSummary     `json:"escalation"`
	Delivery        DeliverySnapshot      `json:"delivery"`
	PendingActions  []PendingAction       `json:"pending_actions"`
}

// dashboardDB is the slice of pgxpool the dashboard queries need.
type dashboardDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DashboardRepository reads dashboard aggregates from the database.
type DashboardRepository struct {
	db dashboardDB
}

// NewDashboardRepository creates a repository over a live pool.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	if pool == nil {
		panic("clinic: pgx pool required for dashboard")
	}
	return &DashboardRepository{db: pool}
}

// NewDashboardRepositoryWithDB allows injecting a mock database for testing.
func NewDashboardRepositoryWithDB(db dashboardDB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// AppointmentsBetween lists appointments starting in [from, to) with the
// names the front desk needs, earliest first.
func (r *DashboardRepository) AppointmentsBetween(ctx context.Context, from, to time.Time) ([]AppointmentOverview, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.scheduled_start, a.scheduled_end, a.status,
		       o.name, COALESCE(p.name, ''), s.name, st.name, a.reminder_sent
		FROM appointments a
		JOIN owners o ON o.id = a.owner_id
		LEFT JOIN pets p ON p.id = a.pet_id
		JOIN services s ON s.id = a.service_id
		JOIN staff st ON st.id = a.staff_id
		WHERE a.scheduled_start >= $1 AND a.scheduled_start < $2
		ORDER BY a.scheduled_start, st.name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("clinic dashboard: list appointments: %w", err)
	}
	defer rows.Close()

	var out []AppointmentOverview
	for rows.Next() {
		var entry AppointmentOverview
		if err := rows.Scan(&entry.ID, &entry.ScheduledStart, &entry.ScheduledEnd, &entry.Status,
			&entry.OwnerName, &entry.PetName, &entry.ServiceName, &entry.StaffName, &entry.ReminderSent); err != nil {
			return nil, fmt.Errorf("clinic dashboard: scan appointment: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clinic dashboard: iterate appointments: %w", err)
	}
	return out, nil
}

func countStatuses(appts []AppointmentOverview) StatusCounts {
	var c StatusCounts
	for _, a := range appts {
		switch a.Status {
		case "scheduled":
			c.Scheduled++
		case "confirmed":
			c.Confirmed++
		case "in_progress":
			c.InProgress++
		case "completed":
			c.Completed++
		case "cancelled":
			c.Cancelled++
		case "no_show":
			c.NoShow++
		}
	}
	c.Total = len(appts)
	return c
}

// dashboardData is what the handler needs from the repository.
type dashboardData interface {
	AppointmentsBetween(ctx context.Context, from, to time.Time) ([]AppointmentOverview, error)
	ReminderBacklog(ctx context.Context, from, to time.Time) (int64, error)
	EscalationSummary(ctx context.Context) (EscalationSummary, error)
	PendingFollowups(ctx context.Context) (int64, error)
}

// ProfileSource provides the clinic profile for localization.
type ProfileSource interface {
	Get(ctx context.Context) (*Profile, error)
}

// DashboardHandler serves the admin home screen.
type DashboardHandler struct {
	repo     dashboardData
	profiles ProfileSource
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	now      func() time.Time
}

// NewDashboardHandler creates a dashboard handler. A nil gatherer falls
// back to the process default registry; a nil profile source renders with
// the default profile.
func NewDashboardHandler(repo dashboardData, profiles ProfileSource, gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{
		repo:     repo,
		profiles: profiles,
		gatherer: gatherer,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterAdminRoutes mounts the dashboard on an admin router.
func (h *DashboardHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/dashboard", h.getDashboard)
}

// getDashboard returns the day's schedule plus reminder health. The
// schedule query failing is a 500; the side panels are best effort and
// render zero with a logged warning.
// GET /api/v1/admin/dashboard?date=2026-03-02
func (h *DashboardHandler) getDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile := DefaultProfile()
	if h.profiles != nil {
		p, err := h.profiles.Get(ctx)
		if err != nil {
			h.logger.Warn("dashboard: profile unavailable, using defaults", "error", err)
		} else {
			profile = p
		}
	}
	loc := profile.Location()
	now := h.now()

	day, err := parseDashboardDate(r.URL.Query().Get("date"), now, loc)
	if err != nil {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, err.Error())
		return
	}

	appts, err := h.repo.AppointmentsBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		h.logger.Error("dashboard: list appointments", "error", err)
		respond.Internal(w)
		return
	}
	if appts == nil {
		appts = []AppointmentOverview{}
	}

	dash := Dashboard{
		Date:         day.Format("2006-01-02"),
		Timezone:     loc.String(),
		GeneratedAt:  now.UTC(),
		Appointments: appts,
		Counts:       countStatuses(appts),
	}

	backlog, err := h.repo.ReminderBacklog(ctx, now, now.Add(profile.ReminderLead()))
	if err != nil {
		h.logger.Warn("dashboard: reminder backlog", "error", err)
	}
	dash.ReminderBacklog = backlog

	escalation, err := h.repo.EscalationSummary(ctx)
	if err != nil {
		h.logger.Warn("dashboard: escalation summary", "error", err)
	}
	dash.Escalation = escalation

	followups, err := h.repo.PendingFollowups(ctx)
	if err != nil {
		h.logger.Warn("dashboard: pending followups", "error", err)
	}

	delivery, err := snapshotDelivery(h.gatherer)
	if err != nil {
		h.logger.Warn("dashboard: gather metrics", "error", err)
	}
	dash.Delivery = delivery

	dash.PendingActions = pendingActions(followups, backlog)

	respond.JSON(w, http.StatusOK, dash)
}

// parseDashboardDate resolves the requested day to local midnight. An
// empty value means today in the clinic timezone.
func parseDashboardDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if raw == "" {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, errors.New("date must be formatted YYYY-MM-DD")
	}
	return day, nil
}

func pendingActions(followups, backlog int64) []PendingAction {
	actions := []PendingAction{}
	if followups > 0 {
		actions = append(actions, PendingAction{
			Type:        "follow_up_queue",
			Priority:    "high",
			Description: "Reminders exhausted every channel without a confirmation. Call these owners.",
			Count:       followups,
			Link:        "/api/v1/admin/followups",
		})
	}
	if backlog > 0 {
		actions = append(actions, PendingAction{
			Type:        "reminder_backlog",
			Priority:    "medium",
			Description: "Upcoming appointments still waiting on their first reminder.",
			Count:       backlog,
			Link:        "/api/v1/admin/reminders/scan",
		})
	}
	return actions
}

// Metric families the delivery snapshot reads. Names must match the
// registry in internal/observability/metrics.
const (
	attemptsFamily     = "vetclinic_escalation_attempts_total"
	exhaustedFamily    = "vetclinic_escalation_exhausted_total"
	sendDurationFamily = "vetclinic_notify_send_duration_seconds"
)

// snapshotDelivery reduces the metrics registry to send totals by channel
// plus latency quantiles. A time-windowed view would need a TSDB in front
// of /metrics; the dashboard settles for process totals.
func snapshotDelivery(gatherer prometheus.Gatherer) (DeliverySnapshot, error) {
	var snap DeliverySnapshot
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return snap, err
	}

	byChannel := map[string]*ChannelDelivery{}
	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case attemptsFamily:
			for _, metric := range mf.Metric {
				if metric == nil || metric.GetCounter() == nil {
					continue
				}
				value := int64(metric.GetCounter().GetValue())
				channel := labelValue(metric, "channel")
				entry := byChannel[channel]
				if entry == nil {
					entry = &ChannelDelivery{Channel: channel}
					byChannel[channel] = entry
				}
				switch {
				case hasLabel(metric, "outcome", "sent"):
					snap.Sent += value
					entry.Sent += value
				case hasLabel(metric, "outcome", "error"):
					snap.Failed += value
					entry.Failed += value
				}
			}
		case exhaustedFamily:
			for _, metric := range mf.Metric {
				if metric == nil || metric.GetCounter() == nil {
					continue
				}
				snap.Exhausted += int64(metric.GetCounter().GetValue())
			}
		case sendDurationFamily:
			// Aggregate the per-channel histograms into one curve.
			for _, metric := range mf.Metric {
				if metric == nil {
					continue
				}
				hist := metric.GetHistogram()
				if hist == nil {
					continue
				}
				sampleCount += hist.GetSampleCount()
				for _, b := range hist.Bucket {
					if b == nil {
						continue
					}
					cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
				}
			}
		}
	}

	names := make([]string, 0, len(byChannel))
	for name := range byChannel {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Channels = append(snap.Channels, *byChannel[name])
	}

	if sampleCount > 0 && len(cumulativeByUpper) > 0 {
		uppers := make([]float64, 0, len(cumulativeByUpper))
		for upper := range cumulativeByUpper {
			uppers = append(uppers, upper)
		}
		sort.Float64s(uppers)
		snap.SendP50Ms = histogramQuantile(0.50, sampleCount, uppers, cumulativeByUpper) * 1000.0
		snap.SendP95Ms = histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0
	}

	return snap, nil
}

// labelValue returns the metric's value for a label name, or "".
func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// histogramQuantile walks the cumulative buckets and linearly interpolates
// inside the bucket that crosses the target rank.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper float64
	var prevCum float64

	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		return prevUpper + fraction*(upper-prevUpper)
	}

	return uppers[len(uppers)-1]
}
