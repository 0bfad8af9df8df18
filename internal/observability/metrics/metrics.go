package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking flows.
type SchedulingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	availabilityTotal prometheus.Counter
	bookingLatency    prometheus.Histogram
	invoicesTotal     *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Total appointment lifecycle transitions by target status and outcome",
		}, []string{"to_status", "outcome"}),
		availabilityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "scheduling",
			Name:      "availability_queries_total",
			Help:      "Total availability queries",
		}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vetclinic",
			Subsystem: "scheduling",
			Name:      "booking_latency_seconds",
			Help:      "Latency of validate+commit for a booking",
			Buckets:   prometheus.DefBuckets,
		}),
		invoicesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "billing",
			Name:      "invoices_total",
			Help:      "Invoice materializations by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.availabilityTotal, m.bookingLatency, m.invoicesTotal)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(seconds)
}

func (m *SchedulingMetrics) ObserveTransition(toStatus, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(toStatus, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveAvailabilityQuery() {
	if m == nil {
		return
	}
	m.availabilityTotal.Inc()
}

func (m *SchedulingMetrics) ObserveInvoice(outcome string) {
	if m == nil {
		return
	}
	m.invoicesTotal.WithLabelValues(outcome).Inc()
}

// ReminderMetrics exposes counters/histograms for reminder scans and
// escalation ticks.
type ReminderMetrics struct {
	scanChecked    prometheus.Counter
	scanSent       prometheus.Counter
	scanErrors     prometheus.Counter
	scanDuration   prometheus.Histogram
	attemptsTotal  *prometheus.CounterVec
	sendDuration   *prometheus.HistogramVec
	exhaustedTotal prometheus.Counter
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		scanChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "reminders",
			Name:      "scan_checked_total",
			Help:      "Appointments examined by reminder scans",
		}),
		scanSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "reminders",
			Name:      "scan_sent_total",
			Help:      "First reminders sent by scans",
		}),
		scanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "reminders",
			Name:      "scan_errors_total",
			Help:      "Per-item errors during reminder scans",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vetclinic",
			Subsystem: "reminders",
			Name:      "scan_duration_seconds",
			Help:      "Duration of a full reminder scan",
			Buckets:   prometheus.DefBuckets,
		}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "escalation",
			Name:      "attempts_total",
			Help:      "Escalation channel attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vetclinic",
			Subsystem: "notify",
			Name:      "send_duration_seconds",
			Help:      "Duration of channel sends",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		exhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetclinic",
			Subsystem: "escalation",
			Name:      "exhausted_total",
			Help:      "Reminder records that ran out of ladder steps unconfirmed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.scanChecked, m.scanSent, m.scanErrors, m.scanDuration,
		m.attemptsTotal, m.sendDuration, m.exhaustedTotal)
	return m
}

func (m *ReminderMetrics) ObserveScan(checked, sent, errors int, seconds float64) {
	if m == nil {
		return
	}
	m.scanChecked.Add(float64(checked))
	m.scanSent.Add(float64(sent))
	m.scanErrors.Add(float64(errors))
	m.scanDuration.Observe(seconds)
}

func (m *ReminderMetrics) ObserveAttempt(channel, outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *ReminderMetrics) ObserveSendDuration(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(channel).Observe(seconds)
}

func (m *ReminderMetrics) ObserveExhausted() {
	if m == nil {
		return
	}
	m.exhaustedTotal.Inc()
}
