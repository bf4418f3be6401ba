package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	COIsCreated           prometheus.Counter
	COIsApproved          prometheus.Counter
	COIsDeficient         prometheus.Counter
	COIsRejected          prometheus.Counter
	COIsRenewed           prometheus.Counter
	StateConflicts        prometheus.Counter
	HoldHarmlessGenerated prometheus.Counter
	HoldHarmlessCompleted prometheus.Counter
	NotificationsSent     prometheus.Counter
	NotificationsDropped  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		COIsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_cois_created_total",
			Help: "Total number of COI records created",
		}),
		COIsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_cois_approved_total",
			Help: "Total number of COIs approved by an admin",
		}),
		COIsDeficient: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_cois_deficient_total",
			Help: "Total number of COIs marked deficient",
		}),
		COIsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_cois_rejected_total",
			Help: "Total number of COIs rejected",
		}),
		COIsRenewed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_cois_renewed_total",
			Help: "Total number of COI renewals created",
		}),
		StateConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_state_conflicts_total",
			Help: "Total number of transitions rejected for state conflicts",
		}),
		HoldHarmlessGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_hold_harmless_generated_total",
			Help: "Total number of hold-harmless agreements generated",
		}),
		HoldHarmlessCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_hold_harmless_completed_total",
			Help: "Total number of hold-harmless agreements fully signed",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_notifications_sent_total",
			Help: "Total number of notifications delivered to the sink",
		}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coitrack_notifications_dropped_total",
			Help: "Total number of notifications dropped after delivery failure",
		}),
	}
}

func (m *Metrics) IncrementCOIsCreated()           { m.COIsCreated.Inc() }
func (m *Metrics) IncrementCOIsApproved()          { m.COIsApproved.Inc() }
func (m *Metrics) IncrementCOIsDeficient()         { m.COIsDeficient.Inc() }
func (m *Metrics) IncrementCOIsRejected()          { m.COIsRejected.Inc() }
func (m *Metrics) IncrementCOIsRenewed()           { m.COIsRenewed.Inc() }
func (m *Metrics) IncrementStateConflicts()        { m.StateConflicts.Inc() }
func (m *Metrics) IncrementHoldHarmlessGenerated() { m.HoldHarmlessGenerated.Inc() }
func (m *Metrics) IncrementHoldHarmlessCompleted() { m.HoldHarmlessCompleted.Inc() }
func (m *Metrics) IncrementNotificationsSent()     { m.NotificationsSent.Inc() }
func (m *Metrics) IncrementNotificationsDropped()  { m.NotificationsDropped.Inc() }
