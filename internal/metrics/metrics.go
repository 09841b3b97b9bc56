package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "santa_draws_total", Help: "Draw requests by outcome"},
		[]string{"outcome"},
	)
	DrawAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "santa_draw_attempts",
			Help:    "Shuffles needed to find a derangement",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
		},
	)
	Relays = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "santa_relay_total", Help: "Anonymous messages by target role and outcome"},
		[]string{"role", "outcome"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "santa_notifications_total", Help: "System notices by outcome"},
		[]string{"outcome"},
	)
	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "santa_events_total", Help: "Inbound conversation events by kind"},
		[]string{"kind"},
	)
	InvalidatedAssignments = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "santa_assignments_invalidated_total", Help: "Pairings broken by a participant leaving"},
	)
)

func Register() {
	prometheus.MustRegister(Draws, DrawAttempts, Relays, Notifications, Events, InvalidatedAssignments)
}
