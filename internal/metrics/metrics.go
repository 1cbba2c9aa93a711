package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ircwatch_session_state",
		Help: "Current session state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	connectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircwatch_connects_total",
		Help: "Total connection attempts that established a transport",
	})

	disconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircwatch_disconnects_total",
		Help: "Connections lost or rejected, by error kind",
	}, []string{"kind"}) // kind=transport|protocol|registration

	topicChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircwatch_topic_changes_total",
		Help: "Observed topic changes by trigger outcome",
	}, []string{"matched"}) // matched=true|false

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircwatch_notifications_total",
		Help: "Notification dispatches by outcome",
	}, []string{"outcome"}) // outcome=queued|sent|failed|dropped

	notifyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ircwatch_notify_failures_total",
		Help: "Failed notification deliveries by failure kind",
	}, []string{"kind"}) // kind=network|auth|rate_limited|bad_response
)

// knownStates mirrors irc.State names; kept here so the gauge always
// exports the full vector instead of only states already visited.
var knownStates = []string{"disconnected", "connecting", "registering", "joining", "joined", "backoff"}

func SetSessionState(state string) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

func IncConnect() { connectsTotal.Inc() }

func IncDisconnect(kind string) {
	if kind == "" {
		kind = "transport"
	}
	disconnectsTotal.WithLabelValues(kind).Inc()
}

func IncTopicChange(matched bool) {
	if matched {
		topicChangesTotal.WithLabelValues("true").Inc()
		return
	}
	topicChangesTotal.WithLabelValues("false").Inc()
}

func IncNotification(outcome string) { notificationsTotal.WithLabelValues(outcome).Inc() }

func IncNotifyFailure(kind string) {
	if kind == "" {
		kind = "network"
	}
	notifyFailuresTotal.WithLabelValues(kind).Inc()
}
