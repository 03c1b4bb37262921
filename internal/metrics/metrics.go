package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repairagent_webhook_events_total",
		Help: "Inbound chat events by type",
	}, []string{"type"})

	ConversationCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repairagent_conversation_commands_total",
		Help: "Classified conversation commands",
	}, []string{"command"})

	IntakeRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repairagent_intake_requests_total",
		Help: "Repair requests created through intake",
	})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repairagent_status_transitions_total",
		Help: "Lifecycle transition attempts by outcome",
	}, []string{"outcome"}) // outcome=success|not_found|forbidden|conflict|invalid|error

	NotificationSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repairagent_notification_sends_total",
		Help: "Fan-out notification attempts by channel and outcome",
	}, []string{"channel", "outcome"}) // channel=chat|ops, outcome=success|failure

	SessionsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repairagent_sessions_swept_total",
		Help: "Idle conversation sessions reset by the sweeper",
	})
)
