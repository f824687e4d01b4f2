package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		telegramMessagesSentTotal,
	)
}

var (
	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	// kind: text|photo, status: sent|error
	telegramMessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_messages_sent_total",
			Help: "Outgoing Telegram messages by kind and delivery status.",
		},
		[]string{"kind", "status"},
	)
)

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncTelegramRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncTelegramMessage(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "error"
	}
	telegramMessagesSentTotal.WithLabelValues(norm(kind), status).Inc()
}
