package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_messages_sent_total",
	Help: "Number of messages handed to the mail transport",
}, []string{"kind"})
