package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierCalls = promauto.NewCounter(prometheus.CounterOpts{
	Name: "classifier_calls_total",
	Help: "Number of successful classifier provider calls",
})

var classifierUnanalyzable = promauto.NewCounter(prometheus.CounterOpts{
	Name: "classifier_unanalyzable_total",
	Help: "Number of inputs the provider rejected as unanalyzable",
})
