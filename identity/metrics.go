package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var usersProvisioned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "identity_users_provisioned_total",
	Help: "Number of users created on first contact",
})

var provisionRacesRecovered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "identity_provision_races_recovered_total",
	Help: "Number of insert conflicts recovered by re-reading the winner's row",
})
