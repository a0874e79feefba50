package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "introspectd_http_requests_total",
		Help: "HTTP requests by method, path and status code",
	}, []string{"method", "path", "status"})

	introspectionResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "introspectd_introspections_total",
		Help: "Introspection responses by token state",
	}, []string{"state"})
)

// RegisterMetrics registers the service metrics on the given registry (or
// the default registry if nil).
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{httpRequests, introspectionResults} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
