package management

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jimmc414/claude-cli-control/internal/metrics"
)

// promRegistryFor builds a dedicated Prometheus registry exposing m's
// counters, used by the /metrics/prom handler.
func promRegistryFor(m *metrics.Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(m))
	return reg
}
