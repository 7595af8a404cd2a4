// Package metrics registers the Prometheus collectors stores report to.
//
// Stores built without WithMetricsRegistryProvider get a private registry
// each. Pass one provider to several stores to gather them together; their
// series are told apart by the store label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	rxmetrics "github.com/gxo-labs/rxstore/pkg/rxstore/v1/metrics"
)

// PrometheusRegistryProvider hands stores the registry their collectors are
// registered on.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

var _ rxmetrics.RegistryProvider = (*PrometheusRegistryProvider)(nil)

// NewPrometheusRegistryProvider creates a provider around a fresh registry
// with no default process or Go collectors, so a gather shows only store
// metrics unless the caller registers more.
func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{registry: prometheus.NewRegistry()}
}

// NewPrometheusRegistryProviderFrom wraps an existing registry, for programs
// that already expose one.
func NewPrometheusRegistryProviderFrom(reg *prometheus.Registry) *PrometheusRegistryProvider {
	if reg == nil {
		return NewPrometheusRegistryProvider()
	}
	return &PrometheusRegistryProvider{registry: reg}
}

// Registry returns the registry store collectors are registered on.
func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}
