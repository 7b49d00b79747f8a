// Package metrics exposes prometheus counters for resolver probes and proxy
// requests. A nil *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Probe results
const (
	ProbeHit   = "hit"
	ProbeMiss  = "miss"
	ProbeError = "error"
)

// Proxy outcomes
const (
	ProxyStreamed    = "streamed"
	ProxyRegenerated = "regenerated"
	ProxyRejected    = "rejected"
	ProxyFailed      = "failed"
)

type Recorder struct {
	probes  *prometheus.CounterVec
	proxied *prometheus.CounterVec
}

// New registers the counters with reg
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resources_resolver_probes_total",
			Help: "Durable store probes issued by the resolver, by kind and result.",
		}, []string{"kind", "result"}),
		proxied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resources_proxy_requests_total",
			Help: "Proxy requests by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.probes, r.proxied)
	}
	return r
}

// Probe counts one resolver probe. kind is "prefix" for the prefix search.
func (r *Recorder) Probe(kind, result string) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) ProxyRequest(outcome string) {
	if r == nil {
		return
	}
	r.proxied.WithLabelValues(outcome).Inc()
}
