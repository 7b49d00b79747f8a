package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Probe("document", ProbeMiss)
	r.Probe("video", ProbeHit)
	r.Probe("video", ProbeHit)
	r.ProxyRequest(ProxyRegenerated)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.probes.WithLabelValues("document", ProbeMiss)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.probes.WithLabelValues("video", ProbeHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.proxied.WithLabelValues(ProxyRegenerated)))

	count, err := testutil.GatherAndCount(reg, "resources_resolver_probes_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Probe("image", ProbeError)
		r.ProxyRequest(ProxyFailed)
	})
}
