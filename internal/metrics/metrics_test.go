package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Registers(t *testing.T) {
	registry := prometheus.NewPedanticRegistry()
	m := New(registry)

	m.PostingsCreated.Inc()
	m.ProjectedEvents.WithLabelValues("applied").Add(2)
	m.BalanceQueries.WithLabelValues("hit").Inc()

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProjectedEvents.WithLabelValues("applied")))
}

func TestNew_Unregistered(t *testing.T) {
	m := New(nil)
	m.ApplyFailures.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ApplyFailures))

	// A second unregistered set must not collide with the first.
	assert.NotPanics(t, func() { New(nil) })
}
