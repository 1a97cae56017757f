package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/SimonDaKappa/go-pave-bridge"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeOK},
		{"validation", &bridge.BridgeValidationError{}, OutcomeInvalid},
		{"wrapped validation", fmt.Errorf("ctx: %w", &bridge.BridgeValidationError{}), OutcomeInvalid},
		{"other", errors.New("boom"), OutcomeError},
		{"record type", bridge.ErrRecordType, OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestCollectorObservesSchemaCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := NewCollector(CollectorOpts{Registerer: reg})
	require.NoError(t, err)

	c, err := bridge.BuildFor[point](bridge.Options{Observer: col})
	require.NoError(t, err)
	s := c.Default()

	_, err = s.Load(map[string]any{"x": 1, "y": 2})
	require.NoError(t, err)
	_, err = s.Load(map[string]any{"x": "nope"})
	require.Error(t, err)
	_, err = s.Load([]any{map[string]any{"x": 1, "y": 2}}, bridge.WithMany(true))
	require.NoError(t, err)
	_, err = s.Dump(&point{X: 1})
	require.NoError(t, err)
	_, err = s.Dump("not a point")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(col.calls.WithLabelValues("point", OpLoad, "false", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(col.calls.WithLabelValues("point", OpLoad, "false", OutcomeInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(col.calls.WithLabelValues("point", OpLoad, "true", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(col.calls.WithLabelValues("point", OpDump, "false", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(col.calls.WithLabelValues("point", OpDump, "false", OutcomeError)))

	assert.Equal(t, 5, testutil.CollectAndCount(col.calls))
	assert.Equal(t, 2, testutil.CollectAndCount(col.duration))
}

func TestCollectorNamespaceAndReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(CollectorOpts{Registerer: reg, Namespace: "api"})
	require.NoError(t, err)
	second, err := NewCollector(CollectorOpts{Registerer: reg, Namespace: "api"})
	require.NoError(t, err)

	first.ObserveLoad("point", false, nil, time.Millisecond)
	second.ObserveLoad("point", false, nil, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.calls.WithLabelValues("point", OpLoad, "false", OutcomeOK)))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "api_calls_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "api_call_duration_seconds"))
}

func TestMustCollectorPanicsOnConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "x_calls_total", Help: "conflict"}))
	assert.Panics(t, func() {
		MustCollector(CollectorOpts{Registerer: reg, Namespace: "x"})
	})
}
