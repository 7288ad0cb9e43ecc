package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveOperation("create", OutcomeOK, time.Millisecond)
	c.ObserveConflict("room")
	c.ObserveSlots(3, 1, time.Millisecond)
	c.ObserveEvent("booking.created", nil)
}

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveOperation("create", OutcomeOK, 2*time.Millisecond)
	c.ObserveOperation("create", OutcomeConflict, time.Millisecond)
	c.ObserveOperation("create", OutcomeConflict, time.Millisecond)
	c.ObserveConflict("practitioner")
	c.ObserveSlots(10, 2, time.Millisecond)
	c.ObserveEvent("booking.created", errors.New("broker down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("create", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("create", OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conflicts.WithLabelValues("practitioner")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.slotsGenerated.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.slotsGenerated.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsPublished.WithLabelValues("booking.created", OutcomeError)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
