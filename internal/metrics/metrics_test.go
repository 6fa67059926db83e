package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

func TestObserverCounters(t *testing.T) {
	m := New()

	m.Transition("create", "", trade.StatusPending)
	m.Transition("accept", trade.StatusPending, trade.StatusAccepted)
	m.Transition("accept", trade.StatusPending, trade.StatusAccepted)
	m.Failed("accept", trade.ErrInvalidActor.With("nope"))
	m.Failed("ship", errors.New("connection reset"))
	m.Dispatched(trade.TopicEvents, 3)
	m.PublishFailed(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("create", "none", "pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("accept", "pending", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineErrors.WithLabelValues("accept", "InvalidActor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.engineErrors.WithLabelValues("ship", "internal")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.outboxSent.WithLabelValues(trade.TopicEvents)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outboxFailed))
}
