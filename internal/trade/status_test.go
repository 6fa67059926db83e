package trade_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to trade.Status }{
		{trade.StatusPending, trade.StatusAccepted},
		{trade.StatusPending, trade.StatusRejected},
		{trade.StatusPending, trade.StatusCountered},
		{trade.StatusPending, trade.StatusCancelled},
		{trade.StatusAccepted, trade.StatusInitiatorShipped},
		{trade.StatusAccepted, trade.StatusReceiverShipped},
		{trade.StatusInitiatorShipped, trade.StatusBothShipped},
		{trade.StatusReceiverShipped, trade.StatusBothShipped},
		{trade.StatusInitiatorShipped, trade.StatusInitiatorDelivered},
		{trade.StatusBothShipped, trade.StatusCompleted},
		{trade.StatusReceiverDelivered, trade.StatusDisputed},
		{trade.StatusDisputed, trade.StatusResolved},
	}
	for _, tc := range allowed {
		assert.True(t, trade.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	refused := []struct{ from, to trade.Status }{
		{trade.StatusPending, trade.StatusBothShipped},
		{trade.StatusPending, trade.StatusDisputed},
		{trade.StatusAccepted, trade.StatusDisputed},
		{trade.StatusAccepted, trade.StatusCompleted},
		{trade.StatusInitiatorShipped, trade.StatusCompleted},
		{trade.StatusDisputed, trade.StatusCompleted},
		{trade.StatusCountered, trade.StatusAccepted},
		{trade.StatusCompleted, trade.StatusDisputed},
		{trade.StatusResolved, trade.StatusDisputed},
	}
	for _, tc := range refused {
		assert.False(t, trade.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range trade.Statuses {
		if !s.IsTerminal() {
			continue
		}
		for _, to := range trade.Statuses {
			if to == s {
				continue
			}
			assert.False(t, trade.CanTransition(s, to), "%s -> %s", s, to)
		}
		assert.False(t, s.IsActive())
	}
	assert.False(t, trade.StatusCountered.IsActive())
	assert.False(t, trade.StatusCountered.IsTerminal())
	assert.True(t, trade.StatusDisputed.IsActive())
}

func TestDisputable(t *testing.T) {
	want := map[trade.Status]bool{
		trade.StatusInitiatorShipped:   true,
		trade.StatusReceiverShipped:    true,
		trade.StatusBothShipped:        true,
		trade.StatusInitiatorDelivered: true,
		trade.StatusReceiverDelivered:  true,
	}
	for _, s := range trade.Statuses {
		assert.Equal(t, want[s], s.Disputable(), s)
	}
}
