package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubConn records writes. When gate is set, WriteMessage blocks on it.
type stubConn struct {
	mu     sync.Mutex
	gate   chan struct{}
	fail   bool
	writes [][]byte
	closed bool
}

func (s *stubConn) SetWriteDeadline(time.Time) error { return nil }

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.writes = append(s.writes, data)
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestSlowSubscriberDoesNotStallHub(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	slow := &stubConn{gate: make(chan struct{})}
	h.register("t1", &client{conn: slow})

	sent := make(chan struct{})
	go func() {
		h.Broadcast("t1", "trade.shipped", nil)
		close(sent)
	}()

	// While the write to slow is pending, the hub keeps serving other rooms
	// and membership changes in the same room.
	done := make(chan struct{})
	go func() {
		other := &stubConn{}
		h.register("t2", &client{conn: other})
		h.Broadcast("t2", "trade.accepted", nil)
		peer := &client{conn: &stubConn{}}
		h.register("t1", peer)
		h.unregister("t1", peer)
		_ = h.Subscribers("t1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub blocked behind a pending write")
	}

	close(slow.gate)
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never finished")
	}
	assert.Equal(t, 1, slow.count())
}

func TestBroadcastClosesFailedSubscriber(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	bad := &stubConn{fail: true}
	good := &stubConn{}
	h.register("t1", &client{conn: bad})
	h.register("t1", &client{conn: good})

	h.Broadcast("t1", "trade.completed", map[string]string{"status": "completed"})

	assert.True(t, bad.closed)
	assert.False(t, good.closed)
	require.Equal(t, 1, good.count())
	assert.JSONEq(t, `{"type":"trade.completed","data":{"status":"completed"}}`, string(good.writes[0]))
}

func TestUnregisterDropsEmptyRoom(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	c := &client{conn: &stubConn{}}
	h.register("t1", c)
	assert.Equal(t, 1, h.Subscribers("t1"))

	h.unregister("t1", c)
	assert.Equal(t, 0, h.Subscribers("t1"))
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.NotContains(t, h.rooms, "t1")
}
