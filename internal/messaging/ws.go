package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

const writeWait = 10 * time.Second

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TradeReader authorizes a subscriber against a trade.
type TradeReader interface {
	Get(ctx context.Context, id string, actor trade.Actor) (*trade.Trade, error)
}

// conn is the part of *websocket.Conn a subscriber writes through.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	conn conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans trade events out to websocket subscribers, one room per trade.
// mu guards only the room maps; socket writes happen outside it.
type Hub struct {
	trades   TradeReader
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]bool
}

func NewHub(trades TradeReader, logger *zap.Logger) *Hub {
	return &Hub{
		trades: trades,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]bool),
	}
}

func (h *Hub) register(tradeID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[tradeID]
	if !ok {
		room = make(map[*client]bool)
		h.rooms[tradeID] = room
	}
	room[c] = true
}

func (h *Hub) unregister(tradeID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[tradeID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, tradeID)
	}
}

// Subscribers reports how many connections are watching tradeID.
func (h *Hub) Subscribers(tradeID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[tradeID])
}

func (h *Hub) snapshot(tradeID string) []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[tradeID]
	out := make([]*client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// Broadcast sends an event to every subscriber of tradeID. A subscriber
// whose write fails is closed; its read loop then unregisters it.
func (h *Hub) Broadcast(tradeID, typ string, data interface{}) {
	clients := h.snapshot(tradeID)
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(wsEvent{Type: typ, Data: data})
	if err != nil {
		h.logger.Warn("ws marshal failed", zap.String("trade_id", tradeID), zap.Error(err))
		return
	}
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Debug("ws write failed", zap.String("trade_id", tradeID), zap.Error(err))
			_ = c.conn.Close()
		}
	}
}

// Handle implements the outbox sink: every trade event is pushed to its room.
func (h *Hub) Handle(_ context.Context, msg trade.OutboxMessage) error {
	if msg.Topic != trade.TopicEvents {
		return nil
	}
	ev, err := trade.DecodeEvent(msg)
	if err != nil {
		return err
	}
	h.Broadcast(ev.TradeID, string(ev.Type), ev)
	return nil
}

// TradeWS - websocket for realtime updates on a trade
// GET /trades/:id/ws
func (h *Hub) TradeWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	role, _ := c.Get("role").(string)
	tradeID := c.Param("id")

	if _, err := h.trades.Get(c.Request().Context(), tradeID, trade.Actor{ID: userID, Role: trade.Role(role)}); err != nil {
		if te, ok := trade.AsError(err); ok {
			switch te.Kind {
			case trade.KindNotFound:
				return c.JSON(http.StatusNotFound, echo.Map{"error": "trade not found"})
			case trade.KindAuthorization:
				return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this trade"})
			}
		}
		h.logger.Error("ws trade lookup failed", zap.String("trade_id", tradeID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load trade"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: ws}
	h.register(tradeID, cl)
	h.Broadcast(tradeID, "presence_join", echo.Map{"user_id": userID})

	// Read loop (discard client messages; protocol is server push)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(tradeID, cl)
			_ = ws.Close()
			h.Broadcast(tradeID, "presence_leave", echo.Map{"user_id": userID})
			break
		}
	}
	return nil
}
