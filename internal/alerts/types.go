package alerts

import "time"

// Task type constants
const (
	TaskTradeEmail     = "email:trade_event"
	TaskModeratorAlert = "email:moderator_alert"
)

const (
	QueueEmails = "emails"
	QueueAlerts = "alerts"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TradeEmailPayload tells one participant about a trade event.
type TradeEmailPayload struct {
	TradeID   string        `json:"trade_id"`
	UserID    string        `json:"user_id"`
	EventType string        `json:"event_type"`
	Email     string        `json:"email"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}

// ModeratorAlertPayload asks moderators to look at a trade.
type ModeratorAlertPayload struct {
	TradeID  string        `json:"trade_id"`
	Severity string        `json:"severity"` // info|warning|critical
	Message  string        `json:"message"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}

// Notification is an in-app alert row.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}
