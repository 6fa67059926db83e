package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns trade events into in-app notifications and email tasks.
// It is registered as an outbox sink, so it may see a message more than
// once; notification and task ids are derived from the outbox message id.
type Notifier struct {
	store          NotificationStore
	dir            Directory
	queue          Enqueuer
	appURL         string
	moderatorEmail string
	logger         *zap.Logger
	now            func() time.Time
}

type NotifierOption func(*Notifier)

// WithEmail enables email delivery through queue, looking addresses up in dir.
func WithEmail(queue Enqueuer, dir Directory) NotifierOption {
	return func(n *Notifier) {
		n.queue = queue
		n.dir = dir
	}
}

func WithModeratorEmail(addr string) NotifierOption {
	return func(n *Notifier) { n.moderatorEmail = addr }
}

func NewNotifier(store NotificationStore, appURL string, logger *zap.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		store:          store,
		appURL:         strings.TrimRight(appURL, "/"),
		moderatorEmail: "moderators@diecasthub.local",
		logger:         logger.Named("alerts"),
		now:            time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Notifier) Handle(ctx context.Context, msg trade.OutboxMessage) error {
	if msg.Topic != trade.TopicEvents {
		return nil
	}
	ev, err := trade.DecodeEvent(msg)
	if err != nil {
		return fmt.Errorf("failed to decode event %s: %w", msg.ID, err)
	}

	title, body := describe(ev)
	link := fmt.Sprintf("%s/trades/%s", n.appURL, ev.TradeID)

	var errs []error
	for _, uid := range ev.Recipients {
		if uid == "" {
			continue
		}
		err := n.store.Create(ctx, Notification{
			ID:        dedupeID(msg.ID, uid),
			UserID:    uid,
			Type:      string(ev.Type),
			Title:     title,
			Body:      body,
			Reference: ev.TradeID,
			CreatedAt: ev.OccurredAt,
		})
		if err != nil {
			errs = append(errs, err)
		}
		if err := n.enqueueTradeEmail(ctx, msg.ID, ev, uid, title, body+"\n\nOpen the trade: "+link); err != nil {
			errs = append(errs, err)
		}
	}
	if ev.Moderators {
		if err := n.enqueueModeratorAlert(ctx, msg.ID, ev, title+"\n\n"+body+"\n\n"+link); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) enqueueTradeEmail(ctx context.Context, msgID string, ev trade.Event, userID, subject, body string) error {
	if n.queue == nil || n.dir == nil {
		return nil
	}
	email, err := n.dir.Email(ctx, userID)
	if err != nil {
		return err
	}
	if email == "" {
		n.logger.Debug("no email on file", zap.String("user_id", userID))
		return nil
	}

	payload := TradeEmailPayload{
		TradeID:   ev.TradeID,
		UserID:    userID,
		EventType: string(ev.Type),
		Email:     email,
		Envelope:  EmailEnvelope{To: email, Subject: subject, Body: body},
		SentAt:    n.now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTradeEmail, b)
	_, err = n.queue.EnqueueContext(ctx, task, asynq.Queue(QueueEmails), asynq.TaskID(dedupeID(msgID, userID)), asynq.MaxRetry(5))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (n *Notifier) enqueueModeratorAlert(ctx context.Context, msgID string, ev trade.Event, message string) error {
	if n.queue == nil {
		return nil
	}
	payload := ModeratorAlertPayload{
		TradeID:  ev.TradeID,
		Severity: "warning",
		Message:  message,
		Envelope: EmailEnvelope{To: n.moderatorEmail, Subject: "Trade needs review: " + ev.TradeID, Body: message},
		SentAt:   n.now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskModeratorAlert, b)
	_, err = n.queue.EnqueueContext(ctx, task, asynq.Queue(QueueAlerts), asynq.TaskID(dedupeID(msgID, "moderators")))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// dedupeID is stable per (message, recipient) so redelivery is a no-op.
func dedupeID(msgID, recipient string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(msgID+"/"+recipient)).String()
}

func describe(ev trade.Event) (title, body string) {
	switch ev.Type {
	case trade.EventCreated:
		title = "You received a trade offer"
	case trade.EventAccepted:
		title = "Your trade offer was accepted"
	case trade.EventRejected:
		title = "Your trade offer was declined"
	case trade.EventCountered:
		title = "You received a counter-offer"
	case trade.EventCancelled:
		title = "A trade was cancelled"
	case trade.EventShipped:
		title = "Your trade partner shipped their items"
	case trade.EventTrackingUpdated:
		title = "Tracking number updated"
	case trade.EventReceiptConfirmed:
		title = "Your trade partner confirmed receipt"
	case trade.EventCompleted:
		title = "Trade completed"
	case trade.EventDisputed:
		title = "A dispute was opened on your trade"
	case trade.EventResolved:
		title = "Your trade dispute was resolved"
	default:
		title = "Trade update"
	}

	body = fmt.Sprintf("Trade %s is now %s.", ev.TradeID, strings.ReplaceAll(string(ev.Status), "_", " "))
	if ev.Detail != "" {
		body += "\n\n" + ev.Detail
	}
	return title, body
}
