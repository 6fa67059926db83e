package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker consumes the email queues.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	mailer Mailer
	logger *zap.Logger
}

func NewWorker(redis asynq.RedisClientOpt, mailer Mailer, logger *zap.Logger) *Worker {
	w := &Worker{mailer: mailer, logger: logger.Named("alerts.worker")}

	w.mux = asynq.NewServeMux()
	w.mux.HandleFunc(TaskTradeEmail, w.handleTradeEmail)
	w.mux.HandleFunc(TaskModeratorAlert, w.handleModeratorAlert)

	w.srv = asynq.NewServer(redis, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueEmails: 10,
			QueueAlerts: 5,
		},
		Logger: w.logger.Sugar(),
	})
	return w
}

// Start runs the worker in the background.
func (w *Worker) Start() error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start asynq worker: %w", err)
	}
	w.logger.Info("asynq worker started")
	return nil
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleTradeEmail(ctx context.Context, t *asynq.Task) error {
	var p TradeEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := w.mailer.Send(ctx, p.Email, p.Envelope.Subject, p.Envelope.Body); err != nil {
		w.logger.Error("trade email send failed", zap.String("trade_id", p.TradeID), zap.String("event", p.EventType), zap.Error(err))
		return err
	}
	w.logger.Info("trade email sent", zap.String("trade_id", p.TradeID), zap.String("event", p.EventType), zap.String("user_id", p.UserID))
	return nil
}

func (w *Worker) handleModeratorAlert(ctx context.Context, t *asynq.Task) error {
	var p ModeratorAlertPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := w.mailer.Send(ctx, p.Envelope.To, p.Envelope.Subject, p.Envelope.Body); err != nil {
		w.logger.Error("moderator alert send failed", zap.String("trade_id", p.TradeID), zap.Error(err))
		return err
	}
	w.logger.Info("moderator alert sent", zap.String("trade_id", p.TradeID), zap.String("severity", p.Severity))
	return nil
}
