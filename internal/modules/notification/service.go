// README: Best-effort notification emitter and the inbox read API.
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/types"
)

const (
	sendTimeout  = 2 * time.Second
	defaultLimit = 50
)

// Service is both the fire-and-forget sink used by the lifecycle modules and the inbox API.
type Service struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewService(repo Repository, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, log: logger.OrNop(log).Named("notification.service"), metrics: m}
}

// Notify records a notification. It never returns an error; failures are logged and counted.
// orderID may be empty. Caller cancellation is ignored but an earlier caller deadline is kept,
// so a batch sharing one deadline stalls its caller for at most that long.
func (s *Service) Notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID) {
	if userID == "" {
		return
	}
	deadline := time.Now().Add(sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer cancel()

	n := Notification{UserID: userID, Title: title, Message: message}
	if orderID != "" {
		n.OrderID = &orderID
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		s.metrics.NotificationFailed()
		s.log.Warn("notification dropped",
			zap.String("user_id", userID.String()),
			zap.String("order_id", orderID.String()),
			zap.String("title", title),
			zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context, userID types.ID) ([]Notification, error) {
	return s.repo.List(ctx, userID, defaultLimit)
}

func (s *Service) MarkRead(ctx context.Context, userID types.ID, id int64) error {
	ok, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: notification %d", ErrNotFound, id)
	}
	return nil
}
