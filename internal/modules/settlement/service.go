// README: Settlement service closes delivered orders and records the consumer's one-time ratings and tip.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/modules/order"
	"potluck/internal/types"
)

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID)
}

type Service struct {
	repo     Repository
	orders   Orders
	notifier Notifier
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(repo Repository, orders Orders, notifier Notifier, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		notifier: notifier,
		now:      time.Now,
		log:      logger.OrNop(log).Named("settlement.service"),
		metrics:  m,
	}
}

// Close posts the chef's revenue for a delivered order. Safe to call more than once.
func (s *Service) Close(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrValidation)
	}
	if o.Status != order.StatusDelivered {
		return fmt.Errorf("%w: order %s is %s", ErrNotDelivered, o.ID, o.Status)
	}
	sold := 0
	for _, it := range o.Items {
		sold += it.Quantity
	}
	c := Closing{
		OrderID:    o.ID,
		ChefID:     o.ChefID,
		Revenue:    o.Subtotal,
		DishesSold: sold,
	}
	if o.HasAgent() {
		agent := *o.AgentID
		c.AgentID = &agent
	}
	if err := s.repo.Close(ctx, c); err != nil {
		return fmt.Errorf("close order %s: %w", o.ID, err)
	}
	s.log.Debug("order closed", zap.String("order_id", o.ID.String()), zap.String("revenue", o.Subtotal.String()))
	return nil
}

// notifyBudget bounds the notifications sent for one settlement.
const notifyBudget = 2 * time.Second

// Settle records ratings, review and tip for a delivered order exactly once.
func (s *Service) Settle(ctx context.Context, cmd SettleCommand) error {
	err := s.settle(ctx, cmd)
	s.metrics.Settlement(settleResult(err))
	return err
}

func (s *Service) settle(ctx context.Context, cmd SettleCommand) error {
	if err := validateSettle(cmd); err != nil {
		return err
	}
	o, err := s.orders.Get(ctx, cmd.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return fmt.Errorf("%w: order %s", ErrNotFound, cmd.OrderID)
	}
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if cmd.ActorRole != types.RoleConsumer || cmd.ActorID != o.ConsumerID {
		return fmt.Errorf("%w: only the order's consumer can settle it", ErrForbidden)
	}
	if o.Status != order.StatusDelivered {
		return fmt.Errorf("%w: order is %s", ErrNotDelivered, o.Status)
	}
	if o.SettledAt != nil {
		return fmt.Errorf("%w: order %s", ErrAlreadySettled, o.ID)
	}

	log := s.log.With(zap.String("order_id", o.ID.String()), zap.String("consumer_id", cmd.ActorID.String()))

	// Revenue may be missing if the close at delivery time failed.
	if err := s.Close(ctx, o); err != nil {
		log.Error("close before settle failed", zap.Error(err))
		return err
	}

	rec := Record{
		OrderID:    o.ID,
		ConsumerID: o.ConsumerID,
		ChefID:     o.ChefID,
		DishIDs:    distinctDishes(o.Items),
		Ratings:    cmd.Ratings,
		Tip:        cmd.Tip,
		Review:     strings.TrimSpace(cmd.Review),
		At:         s.now(),
	}
	if o.HasAgent() {
		agent := *o.AgentID
		rec.AgentID = &agent
	} else {
		rec.Ratings.Delivery = nil
	}
	if rec.Tip.Currency == "" {
		rec.Tip.Currency = types.DefaultCurrency
	}

	if err := s.repo.Settle(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrNotDelivered) || errors.Is(err, ErrNotFound) {
			log.Info("settle rejected", zap.Error(err))
			return fmt.Errorf("%w: order %s", err, o.ID)
		}
		log.Error("settle write failed", zap.Error(err))
		return fmt.Errorf("settle order %s: %w", o.ID, err)
	}
	log.Info("order settled", zap.String("tip", rec.Tip.String()))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyBudget)
	defer cancel()
	if rec.Ratings.Chef != nil || rec.Review != "" {
		s.notify(ctx, o.ChefID, "New review", fmt.Sprintf("Order %s received a review", o.Number), o.ID)
	}
	if rec.AgentID != nil && rec.Tip.Amount > 0 {
		s.notify(ctx, *rec.AgentID, "You received a tip", fmt.Sprintf("%s tip for order %s", rec.Tip, o.Number), o.ID)
	}
	return nil
}

func validateSettle(cmd SettleCommand) error {
	if cmd.OrderID == "" {
		return fmt.Errorf("%w: order id is required", ErrValidation)
	}
	for name, v := range map[string]*int{"food": cmd.Ratings.Food, "chef": cmd.Ratings.Chef, "delivery": cmd.Ratings.Delivery} {
		if v != nil && (*v < minRating || *v > maxRating) {
			return fmt.Errorf("%w: %s rating must be between %d and %d", ErrValidation, name, minRating, maxRating)
		}
	}
	if cmd.Tip.Negative() {
		return fmt.Errorf("%w: tip must not be negative", ErrValidation)
	}
	if len(cmd.Review) > maxReviewLength {
		return fmt.Errorf("%w: review is longer than %d characters", ErrValidation, maxReviewLength)
	}
	return nil
}

func distinctDishes(items []order.Item) []types.ID {
	seen := make(map[types.ID]bool, len(items))
	out := make([]types.ID, 0, len(items))
	for _, it := range items {
		if !seen[it.DishID] {
			seen[it.DishID] = true
			out = append(out, it.DishID)
		}
	}
	return out
}

// Earnings totals the user's ledger by entry type.
func (s *Service) Earnings(ctx context.Context, userID types.ID) (Summary, error) {
	if userID == "" {
		return Summary{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.repo.Earnings(ctx, userID)
}

func (s *Service) notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, title, message, orderID)
}

func settleResult(err error) string {
	for _, sentinel := range []error{ErrValidation, ErrForbidden, ErrNotFound, ErrNotDelivered, ErrAlreadySettled} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if err != nil {
		return "error"
	}
	return "ok"
}
