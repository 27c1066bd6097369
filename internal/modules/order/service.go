// README: Order service implements creation, the per-role status state machine and party reads.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/modules/catalog"
	"potluck/internal/modules/location"
	"potluck/internal/types"
)

const (
	defaultPrepMinutes = 30
	listLimit          = 100

	// notifyBudget bounds all notifications one operation sends.
	notifyBudget = 2 * time.Second

	// Caps keep every line total and order sum well inside int64 cents.
	MaxCartLines      = 100
	MaxItemQuantity   = 1000
	MaxUnitPriceCents = 100_000_000
	MaxAmountCents    = 1_000_000_000_000
)

// Catalog resolves chefs and dishes at order time.
type Catalog interface {
	Chef(ctx context.Context, id types.ID) (catalog.Chef, error)
	DishesForOrder(ctx context.Context, chefID types.ID, ids []types.ID) (map[types.ID]catalog.Dish, error)
}

// Settler closes the books on a delivered order. Close must be idempotent.
type Settler interface {
	Close(ctx context.Context, o *Order) error
}

// Notifier is fire-and-forget; it must not block for long or report failures.
type Notifier interface {
	Notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID)
}

type Deps struct {
	Repo     Repository
	Catalog  Catalog
	Settler  Settler
	Notifier Notifier
	// Location decides the calendar day of order numbers; nil means UTC.
	Location *time.Location
	NewID    func() types.ID
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

type Service struct {
	repo     Repository
	catalog  Catalog
	settler  Settler
	notifier Notifier
	notifyIn time.Duration
	loc      *time.Location
	newID    func() types.ID
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(d Deps) *Service {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     d.Repo,
		catalog:  d.Catalog,
		settler:  d.Settler,
		notifier: d.Notifier,
		notifyIn: notifyBudget,
		loc:      loc,
		newID:    d.NewID,
		now:      time.Now,
		log:      logger.OrNop(d.Log).Named("order.service"),
		metrics:  d.Metrics,
	}
}

type CreateCommand struct {
	ConsumerID          types.ID
	ActorRole           types.Role
	ChefID              types.ID
	Items               []Item
	DeliveryType        DeliveryType
	DeliveryAddress     string
	DeliveryZip         string
	Destination         *types.Point
	PaymentMethod       PaymentMethod
	Subtotal            types.Money
	DeliveryFee         types.Money
	PlatformFee         types.Money
	Tax                 types.Money
	Total               types.Money
	SpecialInstructions string
}

type TransitionCommand struct {
	OrderID   types.ID
	To        Status
	ActorID   types.ID
	ActorRole types.Role
	Notes     string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.ActorRole != types.RoleConsumer {
		return nil, fmt.Errorf("%w: only consumers place orders", ErrForbidden)
	}
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	chef, err := s.catalog.Chef(ctx, cmd.ChefID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: chef %s not found", ErrChefUnavailable, cmd.ChefID)
	}
	if err != nil {
		return nil, fmt.Errorf("load chef: %w", err)
	}
	if !chef.AcceptingOrders() {
		return nil, fmt.Errorf("%w: chef %s is not accepting orders", ErrChefUnavailable, cmd.ChefID)
	}

	ids := make([]types.ID, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		ids = append(ids, it.DishID)
	}
	dishes, err := s.catalog.DishesForOrder(ctx, cmd.ChefID, ids)
	if err != nil {
		return nil, fmt.Errorf("load dishes: %w", err)
	}
	prep, err := checkItems(cmd.Items, dishes)
	if err != nil {
		return nil, err
	}
	if err := checkAmounts(cmd); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:                  s.newID(),
		ConsumerID:          cmd.ConsumerID,
		ChefID:              cmd.ChefID,
		Items:               cmd.Items,
		Subtotal:            cmd.Subtotal,
		DeliveryFee:         cmd.DeliveryFee,
		PlatformFee:         cmd.PlatformFee,
		Tax:                 cmd.Tax,
		Total:               cmd.Total,
		PaymentMethod:       cmd.PaymentMethod,
		PaymentStatus:       "pending",
		DeliveryType:        cmd.DeliveryType,
		DeliveryAddress:     strings.TrimSpace(cmd.DeliveryAddress),
		DeliveryZip:         location.NormalizeZip(cmd.DeliveryZip),
		Destination:         cmd.Destination,
		Status:              StatusPending,
		PrepMinutes:         prep,
		SpecialInstructions: strings.TrimSpace(cmd.SpecialInstructions),
		PlacedAt:            now,
	}
	initial := HistoryEntry{
		OrderID:   o.ID,
		Status:    StatusPending,
		ChangedBy: cmd.ConsumerID,
		Notes:     "order placed",
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, o, orderDay(now, s.loc), initial); err != nil {
		s.log.Error("create order failed", zap.String("order_id", o.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.Number),
		zap.String("chef_id", o.ChefID.String()),
		zap.String("total", o.Total.String()))
	s.notify(ctx, o.ChefID, "New order", fmt.Sprintf("You have a new order %s", o.Number), o.ID)
	return o, nil
}

func validateCreate(cmd CreateCommand) error {
	if cmd.ConsumerID == "" || cmd.ChefID == "" {
		return fmt.Errorf("%w: consumer_id and chef_id are required", ErrValidation)
	}
	if len(cmd.Items) == 0 {
		return ErrEmptyCart
	}
	if len(cmd.Items) > MaxCartLines {
		return fmt.Errorf("%w: at most %d cart lines", ErrValidation, MaxCartLines)
	}
	for i, it := range cmd.Items {
		if it.DishID == "" {
			return fmt.Errorf("%w: items[%d].dish_id is required", ErrValidation, i)
		}
		if it.Quantity <= 0 || it.Quantity > MaxItemQuantity {
			return fmt.Errorf("%w: items[%d].quantity must be between 1 and %d", ErrValidation, i, MaxItemQuantity)
		}
		if it.UnitPrice < 0 || it.UnitPrice > MaxUnitPriceCents {
			return fmt.Errorf("%w: items[%d].unit_price out of range", ErrValidation, i)
		}
	}
	switch cmd.DeliveryType {
	case DeliveryTypeDelivery:
		if strings.TrimSpace(cmd.DeliveryAddress) == "" {
			return fmt.Errorf("%w: delivery_address is required for delivery orders", ErrValidation)
		}
		if cmd.Destination == nil {
			return fmt.Errorf("%w: delivery coordinates are required for delivery orders", ErrValidation)
		}
		if err := location.ValidatePoint(*cmd.Destination); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	case DeliveryTypePickup:
		if strings.TrimSpace(cmd.DeliveryAddress) != "" || cmd.Destination != nil {
			return fmt.Errorf("%w: pickup orders must not carry a delivery address", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: delivery_type must be pickup or delivery", ErrValidation)
	}
	if !cmd.PaymentMethod.Valid() {
		return fmt.Errorf("%w: payment_method must be card, cash or online", ErrValidation)
	}
	for name, m := range map[string]types.Money{
		"subtotal": cmd.Subtotal, "delivery_fee": cmd.DeliveryFee, "platform_fee": cmd.PlatformFee,
		"tax": cmd.Tax, "total_amount": cmd.Total,
	} {
		if m.Negative() {
			return fmt.Errorf("%w: %s must not be negative", ErrValidation, name)
		}
		if m.Amount > MaxAmountCents {
			return fmt.Errorf("%w: %s out of range", ErrValidation, name)
		}
	}
	return nil
}

// checkItems matches each line to the chef's menu and returns the longest prep time.
func checkItems(items []Item, dishes map[types.ID]catalog.Dish) (int, error) {
	prep := 0
	for i, it := range items {
		d, ok := dishes[it.DishID]
		if !ok {
			return 0, fmt.Errorf("%w: dish %s is not offered by this chef", ErrValidation, it.DishID)
		}
		if !d.Available {
			return 0, fmt.Errorf("%w: dish %s is not available", ErrValidation, it.DishID)
		}
		if it.UnitPrice != d.Price.Amount {
			return 0, fmt.Errorf("%w: items[%d] unit price %s, menu price %s",
				ErrPriceMismatch, i, types.Cents(it.UnitPrice), d.Price)
		}
		if d.PrepMinutes > prep {
			prep = d.PrepMinutes
		}
	}
	if prep == 0 {
		prep = defaultPrepMinutes
	}
	return prep, nil
}

func checkAmounts(cmd CreateCommand) error {
	var lines int64
	for _, it := range cmd.Items {
		lines += it.LineTotal()
	}
	if lines != cmd.Subtotal.Amount {
		return fmt.Errorf("%w: subtotal %s, items sum to %s", ErrPriceMismatch, cmd.Subtotal, types.Cents(lines))
	}
	sum := cmd.Subtotal.Amount + cmd.DeliveryFee.Amount + cmd.PlatformFee.Amount + cmd.Tax.Amount
	if sum != cmd.Total.Amount {
		return fmt.Errorf("%w: total_amount %s, computed %s", ErrPriceMismatch, cmd.Total, types.Cents(sum))
	}
	return nil
}

// Transition moves an order one step along the graph on behalf of an authenticated actor.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.transition(ctx, cmd)
	s.metrics.Transition(string(cmd.To), resultLabel(err))
	return o, err
}

func (s *Service) transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	if !cmd.To.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.To)
	}
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	log := s.log.With(
		zap.String("order_id", o.ID.String()),
		zap.String("from", string(o.Status)),
		zap.String("to", string(cmd.To)),
		zap.String("actor_id", cmd.ActorID.String()),
		zap.String("actor_role", string(cmd.ActorRole)),
	)

	if err := checkTransition(o, cmd); err != nil {
		if errors.Is(err, ErrAlreadyInState) && o.Status == StatusDelivered {
			if cerr := s.reclose(ctx, o, cmd); cerr != nil {
				log.Error("order close failed", zap.Error(cerr))
				return nil, fmt.Errorf("close order %s: %w", o.ID, cerr)
			}
		}
		log.Info("transition rejected", zap.Error(err))
		return nil, err
	}

	now := s.now()
	change := StatusChange{
		OrderID: o.ID,
		From:    o.Status,
		To:      cmd.To,
		Version: o.StatusVersion,
		ActorID: cmd.ActorID,
		Notes:   strings.TrimSpace(cmd.Notes),
		At:      now,
	}
	if cmd.To == StatusAccepted {
		ready := now.Add(time.Duration(o.PrepMinutes) * time.Minute)
		change.ExpectedReadyAt = &ready
	}
	ok, err := s.repo.Transition(ctx, change)
	if err != nil {
		log.Error("transition write failed", zap.Error(err))
		return nil, fmt.Errorf("transition %s %s->%s: %w", o.ID, o.Status, cmd.To, err)
	}
	if !ok {
		log.Info("transition rejected", zap.Error(ErrStaleStatus))
		return nil, fmt.Errorf("%w: order %s changed since it was read", ErrStaleStatus, o.ID)
	}
	updated := ApplyChange(*o, change)
	log.Info("order transitioned")

	if cmd.To == StatusDelivered && s.settler != nil {
		if err := s.settler.Close(ctx, &updated); err != nil {
			log.Error("order close failed", zap.Error(err))
			return &updated, fmt.Errorf("close order %s: %w", o.ID, err)
		}
	}
	s.notifyTransition(ctx, &updated, cmd.ActorID)
	return &updated, nil
}

// reclose repeats the idempotent close for a repeated delivery by an actor allowed to
// deliver, so a close that failed after the status write is finished on retry.
func (s *Service) reclose(ctx context.Context, o *Order, cmd TransitionCommand) error {
	if s.settler == nil || authorize(o, cmd) != nil {
		return nil
	}
	return s.settler.Close(ctx, o)
}

// checkTransition runs the graph check before authorization so illegal pairs always
// report invalid_transition regardless of who asked.
func checkTransition(o *Order, cmd TransitionCommand) error {
	if o.Status == cmd.To && o.Status.Terminal() {
		return fmt.Errorf("%w: order is already %s", ErrAlreadyInState, o.Status)
	}
	if !CanTransition(o.DeliveryType, o.Status, cmd.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, cmd.To)
	}
	return authorize(o, cmd)
}

func authorize(o *Order, cmd TransitionCommand) error {
	isChef := cmd.ActorRole == types.RoleChef && cmd.ActorID == o.ChefID
	isConsumer := cmd.ActorRole == types.RoleConsumer && cmd.ActorID == o.ConsumerID
	isAgent := cmd.ActorRole == types.RoleDelivery && o.HasAgent() && *o.AgentID == cmd.ActorID

	switch cmd.To {
	case StatusAccepted, StatusPreparing, StatusReady:
		if isChef {
			return nil
		}
		return fmt.Errorf("%w: only the order's chef can mark it %s", ErrForbidden, cmd.To)
	case StatusCancelled:
		if isChef || (isConsumer && consumerCancellable[o.Status]) {
			return nil
		}
		if isConsumer {
			return fmt.Errorf("%w: consumers can cancel only pending or accepted orders", ErrForbidden)
		}
		return fmt.Errorf("%w: only the chef or consumer can cancel", ErrForbidden)
	case StatusPickedUp:
		if isAgent {
			return nil
		}
		return fmt.Errorf("%w: only the assigned delivery agent can pick up", ErrForbidden)
	case StatusDelivered:
		if o.DeliveryType == DeliveryTypePickup {
			if isChef {
				return nil
			}
			return fmt.Errorf("%w: only the chef can confirm collection", ErrForbidden)
		}
		if isAgent {
			return nil
		}
		return fmt.Errorf("%w: only the assigned delivery agent can deliver", ErrForbidden)
	}
	return fmt.Errorf("%w: %s", ErrForbidden, cmd.To)
}

// ApplyChange returns o as it looks after a successful write of c.
func ApplyChange(o Order, c StatusChange) Order {
	o.Status = c.To
	o.StatusVersion++
	at := c.At
	switch c.To {
	case StatusAccepted:
		o.AcceptedAt = &at
	case StatusPickedUp:
		if o.PickedUpAt == nil {
			o.PickedUpAt = &at
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &at
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &at
		}
	}
	if c.ExpectedReadyAt != nil {
		ready := *c.ExpectedReadyAt
		o.ExpectedReadyAt = &ready
	}
	return o
}

func (s *Service) notifyTransition(ctx context.Context, o *Order, actor types.ID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyIn)
	defer cancel()
	n := o.Number
	switch o.Status {
	case StatusAccepted:
		s.notify(ctx, o.ConsumerID, "Order accepted", fmt.Sprintf("The chef accepted order %s", n), o.ID)
	case StatusPreparing:
		s.notify(ctx, o.ConsumerID, "Order in the kitchen", fmt.Sprintf("Order %s is being prepared", n), o.ID)
	case StatusReady:
		if o.DeliveryType == DeliveryTypePickup {
			s.notify(ctx, o.ConsumerID, "Ready for pickup", fmt.Sprintf("Order %s is ready to collect", n), o.ID)
			return
		}
		s.notify(ctx, o.ConsumerID, "Order ready", fmt.Sprintf("Order %s is ready and waiting for a courier", n), o.ID)
		if o.HasAgent() {
			s.notify(ctx, *o.AgentID, "Pickup ready", fmt.Sprintf("Order %s is ready for pickup", n), o.ID)
		}
	case StatusPickedUp:
		s.notify(ctx, o.ChefID, "Order picked up", fmt.Sprintf("Order %s was picked up", n), o.ID)
		s.notify(ctx, o.ConsumerID, "On the way", fmt.Sprintf("Order %s is on the way", n), o.ID)
	case StatusDelivered:
		s.notify(ctx, o.ConsumerID, "Order delivered", fmt.Sprintf("Order %s was delivered. Enjoy!", n), o.ID)
		s.notify(ctx, o.ChefID, "Order completed", fmt.Sprintf("Order %s was delivered", n), o.ID)
	case StatusCancelled:
		for _, party := range []types.ID{o.ConsumerID, o.ChefID} {
			if party != actor {
				s.notify(ctx, party, "Order cancelled", fmt.Sprintf("Order %s was cancelled", n), o.ID)
			}
		}
		if o.HasAgent() && *o.AgentID != actor {
			s.notify(ctx, *o.AgentID, "Job cancelled", fmt.Sprintf("Order %s was cancelled", n), o.ID)
		}
	}
}

func (s *Service) notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, title, message, orderID)
}

// Get returns the order if actorID is one of its parties.
func (s *Service) Get(ctx context.Context, id, actorID types.ID) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(o, actorID) {
		return nil, fmt.Errorf("%w: not a party to order %s", ErrForbidden, id)
	}
	return o, nil
}

func (s *Service) History(ctx context.Context, id, actorID types.ID) ([]HistoryEntry, error) {
	if _, err := s.Get(ctx, id, actorID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func (s *Service) ListByParty(ctx context.Context, userID types.ID, role types.Role) ([]Order, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return s.repo.ListByParty(ctx, userID, role, listLimit)
}

func isParty(o *Order, id types.ID) bool {
	return id != "" && (id == o.ConsumerID || id == o.ChefID || (o.HasAgent() && *o.AgentID == id))
}

func resultLabel(err error) string {
	for _, sentinel := range []error{
		ErrNotFound, ErrValidation, ErrInvalidTransition, ErrAlreadyInState, ErrForbidden, ErrStaleStatus,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if err != nil {
		return "error"
	}
	return "ok"
}
