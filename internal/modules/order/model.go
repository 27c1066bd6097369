// README: Order aggregate, status graph and error definitions.
package order

import (
	"errors"
	"time"

	"potluck/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPickedUp  Status = "picked_up"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var AllStatuses = []Status{
	StatusPending, StatusAccepted, StatusPreparing, StatusReady,
	StatusPickedUp, StatusDelivered, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// AssignableStatuses are the states in which an unassigned delivery order is visible to agents.
var AssignableStatuses = []Status{StatusAccepted, StatusPreparing, StatusReady}

type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDelivery DeliveryType = "delivery"
)

type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCard, PaymentCash, PaymentOnline:
		return true
	}
	return false
}

var (
	ErrNotFound          = errors.New("not_found")
	ErrValidation        = errors.New("validation_error")
	ErrEmptyCart         = errors.New("empty_cart")
	ErrChefUnavailable   = errors.New("chef_unavailable")
	ErrPriceMismatch     = errors.New("price_mismatch")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrAlreadyInState    = errors.New("already_in_state")
	ErrForbidden         = errors.New("forbidden")
	ErrStaleStatus       = errors.New("stale_status")
)

type Item struct {
	DishID    types.ID `json:"dish_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price_cents"`
}

func (i Item) LineTotal() int64 { return i.UnitPrice * int64(i.Quantity) }

type Order struct {
	ID         types.ID
	Number     string
	ConsumerID types.ID
	ChefID     types.ID
	AgentID    *types.ID

	Items       []Item
	Subtotal    types.Money
	DeliveryFee types.Money
	PlatformFee types.Money
	Tax         types.Money
	Total       types.Money

	PaymentMethod PaymentMethod
	PaymentStatus string

	DeliveryType    DeliveryType
	DeliveryAddress string
	DeliveryZip     string
	Destination     *types.Point

	Status              Status
	StatusVersion       int
	PrepMinutes         int
	SpecialInstructions string

	PlacedAt        time.Time
	AcceptedAt      *time.Time
	ExpectedReadyAt *time.Time
	AssignedAt      *time.Time
	PickedUpAt      *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	SettledAt       *time.Time
}

// HasAgent reports whether a delivery agent is bound to the order.
func (o *Order) HasAgent() bool { return o.AgentID != nil && *o.AgentID != "" }

// HistoryEntry is one row of the append-only status log.
type HistoryEntry struct {
	ID        int64
	OrderID   types.ID
	Status    Status
	ChangedBy types.ID
	Notes     string
	CreatedAt time.Time
}

// AllowedTransitions represents the delivery-order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusDelivered},
}

// pickupTransitions differ only after ready: the consumer collects and the chef closes the order.
var pickupTransitions = map[Status][]Status{
	StatusPending:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
}

func CanTransition(dt DeliveryType, from, to Status) bool {
	graph := AllowedTransitions
	if dt == DeliveryTypePickup {
		graph = pickupTransitions
	}
	for _, s := range graph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// consumerCancellable lists the states a consumer may cancel from; later cancellations are the chef's.
var consumerCancellable = map[Status]bool{
	StatusPending:  true,
	StatusAccepted: true,
}
