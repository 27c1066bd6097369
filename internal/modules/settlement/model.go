// README: Settlement types: ratings, ledger entries and running rating aggregates.
package settlement

import (
	"errors"
	"time"

	"potluck/internal/types"
)

var (
	ErrNotFound       = errors.New("not_found")
	ErrValidation     = errors.New("validation_error")
	ErrForbidden      = errors.New("forbidden")
	ErrNotDelivered   = errors.New("not_delivered")
	ErrAlreadySettled = errors.New("already_settled")
)

const (
	minRating       = 1
	maxRating       = 5
	maxReviewLength = 2000
)

type EarningType string

const (
	EarningOrderRevenue EarningType = "order_revenue"
	EarningDeliveryFee  EarningType = "delivery_fee"
	EarningTip          EarningType = "tip"
)

// Ratings are optional; nil means "not rated", never zero.
type Ratings struct {
	Food     *int
	Chef     *int
	Delivery *int
}

type SettleCommand struct {
	OrderID   types.ID
	ActorID   types.ID
	ActorRole types.Role
	Ratings   Ratings
	Tip       types.Money
	Review    string
}

// Record is what one settlement writes, resolved against the order.
type Record struct {
	OrderID    types.ID
	ConsumerID types.ID
	ChefID     types.ID
	AgentID    *types.ID
	DishIDs    []types.ID
	Ratings    Ratings
	Tip        types.Money
	Review     string
	At         time.Time
}

// Closing is the ledger side of a delivered order.
type Closing struct {
	OrderID    types.ID
	ChefID     types.ID
	AgentID    *types.ID
	Revenue    types.Money
	DishesSold int
}

type Entry struct {
	ID      int64
	OrderID types.ID
	Amount  types.Money
	Type    EarningType
	Status  string
	At      time.Time
}

type Summary struct {
	UserID types.ID
	ByType map[EarningType]types.Money
	Total  types.Money
	Recent []Entry
}

// Aggregate is a running mean over discrete ratings.
type Aggregate struct {
	Average float64
	Count   int
}

// Apply folds one rating into the mean. The store's SQL uses the same formula
// in a single UPDATE so average and count never diverge.
func (a Aggregate) Apply(v int) Aggregate {
	return Aggregate{
		Average: (a.Average*float64(a.Count) + float64(v)) / float64(a.Count+1),
		Count:   a.Count + 1,
	}
}
