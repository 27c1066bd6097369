// README: Delivery jobs offered to agents and the claim errors.
package matching

import (
	"errors"
	"time"

	"potluck/internal/modules/order"
	"potluck/internal/types"
)

var (
	ErrNotFound        = errors.New("not_found")
	ErrNotEligible     = errors.New("not_eligible")
	ErrAlreadyAssigned = errors.New("already_assigned")
	ErrValidation      = errors.New("validation_error")
)

// Reason explains an empty job list that is not an error.
type Reason string

const (
	ReasonNoServiceArea Reason = "no_service_area"
	ReasonNoLocation    Reason = "no_location"
)

// Candidate is an open delivery order as read from the store, before ranking.
type Candidate struct {
	OrderID         types.ID
	Number          string
	ChefID          types.ID
	ConsumerID      types.ID
	AgentID         *types.ID
	Status          order.Status
	Pickup          *types.Point
	DeliveryAddress string
	DeliveryZip     string
	Destination     *types.Point
	DeliveryFee     types.Money
	PlacedAt        time.Time
	ExpectedReadyAt *time.Time
}

// Job is a Candidate enriched for one agent. DistanceKm is nil when either the
// agent or the chef position is unknown.
type Job struct {
	Candidate
	DistanceKm        *float64
	TripKm            *float64
	EstimatedEarnings types.Money
	ETA               time.Duration
}

// JobList is the result of a search; Reason is set only when no search could run.
type JobList struct {
	Jobs   []Job
	Reason Reason
}
