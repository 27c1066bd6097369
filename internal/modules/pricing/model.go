// README: Dish pricing attributes, suggestions and error definitions.
package pricing

import (
	"errors"

	"potluck/internal/types"
)

var (
	ErrMispriced     = errors.New("mispriced")
	ErrQuotaExceeded = errors.New("quota_exceeded")
	ErrValidation    = errors.New("validation_error")
)

const (
	SourceOracle   = "oracle"
	SourceFallback = "fallback"
)

// Chef experience tiers drive the profit margin.
const (
	ExperienceNew          = "new"
	ExperienceIntermediate = "intermediate"
	ExperienceExperienced  = "experienced"
)

type DishAttributes struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	CuisineType    string `json:"cuisine_type"`
	PortionSize    string `json:"portion_size"`
	ChefExperience string `json:"chef_experience"`
	Location       string `json:"location"`
}

type Breakdown struct {
	Ingredients types.Money
	Utilities   types.Money
	Packaging   types.Money
	PlatformFee types.Money
	Profit      types.Money
}

type Suggestion struct {
	Suggested types.Money
	Min       types.Money
	Max       types.Money
	Breakdown Breakdown
	Reasoning string
	// Source is SourceOracle or SourceFallback.
	Source string
}

func (s Suggestion) Fallback() bool { return s.Source == SourceFallback }
