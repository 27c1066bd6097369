// README: Dish listings and chef availability as seen by ordering.
package catalog

import (
	"errors"
	"time"

	"potluck/internal/types"
)

var (
	ErrNotFound   = errors.New("not_found")
	ErrValidation = errors.New("validation_error")
)

type Dish struct {
	ID          types.ID
	ChefID      types.ID
	Name        string
	Description string
	Price       types.Money
	CuisineType string
	PortionSize string
	PrepMinutes int
	Available   bool
	Rating      float64
	RatingCount int
	CreatedAt   time.Time
}

// Chef is the subset of a user row that decides whether orders can be placed.
type Chef struct {
	ID        types.ID
	Name      string
	UserType  types.Role
	Active    bool
	Available bool
	Zip       string
	Position  *types.Point
}

// AcceptingOrders is false for inactive accounts, non-chefs and chefs who paused orders.
func (c Chef) AcceptingOrders() bool {
	return c.UserType == types.RoleChef && c.Active && c.Available
}

type DishInput struct {
	Name        string
	Description string
	Price       types.Money
	CuisineType string
	PortionSize string
	PrepMinutes int
}
