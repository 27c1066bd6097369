// README: Service areas owned by delivery agents and their live position.
package location

import (
	"errors"
	"time"

	"potluck/internal/types"
)

var (
	ErrNotFound   = errors.New("not_found")
	ErrValidation = errors.New("validation_error")
	ErrForbidden  = errors.New("forbidden")
)

// ServiceArea is a zone an agent opted into. Centre is nil when the zip could not
// be geocoded; such areas match by zip only.
type ServiceArea struct {
	ID        int64
	AgentID   types.ID
	ZipCode   string
	City      string
	State     string
	Centre    *types.Point
	RadiusKm  float64
	IsPrimary bool
	IsActive  bool
	CreatedAt time.Time
}

// Covers reports whether a destination falls inside the area. Coordinates win over
// zip codes when both the area centre and the destination point are known.
func (a ServiceArea) Covers(zip string, dest *types.Point) bool {
	if !a.IsActive {
		return false
	}
	if a.Centre != nil && dest != nil {
		d, err := Distance(*a.Centre, *dest)
		if err != nil {
			return false
		}
		return d <= a.RadiusKm
	}
	return zip != "" && NormalizeZip(zip) == NormalizeZip(a.ZipCode)
}

type AreaInput struct {
	ZipCode   string
	City      string
	State     string
	Centre    *types.Point
	RadiusKm  float64
	IsPrimary bool
}

type AgentPosition struct {
	AgentID   types.ID
	Position  types.Point
	UpdatedAt time.Time
}
