// README: In-app notification records produced by order lifecycle events.
package notification

import (
	"errors"
	"time"

	"potluck/internal/types"
)

var ErrNotFound = errors.New("not_found")

type Notification struct {
	ID        int64
	UserID    types.ID
	Title     string
	Message   string
	OrderID   *types.ID
	Read      bool
	CreatedAt time.Time
}
