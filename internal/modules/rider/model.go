// README: Rider profile: live position, online flag and the single active assignment.
package rider

import (
	"errors"
	"time"

	"hyperlocal/internal/types"
)

var (
	ErrNotFound     = errors.New("rider not found")
	ErrUnauthorized = errors.New("rider profile belongs to another user")
	ErrBadRequest   = errors.New("bad request")
)

// Rider is one-to-one with a user account. IsBusy is set iff AssignedOrderID
// is set; both are only changed by order transitions.
type Rider struct {
	ID              types.ID    `json:"id"`
	UserID          types.ID    `json:"user_id"`
	Location        types.Point `json:"location"`
	IsOnline        bool        `json:"is_online"`
	IsBusy          bool        `json:"is_busy"`
	AssignedOrderID *types.ID   `json:"assigned_order_id,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Available reports whether the rider can take a new assignment.
func (r *Rider) Available() bool {
	return r.IsOnline && !r.IsBusy
}

type LocationUpdate struct {
	RiderID     types.ID
	ActorUserID types.ID
	Position    types.Point
	IsOnline    bool
}
