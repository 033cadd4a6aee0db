// README: Firebase Realtime Database mirror of rider positions; customer apps listen on rider_locations/{riderID}.
package rider

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

const rtdbRiderNode = "rider_locations"

// Mirror publishes a rider's latest position for live tracking. Failures are
// logged by the caller and never fail the update.
type Mirror interface {
	Publish(ctx context.Context, r *Rider) error
}

type rtdbEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	OrderID   string  `json:"order_id,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type RTDBMirror struct {
	set func(ctx context.Context, path string, v any) error
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{set: func(ctx context.Context, path string, v any) error {
		return client.NewRef(path).Set(ctx, v)
	}}
}

func (m *RTDBMirror) Publish(ctx context.Context, r *Rider) error {
	e := rtdbEntry{
		Lat:       r.Location.Lat,
		Lng:       r.Location.Lng,
		Status:    riderStatus(r),
		Timestamp: r.UpdatedAt.UnixMilli(),
	}
	if r.AssignedOrderID != nil {
		e.OrderID = string(*r.AssignedOrderID)
	}
	if err := m.set(ctx, rtdbRiderNode+"/"+string(r.ID), e); err != nil {
		return fmt.Errorf("rtdb set rider %s: %w", r.ID, err)
	}
	return nil
}

func riderStatus(r *Rider) string {
	switch {
	case !r.IsOnline:
		return "offline"
	case r.IsBusy:
		return "delivering"
	default:
		return "online"
	}
}
