// README: Order aggregate, status/payment definitions and the transition table.
package order

import (
	"encoding/json"
	"time"

	"hyperlocal/internal/types"
)

type Status string

const (
	StatusNone           Status = "none"
	StatusPending        Status = "pending"
	StatusAccepted       Status = "accepted_by_shopkeeper"
	StatusAssigned       Status = "assigned_to_rider"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusAssigned, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Events name the transitions in logs and error messages.
const (
	EventCreate        = "create"
	EventAccept        = "accept"
	EventAssignRider   = "assign_rider"
	EventStartDelivery = "start_delivery"
	EventDeliver       = "deliver"
	EventCancel        = "cancel"
	EventPayment       = "update_payment"
)

const (
	ActorCustomer   = "customer"
	ActorShopkeeper = "shopkeeper"
	ActorRider      = "rider"
	ActorSystem     = "system"
)

type Item struct {
	ProductID  types.ID `json:"product_id"`
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
	Quantity   int      `json:"quantity"`
	TotalPrice float64  `json:"total_price"`
}

type Address struct {
	Street      string       `json:"street"`
	City        string       `json:"city"`
	Pincode     string       `json:"pincode"`
	State       string       `json:"state"`
	Coordinates *types.Point `json:"coordinates,omitempty"`
}

// Order items and totals are immutable after creation.
type Order struct {
	ID              types.ID      `json:"id"`
	OrderNumber     string        `json:"order_number"`
	CustomerID      types.ID      `json:"customer_id"`
	ShopID          types.ID      `json:"shop_id"`
	RiderID         *types.ID     `json:"rider_id,omitempty"`
	Status          Status        `json:"status"`
	StatusVersion   int           `json:"-"`
	Items           []Item        `json:"items"`
	Subtotal        float64       `json:"subtotal"`
	DeliveryFee     float64       `json:"delivery_fee"`
	Tax             float64       `json:"tax"`
	TotalAmount     float64       `json:"total_amount"`
	DeliveryAddress Address       `json:"delivery_address"`
	PaymentMethod   string        `json:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	DeliveryTime    *string       `json:"delivery_time,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"-"`
	UpdatedAt       time.Time     `json:"-"`
}

// MarshalJSON renders timestamps as epoch millis, matching the stored shape.
func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		CreatedAt int64 `json:"created_at"`
		UpdatedAt int64 `json:"updated_at"`
	}{
		alias:     alias(o),
		CreatedAt: o.CreatedAt.UnixMilli(),
		UpdatedAt: o.UpdatedAt.UnixMilli(),
	})
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusAccepted, StatusCancelled},
	StatusAccepted:       {StatusAssigned, StatusCancelled},
	StatusAssigned:       {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedPaymentTransitions is orthogonal to the delivery status.
var AllowedPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed, PaymentRefunded},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, p := range AllowedPaymentTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// ActiveStatuses are the statuses that still occupy shop capacity.
var ActiveStatuses = []Status{StatusPending, StatusAccepted, StatusAssigned}

type ListQuery struct {
	Status *Status
	Limit  int
	Offset int
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Normalized applies the default and maximum page size.
func (q ListQuery) Normalized() ListQuery {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
