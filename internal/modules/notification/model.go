// README: Notification records and their typed payloads.
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hyperlocal/internal/types"
)

type Type string

const (
	TypeOrderUpdate Type = "order_update"
	TypeDelivery    Type = "delivery"
	TypePayment     Type = "payment"
	TypeSystem      Type = "system"
)

// Data is the payload union; each variant is bound to one Type.
type Data interface {
	Type() Type
}

type OrderUpdateData struct {
	OrderID     types.ID `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	Status      string   `json:"status"`
}

func (OrderUpdateData) Type() Type { return TypeOrderUpdate }

type DeliveryData struct {
	OrderID     types.ID `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	RiderID     types.ID `json:"rider_id"`
	Status      string   `json:"status"`
}

func (DeliveryData) Type() Type { return TypeDelivery }

type PaymentData struct {
	OrderID       types.ID `json:"order_id"`
	OrderNumber   string   `json:"order_number"`
	PaymentStatus string   `json:"payment_status"`
	Amount        float64  `json:"amount"`
}

func (PaymentData) Type() Type { return TypePayment }

type SystemData struct {
	Code string `json:"code"`
}

func (SystemData) Type() Type { return TypeSystem }

// Notification is write-once apart from the IsRead / IsSent flags.
type Notification struct {
	ID        types.ID  `json:"id"`
	UserID    types.ID  `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Data      Data      `json:"-"`
	IsRead    bool      `json:"is_read"`
	IsSent    bool      `json:"is_sent"`
	CreatedAt time.Time `json:"created_at"`
}

func (n Notification) Type() Type {
	if n.Data == nil {
		return TypeSystem
	}
	return n.Data.Type()
}

var ErrUnknownType = errors.New("unknown notification type")

type wireNotification struct {
	ID        types.ID        `json:"id"`
	UserID    types.ID        `json:"user_id"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	IsSent    bool            `json:"is_sent"`
	CreatedAt int64           `json:"created_at"`
}

func (n Notification) MarshalJSON() ([]byte, error) {
	data, err := EncodeData(n.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireNotification{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type(),
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		IsRead:    n.IsRead,
		IsSent:    n.IsSent,
		CreatedAt: n.CreatedAt.UnixMilli(),
	})
}

func (n *Notification) UnmarshalJSON(b []byte) error {
	var w wireNotification
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	data, err := DecodeData(w.Type, w.Data)
	if err != nil {
		return err
	}
	*n = Notification{
		ID:        w.ID,
		UserID:    w.UserID,
		Title:     w.Title,
		Message:   w.Message,
		Data:      data,
		IsRead:    w.IsRead,
		IsSent:    w.IsSent,
		CreatedAt: time.UnixMilli(w.CreatedAt),
	}
	return nil
}

// EncodeData renders the payload for the data column / wire field.
func EncodeData(d Data) (json.RawMessage, error) {
	if d == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(d)
}

// DecodeData restores the payload variant selected by t.
func DecodeData(t Type, raw json.RawMessage) (Data, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		d   Data
		err error
	)
	switch t {
	case TypeOrderUpdate:
		var v OrderUpdateData
		err = json.Unmarshal(raw, &v)
		d = v
	case TypeDelivery:
		var v DeliveryData
		err = json.Unmarshal(raw, &v)
		d = v
	case TypePayment:
		var v PaymentData
		err = json.Unmarshal(raw, &v)
		d = v
	case TypeSystem:
		var v SystemData
		err = json.Unmarshal(raw, &v)
		d = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
