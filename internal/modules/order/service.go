// README: Order service implements the delivery lifecycle: guards, atomic transitions and post-commit notifications.
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"hyperlocal/internal/logger"
	"hyperlocal/internal/modules/notification"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/modules/shop"
	"hyperlocal/internal/types"
)

type ShopReader interface {
	GetShop(ctx context.Context, id types.ID) (*shop.Shop, error)
}

type RiderReader interface {
	GetRider(ctx context.Context, id types.ID) (*rider.Rider, error)
}

const (
	maxOrderNumberAttempts = 3
	maxConflictAttempts    = 3
)

type Service struct {
	store    Store
	shops    ShopReader
	riders   RiderReader
	notifier notification.Notifier
	clock    types.Clock
	ids      types.IDGenerator
}

type Option func(*Service)

func WithClock(c types.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIDGenerator(g types.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// NewService builds the order service. notifier may be nil.
func NewService(store Store, shops ShopReader, riders RiderReader, notifier notification.Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		shops:    shops,
		riders:   riders,
		notifier: notifier,
		clock:    types.SystemClock{},
		ids:      types.RandomIDGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCommand struct {
	CustomerID      types.ID
	ShopID          types.ID
	Items           []Item
	Subtotal        float64
	DeliveryFee     float64
	Tax             float64
	TotalAmount     float64
	DeliveryAddress Address
	PaymentMethod   string
	Notes           *string
}

type AcceptCommand struct {
	OrderID types.ID
	ActorID types.ID
}

type AssignRiderCommand struct {
	OrderID types.ID
	RiderID types.ID
	ActorID types.ID
	// BySystem skips the owner check; used by auto-dispatch.
	BySystem bool
}

type UpdateStatusCommand struct {
	OrderID       types.ID
	Status        Status
	DeliveryTime  *string
	PaymentStatus *PaymentStatus
	// ActorID, when set, must be the assigned rider's user for delivery
	// progress, or the customer or shop owner for cancellation.
	ActorID types.ID
	Reason  string
}

type UpdatePaymentCommand struct {
	OrderID       types.ID
	PaymentStatus PaymentStatus
}

type CancelCommand struct {
	OrderID types.ID
	Reason  string
	// ActorID, when set, must be the customer or the shop owner.
	ActorID types.ID
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	o, err := s.buildOrder(cmd)
	if err != nil {
		return "", err
	}
	sh, err := s.getShop(ctx, cmd.ShopID)
	if err != nil {
		return "", err
	}

	for attempt := 1; ; attempt++ {
		o.OrderNumber = s.ids.NewOrderNumber(o.CreatedAt)
		ev := &Event{
			OrderID:    o.ID,
			FromStatus: StatusNone,
			ToStatus:   StatusPending,
			ActorType:  ActorCustomer,
			ActorID:    actorRef(o.CustomerID),
			CreatedAt:  o.CreatedAt,
		}
		err = s.store.Create(ctx, o, ev)
		if !errors.Is(err, ErrDuplicateOrderNumber) || attempt == maxOrderNumberAttempts {
			break
		}
		logger.Warn("order number collision, regenerating", zap.String("order_number", o.OrderNumber))
	}
	if err != nil {
		return "", err
	}

	s.notify(ctx, o.CustomerID, "Order Placed",
		"Your order #"+o.OrderNumber+" has been placed successfully",
		orderUpdate(o, StatusPending))
	s.notify(ctx, sh.OwnerID, "New Order Received",
		"You have received a new order #"+o.OrderNumber,
		orderUpdate(o, StatusPending))
	return o.ID, nil
}

func (s *Service) buildOrder(cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || cmd.ShopID == "" {
		return nil, badRequest("customer and shop are required")
	}
	if len(cmd.Items) == 0 {
		return nil, badRequest("order must contain at least one item")
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		return nil, badRequest("payment method is required")
	}
	addr := cmd.DeliveryAddress
	if strings.TrimSpace(addr.Street) == "" || strings.TrimSpace(addr.City) == "" || strings.TrimSpace(addr.Pincode) == "" {
		return nil, badRequest("delivery address requires street, city and pincode")
	}
	if addr.Coordinates != nil && !addr.Coordinates.Valid() {
		return nil, badRequest("delivery coordinates out of range")
	}
	if cmd.DeliveryFee < 0 || cmd.Tax < 0 {
		return nil, badRequest("delivery fee and tax must not be negative")
	}

	items := make([]Item, len(cmd.Items))
	var subtotal float64
	for i, it := range cmd.Items {
		if it.ProductID == "" {
			return nil, badRequest("item %d: product is required", i)
		}
		if it.Quantity <= 0 {
			return nil, badRequest("item %d: quantity must be positive", i)
		}
		if it.Price < 0 {
			return nil, badRequest("item %d: price must not be negative", i)
		}
		line := types.RoundMoney(it.Price * float64(it.Quantity))
		if it.TotalPrice == 0 {
			it.TotalPrice = line
		} else if !types.AmountsEqual(it.TotalPrice, line) {
			return nil, badRequest("item %d: total_price %.2f does not equal price x quantity %.2f", i, it.TotalPrice, line)
		}
		items[i] = it
		subtotal += it.TotalPrice
	}
	subtotal = types.RoundMoney(subtotal)
	if cmd.Subtotal == 0 {
		cmd.Subtotal = subtotal
	} else if !types.AmountsEqual(cmd.Subtotal, subtotal) {
		return nil, badRequest("subtotal %.2f does not equal sum of items %.2f", cmd.Subtotal, subtotal)
	}
	total := types.RoundMoney(cmd.Subtotal + cmd.DeliveryFee + cmd.Tax)
	if cmd.TotalAmount == 0 {
		cmd.TotalAmount = total
	} else if !types.AmountsEqual(cmd.TotalAmount, total) {
		return nil, badRequest("total_amount %.2f does not equal subtotal + delivery_fee + tax %.2f", cmd.TotalAmount, total)
	}

	now := s.clock.Now()
	return &Order{
		ID:              s.ids.NewID(),
		CustomerID:      cmd.CustomerID,
		ShopID:          cmd.ShopID,
		Status:          StatusPending,
		Items:           items,
		Subtotal:        cmd.Subtotal,
		DeliveryFee:     cmd.DeliveryFee,
		Tax:             cmd.Tax,
		TotalAmount:     cmd.TotalAmount,
		DeliveryAddress: addr,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Notes:           cmd.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) error {
	var o *Order
	err := retryOnConflict(func() error {
		var (
			sh  *shop.Shop
			err error
		)
		o, sh, err = s.loadWithShop(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !sh.OwnedBy(cmd.ActorID) {
			return ErrNotShopOwner
		}
		if !CanTransition(o.Status, StatusAccepted) {
			return invalidTransition(o.Status, EventAccept)
		}
		t := s.newTransition(o, StatusAccepted, ActorShopkeeper, cmd.ActorID)
		return s.store.Transition(ctx, t)
	})
	if err != nil {
		return err
	}
	s.notify(ctx, o.CustomerID, "Order Accepted",
		"Your order #"+o.OrderNumber+" has been accepted by the shop",
		orderUpdate(o, StatusAccepted))
	return nil
}

func (s *Service) AssignRider(ctx context.Context, cmd AssignRiderCommand) error {
	if cmd.RiderID == "" {
		return badRequest("rider is required")
	}
	var (
		o *Order
		r *rider.Rider
	)
	err := retryOnConflict(func() error {
		var (
			sh  *shop.Shop
			err error
		)
		o, sh, err = s.loadWithShop(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		actorType := ActorSystem
		if !cmd.BySystem {
			if !sh.OwnedBy(cmd.ActorID) {
				return ErrNotShopOwner
			}
			actorType = ActorShopkeeper
		}
		if !CanTransition(o.Status, StatusAssigned) {
			return invalidTransition(o.Status, EventAssignRider)
		}
		r, err = s.getRider(ctx, cmd.RiderID)
		if err != nil {
			return err
		}
		if !r.Available() {
			return ErrRiderUnavailable
		}
		t := s.newTransition(o, StatusAssigned, actorType, cmd.ActorID)
		t.ClaimRider = &r.ID
		return s.store.Transition(ctx, t)
	})
	if err != nil {
		return err
	}
	data := notification.DeliveryData{OrderID: o.ID, OrderNumber: o.OrderNumber, RiderID: r.ID, Status: string(StatusAssigned)}
	s.notify(ctx, r.UserID, "New Delivery Assignment",
		"You have been assigned order #"+o.OrderNumber, data)
	s.notify(ctx, o.CustomerID, "Rider Assigned",
		"A rider has been assigned to your order #"+o.OrderNumber, data)
	return nil
}

// UpdateStatus drives the rider-side transitions and cancellation. Accepting
// and assigning go through Accept and AssignRider.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) error {
	if cmd.PaymentStatus != nil && !cmd.PaymentStatus.Valid() {
		return badRequest("unknown payment status %q", *cmd.PaymentStatus)
	}
	switch cmd.Status {
	case StatusOutForDelivery, StatusDelivered:
		return s.advanceDelivery(ctx, cmd)
	case StatusCancelled:
		return s.cancel(ctx, CancelCommand{OrderID: cmd.OrderID, Reason: cmd.Reason, ActorID: cmd.ActorID}, cmd.PaymentStatus)
	case StatusAccepted, StatusAssigned:
		return badRequest("status %s must be set through its dedicated operation", cmd.Status)
	default:
		return badRequest("unknown status %q", cmd.Status)
	}
}

func (s *Service) advanceDelivery(ctx context.Context, cmd UpdateStatusCommand) error {
	event := EventStartDelivery
	if cmd.Status == StatusDelivered {
		event = EventDeliver
	}
	var (
		o       *Order
		payment *PaymentChange
	)
	err := retryOnConflict(func() error {
		var err error
		o, err = s.get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, cmd.Status) {
			return invalidTransition(o.Status, event)
		}
		if o.RiderID == nil {
			return newKindError(ErrPreconditionFailed, "order %s has no assigned rider", o.ID)
		}
		actorType, actorID := ActorSystem, types.ID("")
		if cmd.ActorID != "" {
			r, err := s.getRider(ctx, *o.RiderID)
			if err != nil {
				return err
			}
			if r.UserID != cmd.ActorID {
				return ErrNotAssignedRider
			}
			actorType, actorID = ActorRider, cmd.ActorID
		}
		t := s.newTransition(o, cmd.Status, actorType, actorID)
		t.DeliveryTime = cmd.DeliveryTime
		if cmd.Status == StatusDelivered {
			t.ReleaseRider = o.RiderID
		}
		if payment, err = paymentChange(o, cmd.PaymentStatus); err != nil {
			return err
		}
		t.Payment = payment
		return s.store.Transition(ctx, t)
	})
	if err != nil {
		return err
	}

	if cmd.Status == StatusOutForDelivery {
		s.notify(ctx, o.CustomerID, "Out for Delivery",
			"Your order #"+o.OrderNumber+" is on the way",
			notification.DeliveryData{OrderID: o.ID, OrderNumber: o.OrderNumber, RiderID: *o.RiderID, Status: string(cmd.Status)})
	} else {
		s.notify(ctx, o.CustomerID, "Order Delivered",
			"Your order #"+o.OrderNumber+" has been delivered",
			notification.DeliveryData{OrderID: o.ID, OrderNumber: o.OrderNumber, RiderID: *o.RiderID, Status: string(cmd.Status)})
		if sh, err := s.getShop(ctx, o.ShopID); err == nil {
			s.notify(ctx, sh.OwnerID, "Order Delivered",
				"Order #"+o.OrderNumber+" has been delivered to the customer",
				orderUpdate(o, StatusDelivered))
		}
	}
	s.notifyPayment(ctx, o, payment)
	return nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	return s.cancel(ctx, cmd, nil)
}

func (s *Service) cancel(ctx context.Context, cmd CancelCommand, ps *PaymentStatus) error {
	var (
		o       *Order
		payment *PaymentChange
	)
	err := retryOnConflict(func() error {
		var err error
		o, err = s.get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		actorType := ActorSystem
		if cmd.ActorID != "" {
			if actorType, err = s.cancelActor(ctx, o, cmd.ActorID); err != nil {
				return err
			}
		}
		if o.Status == StatusDelivered {
			return ErrAlreadyDelivered
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return invalidTransition(o.Status, EventCancel)
		}
		t := s.newTransition(o, StatusCancelled, actorType, cmd.ActorID)
		if reason := strings.TrimSpace(cmd.Reason); reason != "" {
			notes := "Cancellation reason: " + reason
			if o.Notes != nil && *o.Notes != "" {
				notes = *o.Notes + "\n" + notes
			}
			t.Notes = &notes
		}
		if payment, err = paymentChange(o, ps); err != nil {
			return err
		}
		t.Payment = payment
		return s.store.Transition(ctx, t)
	})
	if err != nil {
		return err
	}

	msg := "Your order #" + o.OrderNumber + " has been cancelled"
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		msg += ". Reason: " + reason
	}
	s.notify(ctx, o.CustomerID, "Order Cancelled", msg, orderUpdate(o, StatusCancelled))
	s.notifyPayment(ctx, o, payment)
	return nil
}

func (s *Service) cancelActor(ctx context.Context, o *Order, actorID types.ID) (string, error) {
	if o.CustomerID == actorID {
		return ActorCustomer, nil
	}
	sh, err := s.getShop(ctx, o.ShopID)
	if err != nil {
		return "", err
	}
	if sh.OwnedBy(actorID) {
		return ActorShopkeeper, nil
	}
	return "", newKindError(ErrUnauthorized, "only the customer or the shop owner can cancel this order")
}

func (s *Service) UpdatePayment(ctx context.Context, cmd UpdatePaymentCommand) error {
	if !cmd.PaymentStatus.Valid() {
		return badRequest("unknown payment status %q", cmd.PaymentStatus)
	}
	var (
		o       *Order
		payment *PaymentChange
	)
	err := retryOnConflict(func() error {
		var err error
		o, err = s.get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if payment, err = paymentChange(o, &cmd.PaymentStatus); err != nil {
			return err
		}
		return s.store.Transition(ctx, Transition{
			OrderID: o.ID,
			From:    o.Status,
			To:      o.Status,
			Version: o.StatusVersion,
			Payment: payment,
			At:      s.clock.Now(),
		})
	})
	if err != nil {
		return err
	}
	s.notifyPayment(ctx, o, payment)
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.get(ctx, id)
}

// View returns the order if the actor is its customer, the shop owner or the
// assigned rider.
func (s *Service) View(ctx context.Context, id, actorID types.ID) (*Order, error) {
	o, sh, err := s.loadWithShop(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != "" && (o.CustomerID == actorID || sh.OwnedBy(actorID)) {
		return o, nil
	}
	if actorID != "" && o.RiderID != nil {
		r, err := s.getRider(ctx, *o.RiderID)
		if err != nil && !errors.Is(err, ErrRiderNotFound) {
			return nil, err
		}
		if r != nil && r.UserID == actorID {
			return o, nil
		}
	}
	return nil, ErrUnauthorized
}

func (s *Service) ListByUser(ctx context.Context, customerID types.ID, q ListQuery) ([]*Order, error) {
	if q.Status != nil && !q.Status.Valid() {
		return nil, badRequest("unknown status %q", *q.Status)
	}
	return s.store.ListByCustomer(ctx, customerID, q)
}

// ListByShop returns the shop's orders; the actor must own the shop.
func (s *Service) ListByShop(ctx context.Context, shopID, actorID types.ID, q ListQuery) ([]*Order, error) {
	if q.Status != nil && !q.Status.Valid() {
		return nil, badRequest("unknown status %q", *q.Status)
	}
	sh, err := s.getShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if !sh.OwnedBy(actorID) {
		return nil, ErrNotShopOwner
	}
	return s.store.ListByShop(ctx, shopID, q)
}

// CountActive is the shop's current kitchen load.
func (s *Service) CountActive(ctx context.Context, shopID types.ID) (int, error) {
	return s.store.CountActive(ctx, shopID)
}

func (s *Service) ListAwaitingRider(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	return s.store.ListAwaitingRider(ctx, before, limit)
}

func (s *Service) get(ctx context.Context, id types.ID) (*Order, error) {
	if id == "" {
		return nil, ErrOrderNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) loadWithShop(ctx context.Context, id types.ID) (*Order, *shop.Shop, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sh, err := s.getShop(ctx, o.ShopID)
	if err != nil {
		return nil, nil, err
	}
	return o, sh, nil
}

func (s *Service) getShop(ctx context.Context, id types.ID) (*shop.Shop, error) {
	sh, err := s.shops.GetShop(ctx, id)
	if errors.Is(err, shop.ErrNotFound) {
		return nil, ErrShopNotFound
	}
	return sh, err
}

func (s *Service) getRider(ctx context.Context, id types.ID) (*rider.Rider, error) {
	r, err := s.riders.GetRider(ctx, id)
	if errors.Is(err, rider.ErrNotFound) {
		return nil, ErrRiderNotFound
	}
	return r, err
}

func (s *Service) newTransition(o *Order, to Status, actorType string, actorID types.ID) Transition {
	now := s.clock.Now()
	return Transition{
		OrderID: o.ID,
		From:    o.Status,
		To:      to,
		Version: o.StatusVersion,
		At:      now,
		Event: &Event{
			OrderID:    o.ID,
			FromStatus: o.Status,
			ToStatus:   to,
			ActorType:  actorType,
			ActorID:    actorRef(actorID),
			CreatedAt:  now,
		},
	}
}

func paymentChange(o *Order, next *PaymentStatus) (*PaymentChange, error) {
	if next == nil {
		return nil, nil
	}
	if !CanTransitionPayment(o.PaymentStatus, *next) {
		return nil, invalidPaymentTransition(o.PaymentStatus, *next)
	}
	return &PaymentChange{From: o.PaymentStatus, To: *next}, nil
}

func (s *Service) notifyPayment(ctx context.Context, o *Order, p *PaymentChange) {
	if p == nil || p.To != PaymentPaid {
		return
	}
	s.notify(ctx, o.CustomerID, "Payment Successful",
		"Payment for order #"+o.OrderNumber+" has been received",
		notification.PaymentData{OrderID: o.ID, OrderNumber: o.OrderNumber, PaymentStatus: string(p.To), Amount: o.TotalAmount})
}

func (s *Service) notify(ctx context.Context, userID types.ID, title, message string, data notification.Data) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(ctx, notification.Notification{UserID: userID, Title: title, Message: message, Data: data})
}

func orderUpdate(o *Order, status Status) notification.OrderUpdateData {
	return notification.OrderUpdateData{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: string(status)}
}

// retryOnConflict re-runs fn when a concurrent writer won the CAS, so guards
// are evaluated again against the latest state.
func retryOnConflict(fn func() error) error {
	var err error
	for i := 0; i < maxConflictAttempts; i++ {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

func actorRef(id types.ID) *types.ID {
	if id == "" {
		return nil
	}
	return &id
}
