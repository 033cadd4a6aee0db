// README: Order service tests against the in-memory store (flows, guards, stock, notifications, races).
package order_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"hyperlocal/internal/modules/notification"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/modules/shop"
	"hyperlocal/internal/store/memory"
	"hyperlocal/internal/types"
)

const (
	ownerID    types.ID = "owner-1"
	customerID types.ID = "customer-1"
	shopID     types.ID = "shop-1"
	riderAID   types.ID = "rider-a"
	riderAUser types.ID = "rider-user-a"
	riderBID   types.ID = "rider-b"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu      sync.Mutex
	n       int
	numbers []string
}

func (g *seqIDs) NewID() types.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return types.ID(fmt.Sprintf("order-%d", g.n))
}

func (g *seqIDs) NewOrderNumber(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.numbers) > 0 {
		n := g.numbers[0]
		g.numbers = g.numbers[1:]
		return n
	}
	g.n++
	return fmt.Sprintf("ORD%d%05d", at.UnixMilli(), g.n)
}

type capture struct {
	mu  sync.Mutex
	got []notification.Notification
}

func (c *capture) Notify(_ context.Context, n notification.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
}

func (c *capture) forUser(id types.ID) []notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notification.Notification
	for _, n := range c.got {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	store *memory.Store
	svc   *order.Service
	note  *capture
	ids   *seqIDs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.PutShop(shop.Shop{
		ID:       shopID,
		OwnerID:  ownerID,
		Name:     "Corner Store",
		Location: types.Point{Lat: 12.9716, Lng: 77.5946},
		Profile:  shop.DeliveryProfile{}.WithDefaults(),
	})
	st.PutProduct(shop.Product{ID: "p1", ShopID: shopID, Name: "Milk", Price: 30, StockQuantity: 10})
	st.PutProduct(shop.Product{ID: "p2", ShopID: shopID, Name: "Bread", Price: 45, StockQuantity: 1})
	st.PutRider(rider.Rider{ID: riderAID, UserID: riderAUser, IsOnline: true, Location: types.Point{Lat: 12.975, Lng: 77.6}})
	st.PutRider(rider.Rider{ID: riderBID, UserID: "rider-user-b", IsOnline: true, Location: types.Point{Lat: 12.98, Lng: 77.6}})

	note := &capture{}
	ids := &seqIDs{}
	clock := &stepClock{now: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)}
	svc := order.NewService(st, st, st, note, order.WithClock(clock), order.WithIDGenerator(ids))
	return &fixture{store: st, svc: svc, note: note, ids: ids}
}

func (f *fixture) createCommand(items ...order.Item) order.CreateCommand {
	if len(items) == 0 {
		items = []order.Item{{ProductID: "p1", Name: "Milk", Price: 30, Quantity: 2}}
	}
	return order.CreateCommand{
		CustomerID:      customerID,
		ShopID:          shopID,
		Items:           items,
		DeliveryFee:     20,
		Tax:             3,
		DeliveryAddress: order.Address{Street: "12 MG Road", City: "Bengaluru", Pincode: "560001", State: "KA"},
		PaymentMethod:   "upi",
	}
}

func mustCreate(t *testing.T, f *fixture) types.ID {
	t.Helper()
	id, err := f.svc.Create(context.Background(), f.createCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return id
}

func mustAccept(t *testing.T, f *fixture, id types.ID) {
	t.Helper()
	if err := f.svc.Accept(context.Background(), order.AcceptCommand{OrderID: id, ActorID: ownerID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func mustAssign(t *testing.T, f *fixture, id, riderID types.ID) {
	t.Helper()
	if err := f.svc.AssignRider(context.Background(), order.AssignRiderCommand{OrderID: id, RiderID: riderID, ActorID: ownerID}); err != nil {
		t.Fatalf("assign rider: %v", err)
	}
}

func assertStatus(t *testing.T, f *fixture, id types.ID, want order.Status) *order.Order {
	t.Helper()
	o, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != want {
		t.Fatalf("expected status %s, got %s", want, o.Status)
	}
	return o
}

func stock(t *testing.T, f *fixture, productID types.ID) *shop.Product {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p
}

func TestCreateOrderDecrementsStockAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Create(ctx, f.createCommand(
		order.Item{ProductID: "p1", Name: "Milk", Price: 30, Quantity: 2},
		order.Item{ProductID: "p2", Name: "Bread", Price: 45, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	o := assertStatus(t, f, id, order.StatusPending)
	if o.PaymentStatus != order.PaymentPending {
		t.Fatalf("expected payment pending, got %s", o.PaymentStatus)
	}
	if o.Subtotal != 105 || o.TotalAmount != 128 {
		t.Fatalf("unexpected totals: subtotal %.2f total %.2f", o.Subtotal, o.TotalAmount)
	}
	if o.Items[0].TotalPrice != 60 {
		t.Fatalf("line total not computed: %.2f", o.Items[0].TotalPrice)
	}
	if !strings.HasPrefix(o.OrderNumber, "ORD") {
		t.Fatalf("unexpected order number %q", o.OrderNumber)
	}

	if p := stock(t, f, "p1"); p.StockQuantity != 8 || !p.IsAvailable {
		t.Fatalf("p1 stock = %d available=%v", p.StockQuantity, p.IsAvailable)
	}
	if p := stock(t, f, "p2"); p.StockQuantity != 0 || p.IsAvailable {
		t.Fatalf("p2 stock = %d available=%v", p.StockQuantity, p.IsAvailable)
	}

	if n := f.note.forUser(customerID); len(n) != 1 || n[0].Type() != notification.TypeOrderUpdate {
		t.Fatalf("expected one order_update for customer, got %+v", n)
	}
	if n := f.note.forUser(ownerID); len(n) != 1 || n[0].Title != "New Order Received" {
		t.Fatalf("expected new-order notification for owner, got %+v", n)
	}

	events, _ := f.store.Events(ctx, id)
	if len(events) != 1 || events[0].FromStatus != order.StatusNone || events[0].ToStatus != order.StatusPending {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCreateOrderClampsStockAtZero(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.createCommand(
		order.Item{ProductID: "p2", Name: "Bread", Price: 45, Quantity: 3},
	))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p := stock(t, f, "p2"); p.StockQuantity != 0 || p.IsAvailable {
		t.Fatalf("expected clamped stock 0 unavailable, got %d %v", p.StockQuantity, p.IsAvailable)
	}
}

func TestCreateOrderMissingProductLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.createCommand(
		order.Item{ProductID: "p1", Name: "Milk", Price: 30, Quantity: 2},
		order.Item{ProductID: "ghost", Name: "Ghost", Price: 1, Quantity: 1},
	))
	if !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if p := stock(t, f, "p1"); p.StockQuantity != 10 {
		t.Fatalf("stock changed on failed create: %d", p.StockQuantity)
	}
	if len(f.note.forUser(customerID)) != 0 {
		t.Fatal("failed create must not notify")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		mutate func(*order.CreateCommand)
		kind   error
	}{
		{"no items", func(c *order.CreateCommand) { c.Items = nil }, order.ErrBadRequest},
		{"zero quantity", func(c *order.CreateCommand) { c.Items[0].Quantity = 0 }, order.ErrBadRequest},
		{"line total mismatch", func(c *order.CreateCommand) { c.Items[0].TotalPrice = 1 }, order.ErrBadRequest},
		{"subtotal mismatch", func(c *order.CreateCommand) { c.Subtotal = 99 }, order.ErrBadRequest},
		{"total mismatch", func(c *order.CreateCommand) { c.TotalAmount = 1000 }, order.ErrBadRequest},
		{"missing address", func(c *order.CreateCommand) { c.DeliveryAddress.Street = "" }, order.ErrBadRequest},
		{"missing payment method", func(c *order.CreateCommand) { c.PaymentMethod = " " }, order.ErrBadRequest},
		{"unknown shop", func(c *order.CreateCommand) { c.ShopID = "nope" }, order.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := f.createCommand()
			tc.mutate(&cmd)
			if _, err := f.svc.Create(context.Background(), cmd); !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestCreateOrderRetriesDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	f.ids.numbers = []string{"ORDDUP", "ORDDUP", "ORDFRESH"}

	first := mustCreate(t, f)
	second := mustCreate(t, f)

	a, _ := f.svc.Get(context.Background(), first)
	b, _ := f.svc.Get(context.Background(), second)
	if a.OrderNumber != "ORDDUP" || b.OrderNumber != "ORDFRESH" {
		t.Fatalf("unexpected order numbers %q %q", a.OrderNumber, b.OrderNumber)
	}
}

func TestOrderFlowHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	mustAccept(t, f, id)
	assertStatus(t, f, id, order.StatusAccepted)

	mustAssign(t, f, id, riderAID)
	o := assertStatus(t, f, id, order.StatusAssigned)
	if o.RiderID == nil || *o.RiderID != riderAID {
		t.Fatalf("expected rider %s, got %v", riderAID, o.RiderID)
	}
	r, _ := f.store.GetRider(ctx, riderAID)
	if !r.IsBusy || r.AssignedOrderID == nil || *r.AssignedOrderID != id {
		t.Fatalf("rider not claimed: %+v", r)
	}
	if n := f.note.forUser(riderAUser); len(n) != 1 || n[0].Type() != notification.TypeDelivery {
		t.Fatalf("expected delivery notification for rider, got %+v", n)
	}

	if err := f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: order.StatusOutForDelivery, ActorID: riderAUser}); err != nil {
		t.Fatalf("out for delivery: %v", err)
	}
	assertStatus(t, f, id, order.StatusOutForDelivery)

	deliveredAt := "2026-10-16T10:42:00Z"
	paid := order.PaymentPaid
	if err := f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{
		OrderID:       id,
		Status:        order.StatusDelivered,
		DeliveryTime:  &deliveredAt,
		PaymentStatus: &paid,
		ActorID:       riderAUser,
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	o = assertStatus(t, f, id, order.StatusDelivered)
	if o.DeliveryTime == nil || *o.DeliveryTime != deliveredAt {
		t.Fatalf("delivery time not stored: %v", o.DeliveryTime)
	}
	if o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("expected paid, got %s", o.PaymentStatus)
	}
	r, _ = f.store.GetRider(ctx, riderAID)
	if r.IsBusy || r.AssignedOrderID != nil {
		t.Fatalf("rider not released after delivery: %+v", r)
	}

	var payments int
	for _, n := range f.note.forUser(customerID) {
		if n.Type() == notification.TypePayment {
			payments++
		}
	}
	if payments != 1 {
		t.Fatalf("expected one payment notification, got %d", payments)
	}

	events, _ := f.store.Events(ctx, id)
	want := []order.Status{order.StatusPending, order.StatusAccepted, order.StatusAssigned, order.StatusOutForDelivery, order.StatusDelivered}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.ToStatus != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], e.ToStatus)
		}
	}
	if events[1].ActorType != order.ActorShopkeeper || events[3].ActorType != order.ActorRider {
		t.Fatalf("unexpected actors: %s %s", events[1].ActorType, events[3].ActorType)
	}
}

func TestAcceptGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	err := f.svc.Accept(ctx, order.AcceptCommand{OrderID: id, ActorID: "someone-else"})
	if !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	assertStatus(t, f, id, order.StatusPending)

	mustAccept(t, f, id)
	err = f.svc.Accept(ctx, order.AcceptCommand{OrderID: id, ActorID: ownerID})
	if !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if !strings.Contains(err.Error(), string(order.StatusAccepted)) {
		t.Fatalf("error should name current status: %v", err)
	}

	if err := f.svc.Accept(ctx, order.AcceptCommand{OrderID: "missing", ActorID: ownerID}); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignRiderGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	err := f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: riderAID, ActorID: ownerID})
	if !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("assign before accept: expected invalid transition, got %v", err)
	}

	mustAccept(t, f, id)

	err = f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: riderAID, ActorID: customerID})
	if !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	err = f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: "ghost", ActorID: ownerID})
	if !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected rider not found, got %v", err)
	}

	f.store.PutRider(rider.Rider{ID: "offline", UserID: "u-off", IsOnline: false})
	err = f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: "offline", ActorID: ownerID})
	if !errors.Is(err, order.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed for offline rider, got %v", err)
	}

	busy := types.ID("other-order")
	f.store.PutRider(rider.Rider{ID: "busy", UserID: "u-busy", IsOnline: true, IsBusy: true, AssignedOrderID: &busy})
	err = f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: "busy", ActorID: ownerID})
	if !errors.Is(err, order.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed for busy rider, got %v", err)
	}
	assertStatus(t, f, id, order.StatusAccepted)

	if err := f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: riderBID, BySystem: true}); err != nil {
		t.Fatalf("system assign: %v", err)
	}
	events, _ := f.store.Events(ctx, id)
	if last := events[len(events)-1]; last.ActorType != order.ActorSystem || last.ActorID != nil {
		t.Fatalf("expected system actor, got %+v", last)
	}
}

func TestUpdateStatusGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	err := f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: order.StatusAccepted})
	if !errors.Is(err, order.ErrBadRequest) {
		t.Fatalf("expected bad request for accepted via status update, got %v", err)
	}
	err = f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: "teleported"})
	if !errors.Is(err, order.ErrBadRequest) {
		t.Fatalf("expected bad request for unknown status, got %v", err)
	}
	err = f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: order.StatusDelivered})
	if !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	mustAccept(t, f, id)
	mustAssign(t, f, id, riderAID)

	err = f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: order.StatusOutForDelivery, ActorID: "rider-user-b"})
	if !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for foreign rider, got %v", err)
	}
	err = f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: order.StatusDelivered})
	if !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition when skipping out_for_delivery, got %v", err)
	}
	assertStatus(t, f, id, order.StatusAssigned)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("pending with reason", func(t *testing.T) {
		id := mustCreate(t, f)
		if err := f.svc.Cancel(ctx, order.CancelCommand{OrderID: id, Reason: "changed my mind", ActorID: customerID}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		o := assertStatus(t, f, id, order.StatusCancelled)
		if o.Notes == nil || *o.Notes != "Cancellation reason: changed my mind" {
			t.Fatalf("unexpected notes %v", o.Notes)
		}
		// No restock on cancellation.
		if p := stock(t, f, "p1"); p.StockQuantity != 8 {
			t.Fatalf("expected stock to stay decremented, got %d", p.StockQuantity)
		}
	})

	t.Run("accepted keeps existing notes", func(t *testing.T) {
		cmd := f.createCommand()
		notes := "ring the bell"
		cmd.Notes = &notes
		id, err := f.svc.Create(ctx, cmd)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		mustAccept(t, f, id)
		if err := f.svc.Cancel(ctx, order.CancelCommand{OrderID: id, Reason: "out of stock", ActorID: ownerID}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		o := assertStatus(t, f, id, order.StatusCancelled)
		if *o.Notes != "ring the bell\nCancellation reason: out of stock" {
			t.Fatalf("unexpected notes %q", *o.Notes)
		}
	})

	t.Run("assigned is invalid", func(t *testing.T) {
		id := mustCreate(t, f)
		mustAccept(t, f, id)
		mustAssign(t, f, id, riderBID)
		err := f.svc.Cancel(ctx, order.CancelCommand{OrderID: id})
		if !errors.Is(err, order.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if !strings.Contains(err.Error(), string(order.StatusAssigned)) {
			t.Fatalf("error should name current status: %v", err)
		}
	})

	t.Run("delivered is precondition failed", func(t *testing.T) {
		f := newFixture(t)
		id := mustCreate(t, f)
		mustAccept(t, f, id)
		mustAssign(t, f, id, riderAID)
		for _, st := range []order.Status{order.StatusOutForDelivery, order.StatusDelivered} {
			if err := f.svc.UpdateStatus(ctx, order.UpdateStatusCommand{OrderID: id, Status: st}); err != nil {
				t.Fatalf("update to %s: %v", st, err)
			}
		}
		err := f.svc.Cancel(ctx, order.CancelCommand{OrderID: id, Reason: "late"})
		if !errors.Is(err, order.ErrPreconditionFailed) {
			t.Fatalf("expected precondition failed, got %v", err)
		}
		o := assertStatus(t, f, id, order.StatusDelivered)
		if o.Notes != nil {
			t.Fatalf("notes must be untouched, got %q", *o.Notes)
		}
	})

	t.Run("stranger is unauthorized", func(t *testing.T) {
		id := mustCreate(t, f)
		err := f.svc.Cancel(ctx, order.CancelCommand{OrderID: id, ActorID: "stranger"})
		if !errors.Is(err, order.ErrUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
		assertStatus(t, f, id, order.StatusPending)
	})
}

func TestUpdatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	if err := f.svc.UpdatePayment(ctx, order.UpdatePaymentCommand{OrderID: id, PaymentStatus: order.PaymentPaid}); err != nil {
		t.Fatalf("update payment: %v", err)
	}
	o := assertStatus(t, f, id, order.StatusPending)
	if o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("expected paid, got %s", o.PaymentStatus)
	}

	var payment *notification.Notification
	for _, n := range f.note.forUser(customerID) {
		if n.Type() == notification.TypePayment {
			n := n
			payment = &n
		}
	}
	if payment == nil {
		t.Fatal("expected payment notification")
	}
	if data, ok := payment.Data.(notification.PaymentData); !ok || data.Amount != o.TotalAmount {
		t.Fatalf("unexpected payment data %+v", payment.Data)
	}

	err := f.svc.UpdatePayment(ctx, order.UpdatePaymentCommand{OrderID: id, PaymentStatus: order.PaymentFailed})
	if !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from paid, got %v", err)
	}
	err = f.svc.UpdatePayment(ctx, order.UpdatePaymentCommand{OrderID: id, PaymentStatus: "bitcoin"})
	if !errors.Is(err, order.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}

	// Failed payments do not notify.
	id2 := mustCreate(t, f)
	before := len(f.note.forUser(customerID))
	if err := f.svc.UpdatePayment(ctx, order.UpdatePaymentCommand{OrderID: id2, PaymentStatus: order.PaymentFailed}); err != nil {
		t.Fatalf("update payment: %v", err)
	}
	if after := len(f.note.forUser(customerID)); after != before {
		t.Fatalf("failed payment should not notify, got %d new", after-before)
	}
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []types.ID
	for i := 0; i < 3; i++ {
		ids = append(ids, mustCreate(t, f))
	}
	mustAccept(t, f, ids[0])

	all, err := f.svc.ListByUser(ctx, customerID, order.ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] {
		t.Fatalf("expected newest first, got %d orders starting with %v", len(all), all[0].ID)
	}

	pending := order.StatusPending
	filtered, _ := f.svc.ListByUser(ctx, customerID, order.ListQuery{Status: &pending})
	if len(filtered) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(filtered))
	}

	page, _ := f.svc.ListByUser(ctx, customerID, order.ListQuery{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Fatalf("unexpected page %+v", page)
	}

	shopOrders, err := f.svc.ListByShop(ctx, shopID, ownerID, order.ListQuery{})
	if err != nil || len(shopOrders) != 3 {
		t.Fatalf("list by shop: %d %v", len(shopOrders), err)
	}
	if _, err := f.svc.ListByShop(ctx, shopID, customerID, order.ListQuery{}); !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	active, _ := f.svc.CountActive(ctx, shopID)
	if active != 3 {
		t.Fatalf("expected 3 active, got %d", active)
	}
}

func TestViewOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	for _, actor := range []types.ID{customerID, ownerID} {
		if _, err := f.svc.View(ctx, id, actor); err != nil {
			t.Fatalf("view as %s: %v", actor, err)
		}
	}
	if _, err := f.svc.View(ctx, id, riderAUser); !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized before assignment, got %v", err)
	}

	mustAccept(t, f, id)
	mustAssign(t, f, id, riderAID)
	if _, err := f.svc.View(ctx, id, riderAUser); err != nil {
		t.Fatalf("view as assigned rider: %v", err)
	}
	if _, err := f.svc.View(ctx, id, "stranger"); !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.svc.View(ctx, "missing", customerID); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Two orders race for the same rider: exactly one wins.
func TestConcurrentAssignSameRider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := mustCreate(t, f)
	second := mustCreate(t, f)
	mustAccept(t, f, first)
	mustAccept(t, f, second)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []types.ID{first, second} {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			errs <- f.svc.AssignRider(ctx, order.AssignRiderCommand{OrderID: id, RiderID: riderAID, ActorID: ownerID})
		}(id)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, order.ErrPreconditionFailed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}

	r, _ := f.store.GetRider(ctx, riderAID)
	winner, _ := f.svc.Get(ctx, *r.AssignedOrderID)
	if winner.Status != order.StatusAssigned || *winner.RiderID != riderAID {
		t.Fatalf("winner not consistent: %+v", winner)
	}
	loser := first
	if winner.ID == first {
		loser = second
	}
	assertStatus(t, f, loser, order.StatusAccepted)
}

// Concurrent orders never drive stock negative.
func TestConcurrentCreateClampsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 15
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, f.createCommand(order.Item{ProductID: "p1", Name: "Milk", Price: 30, Quantity: 1}))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if p := stock(t, f, "p1"); p.StockQuantity != 0 || p.IsAvailable {
		t.Fatalf("expected stock clamped to 0, got %d available=%v", p.StockQuantity, p.IsAvailable)
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := mustCreate(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- f.svc.Accept(ctx, order.AcceptCommand{OrderID: id, ActorID: ownerID})
	}()
	go func() {
		defer wg.Done()
		errs <- f.svc.Cancel(ctx, order.CancelCommand{OrderID: id, ActorID: customerID, Reason: "user_cancel"})
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, order.ErrInvalidTransition) && !errors.Is(err, order.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	o, _ := f.svc.Get(ctx, id)
	switch success {
	case 2:
		if o.Status != order.StatusCancelled {
			t.Fatalf("expected cancelled after accept+cancel, got %s", o.Status)
		}
	case 1:
		if o.Status != order.StatusCancelled && o.Status != order.StatusAccepted {
			t.Fatalf("unexpected final status %s", o.Status)
		}
	default:
		t.Fatalf("expected at least one success, got %d", success)
	}
}
