// README: In-memory implementation of the shop, rider and order stores; one lock gives the same atomicity as a database transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/modules/shop"
	"hyperlocal/internal/types"
)

type Store struct {
	mu       sync.Mutex
	shops    map[types.ID]shop.Shop
	products map[types.ID]shop.Product
	riders   map[types.ID]rider.Rider
	orders   map[types.ID]*order.Order
	numbers  map[string]types.ID
	events   []order.Event
}

func New() *Store {
	return &Store{
		shops:    make(map[types.ID]shop.Shop),
		products: make(map[types.ID]shop.Product),
		riders:   make(map[types.ID]rider.Rider),
		orders:   make(map[types.ID]*order.Order),
		numbers:  make(map[string]types.ID),
	}
}

func (s *Store) PutShop(sh shop.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.ID] = sh
}

func (s *Store) PutProduct(p shop.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.IsAvailable = p.StockQuantity > 0
	s.products[p.ID] = p
}

func (s *Store) PutRider(r rider.Rider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riders[r.ID] = copyRider(r)
}

func (s *Store) GetShop(_ context.Context, id types.ID) (*shop.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shops[id]
	if !ok {
		return nil, shop.ErrNotFound
	}
	return &sh, nil
}

func (s *Store) GetProduct(_ context.Context, id types.ID) (*shop.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, shop.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) GetRider(_ context.Context, id types.ID) (*rider.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riders[id]
	if !ok {
		return nil, rider.ErrNotFound
	}
	r = copyRider(r)
	return &r, nil
}

func (s *Store) GetRiders(_ context.Context, ids []types.ID) ([]*rider.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*rider.Rider, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.riders[id]; ok {
			r = copyRider(r)
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *Store) ListOnline(_ context.Context) ([]*rider.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*rider.Rider
	for _, r := range s.riders {
		if r.IsOnline {
			r = copyRider(r)
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateLocation(_ context.Context, id types.ID, pos types.Point, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riders[id]
	if !ok {
		return rider.ErrNotFound
	}
	r.Location = pos
	r.IsOnline = online
	r.UpdatedAt = at
	s.riders[id] = r
	return nil
}

func (s *Store) Create(_ context.Context, o *order.Order, e *order.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.numbers[o.OrderNumber]; taken {
		return order.ErrDuplicateOrderNumber
	}
	// Validate every line before touching stock so a failure leaves no trace.
	next := make(map[types.ID]shop.Product)
	for _, it := range o.Items {
		p, ok := next[it.ProductID]
		if !ok {
			p, ok = s.products[it.ProductID]
			if !ok || p.ShopID != o.ShopID {
				return fmt.Errorf("%w: %s", order.ErrProductNotFound, it.ProductID)
			}
		}
		p.DecrementStock(it.Quantity)
		next[it.ProductID] = p
	}
	for id, p := range next {
		s.products[id] = p
	}
	s.orders[o.ID] = copyOrder(o)
	s.numbers[o.OrderNumber] = o.ID
	if e != nil {
		s.appendEvent(*e)
	}
	return nil
}

func (s *Store) Get(_ context.Context, id types.ID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) ListByCustomer(_ context.Context, customerID types.ID, q order.ListQuery) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.CustomerID == customerID }, q), nil
}

func (s *Store) ListByShop(_ context.Context, shopID types.ID, q order.ListQuery) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.ShopID == shopID }, q), nil
}

func (s *Store) list(match func(*order.Order) bool, q order.ListQuery) []*order.Order {
	q = q.Normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*order.Order
	for _, o := range s.orders {
		if !match(o) || (q.Status != nil && o.Status != *q.Status) {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if q.Offset >= len(all) {
		return nil
	}
	all = all[q.Offset:]
	if len(all) > q.Limit {
		all = all[:q.Limit]
	}
	out := make([]*order.Order, len(all))
	for i, o := range all {
		out[i] = copyOrder(o)
	}
	return out
}

func (s *Store) CountActive(_ context.Context, shopID types.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.orders {
		if o.ShopID != shopID {
			continue
		}
		for _, st := range order.ActiveStatuses {
			if o.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *Store) ListAwaitingRider(_ context.Context, before time.Time, limit int) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if o.Status == order.StatusAccepted && o.RiderID == nil && !o.UpdatedAt.After(before) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Transition(_ context.Context, t order.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[t.OrderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != t.From || o.StatusVersion != t.Version {
		return order.ErrConflict
	}
	if t.Payment != nil && o.PaymentStatus != t.Payment.From {
		return order.ErrConflict
	}

	var claimed rider.Rider
	if t.ClaimRider != nil {
		r, ok := s.riders[*t.ClaimRider]
		if !ok || !r.IsOnline || r.IsBusy {
			return order.ErrRiderUnavailable
		}
		claimed = r
	}

	// All guards hold; apply.
	if t.ClaimRider != nil {
		orderID := o.ID
		claimed.IsBusy = true
		claimed.AssignedOrderID = &orderID
		s.riders[claimed.ID] = claimed
		riderID := *t.ClaimRider
		o.RiderID = &riderID
	}
	if t.ReleaseRider != nil {
		if r, ok := s.riders[*t.ReleaseRider]; ok && r.AssignedOrderID != nil && *r.AssignedOrderID == o.ID {
			r.IsBusy = false
			r.AssignedOrderID = nil
			s.riders[r.ID] = r
		}
	}
	o.Status = t.To
	o.StatusVersion++
	if t.Notes != nil {
		notes := *t.Notes
		o.Notes = &notes
	}
	if t.DeliveryTime != nil {
		dt := *t.DeliveryTime
		o.DeliveryTime = &dt
	}
	if t.Payment != nil {
		o.PaymentStatus = t.Payment.To
	}
	o.UpdatedAt = t.At
	if t.Event != nil {
		s.appendEvent(*t.Event)
	}
	return nil
}

// Events returns the state log of an order, oldest first.
func (s *Store) Events(_ context.Context, orderID types.ID) ([]order.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Event
	for _, e := range s.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) appendEvent(e order.Event) {
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, e)
}

func copyOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	if o.RiderID != nil {
		id := *o.RiderID
		c.RiderID = &id
	}
	if o.Notes != nil {
		n := *o.Notes
		c.Notes = &n
	}
	if o.DeliveryTime != nil {
		dt := *o.DeliveryTime
		c.DeliveryTime = &dt
	}
	if o.DeliveryAddress.Coordinates != nil {
		p := *o.DeliveryAddress.Coordinates
		c.DeliveryAddress.Coordinates = &p
	}
	return &c
}

func copyRider(r rider.Rider) rider.Rider {
	if r.AssignedOrderID != nil {
		id := *r.AssignedOrderID
		r.AssignedOrderID = &id
	}
	return r
}
