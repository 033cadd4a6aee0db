// README: Order store backed by PostgreSQL; creation, stock decrement and every transition commit in one transaction.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hyperlocal/internal/types"
)

// Store persists orders. Implementations must apply Create and Transition atomically.
type Store interface {
	// Create decrements stock for every line item (clamped at zero) and inserts the order.
	Create(ctx context.Context, o *Order, e *Event) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	ListByCustomer(ctx context.Context, customerID types.ID, q ListQuery) ([]*Order, error)
	ListByShop(ctx context.Context, shopID types.ID, q ListQuery) ([]*Order, error)
	CountActive(ctx context.Context, shopID types.ID) (int, error)
	// ListAwaitingRider returns accepted orders last updated before the cutoff, oldest first.
	ListAwaitingRider(ctx context.Context, before time.Time, limit int) ([]*Order, error)
	Transition(ctx context.Context, t Transition) error
}

// Transition is a compare-and-set on (status, status_version) plus side effects.
// A status-preserving Transition (From == To) is used for payment-only updates.
type Transition struct {
	OrderID types.ID
	From    Status
	To      Status
	Version int

	// ClaimRider sets the order's rider and marks the rider busy; the rider
	// must be online and idle when the transaction commits.
	ClaimRider *types.ID
	// ReleaseRider clears the rider's busy flag and assignment.
	ReleaseRider *types.ID

	Notes        *string
	DeliveryTime *string
	Payment      *PaymentChange

	At    time.Time
	Event *Event
}

type PaymentChange struct {
	From PaymentStatus
	To   PaymentStatus
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, order_number, customer_id, shop_id, rider_id, status, status_version,
	items, subtotal, delivery_fee, tax, total_amount, delivery_address,
	payment_method, payment_status, delivery_time, notes, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, o *Order, e *Event) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	addr, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock products in a stable order so concurrent orders cannot deadlock.
	for _, line := range aggregateQuantities(o.Items) {
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock_quantity = GREATEST(stock_quantity - $1, 0),
			    is_available = (stock_quantity - $1) > 0
			WHERE id = $2 AND shop_id = $3`,
			line.qty, string(line.productID), string(o.ShopID),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrProductNotFound, line.productID)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		string(o.ID), o.OrderNumber, string(o.CustomerID), string(o.ShopID), idPtr(o.RiderID),
		string(o.Status), o.StatusVersion,
		items, o.Subtotal, o.DeliveryFee, o.Tax, o.TotalAmount, addr,
		o.PaymentMethod, string(o.PaymentStatus), o.DeliveryTime, o.Notes,
		o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key" {
			return ErrDuplicateOrderNumber
		}
		return err
	}
	if e != nil {
		if err := appendEvent(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID types.ID, q ListQuery) ([]*Order, error) {
	return s.list(ctx, "customer_id", customerID, q)
}

func (s *PostgresStore) ListByShop(ctx context.Context, shopID types.ID, q ListQuery) ([]*Order, error) {
	return s.list(ctx, "shop_id", shopID, q)
}

func (s *PostgresStore) list(ctx context.Context, column string, owner types.ID, q ListQuery) ([]*Order, error) {
	q = q.Normalized()
	var status *string
	if q.Status != nil {
		v := string(*q.Status)
		status = &v
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1 AND ($2::text IS NULL OR status = $2::text)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		string(owner), status, q.Limit, q.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PostgresStore) CountActive(ctx context.Context, shopID types.ID) (int, error) {
	active := make([]string, len(ActiveStatuses))
	for i, st := range ActiveStatuses {
		active[i] = string(st)
	}
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE shop_id = $1 AND status = ANY($2)`,
		string(shopID), active,
	).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListAwaitingRider(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND rider_id IS NULL AND updated_at <= $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		string(StatusAccepted), before.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PostgresStore) Transition(ctx context.Context, t Transition) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var payFrom, payTo *string
	if t.Payment != nil {
		from, to := string(t.Payment.From), string(t.Payment.To)
		payFrom, payTo = &from, &to
	}
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    rider_id = COALESCE($2, rider_id),
		    notes = COALESCE($3, notes),
		    delivery_time = COALESCE($4, delivery_time),
		    payment_status = COALESCE($5::text, payment_status),
		    updated_at = $6
		WHERE id = $7 AND status = $8 AND status_version = $9
		  AND ($10::text IS NULL OR payment_status = $10::text)`,
		string(t.To), idPtr(t.ClaimRider), t.Notes, t.DeliveryTime, payTo,
		t.At.UnixMilli(), string(t.OrderID), string(t.From), t.Version, payFrom,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}

	if t.ClaimRider != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE riders
			SET is_busy = TRUE, assigned_order_id = $1
			WHERE id = $2 AND is_online AND NOT is_busy`,
			string(t.OrderID), string(*t.ClaimRider),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrRiderUnavailable
		}
	}
	if t.ReleaseRider != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE riders
			SET is_busy = FALSE, assigned_order_id = NULL
			WHERE id = $1 AND assigned_order_id = $2`,
			string(*t.ReleaseRider), string(t.OrderID),
		); err != nil {
			return err
		}
	}
	if t.Event != nil {
		if err := appendEvent(ctx, tx, t.Event); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Events returns the state log of an order, oldest first.
func (s *PostgresStore) Events(ctx context.Context, orderID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
		FROM order_state_events
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &createdAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			id := types.ID(actorID.String)
			e.ActorID = &id
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt.UnixMilli(),
	)
	return err
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var riderID, deliveryTime, notes sql.NullString
	var items, addr []byte
	var createdAt, updatedAt int64
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.ShopID, &riderID, &o.Status, &o.StatusVersion,
		&items, &o.Subtotal, &o.DeliveryFee, &o.Tax, &o.TotalAmount, &addr,
		&o.PaymentMethod, &o.PaymentStatus, &deliveryTime, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(addr, &o.DeliveryAddress); err != nil {
		return nil, fmt.Errorf("decode delivery address: %w", err)
	}
	if riderID.Valid {
		id := types.ID(riderID.String)
		o.RiderID = &id
	}
	if deliveryTime.Valid {
		o.DeliveryTime = &deliveryTime.String
	}
	if notes.Valid {
		o.Notes = &notes.String
	}
	o.CreatedAt = time.UnixMilli(createdAt)
	o.UpdatedAt = time.UnixMilli(updatedAt)
	return &o, nil
}

type productQty struct {
	productID types.ID
	qty       int
}

// aggregateQuantities sums quantities per product, sorted by product id.
func aggregateQuantities(items []Item) []productQty {
	sum := make(map[types.ID]int, len(items))
	for _, it := range items {
		sum[it.ProductID] += it.Quantity
	}
	out := make([]productQty, 0, len(sum))
	for id, qty := range sum {
		out = append(out, productQty{productID: id, qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
