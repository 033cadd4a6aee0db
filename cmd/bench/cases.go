// README: Bench cases: environment, schema, the full delivery flow, consistency queries, races and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// orderID is the order driven through the delivery flow cases.
	orderID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: StatusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: StatusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.call(ctx, http.MethodGet, "/health", "", nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "API: unauthenticated -> 401", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.call(ctx, http.MethodPost, "/api/orders", "", r.orderBody(1))
			return expect(status, latency, err, http.StatusUnauthorized)
		}},

		// Delivery flow
		{Name: "Order: create", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.hasActors() {
				return Result{Status: StatusSkip, Note: "actor tokens not set"}
			}
			id, status, latency, err := r.createOrder(ctx)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if status != http.StatusCreated {
				return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			r.orderID = id
			return Result{Status: StatusPass, Latency: latency, Note: "order=" + id}
		}},
		r.actorCase("Order: create without items -> 400", http.MethodPost, "/api/orders", customer, map[string]any{"shop_id": r.cfg.ShopID}, http.StatusBadRequest),
		r.orderCase("Order: accept by customer -> 403", "/accept", customer, nil, http.StatusForbidden),
		r.orderCase("Order: accept by owner", "/accept", owner, nil, http.StatusOK),
		r.orderCase("Order: accept twice -> 409", "/accept", owner, nil, http.StatusConflict),
		r.orderCase("Order: assign rider", "/assign", owner, map[string]any{"rider_id": r.cfg.RiderID}, http.StatusOK),
		r.orderCase("Order: rider starts delivery", "/status", rider, map[string]any{"status": "out_for_delivery"}, http.StatusOK),
		r.orderCase("Order: rider delivers", "/status", rider, map[string]any{"status": "delivered", "payment_status": "paid"}, http.StatusOK),
		r.orderCase("Order: cancel delivered -> 412", "/cancel", customer, map[string]any{"reason": "late"}, http.StatusPreconditionFailed),

		// Data consistency
		{Name: "Consistency: events match transitions", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil || r.orderID == "" {
				return Result{Status: StatusSkip, Note: "needs db and a delivered order"}
			}
			var events, version int
			if err := r.db.QueryRow(ctx, `SELECT count(*) FROM order_state_events WHERE order_id=$1`, r.orderID).Scan(&events); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if err := r.db.QueryRow(ctx, `SELECT status_version FROM orders WHERE id=$1`, r.orderID).Scan(&version); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			// create + accept + assign + start + deliver
			if events != 5 {
				return Result{Status: StatusFail, Note: fmt.Sprintf("events=%d version=%d", events, version)}
			}
			return Result{Status: StatusPass, Note: fmt.Sprintf("events=%d version=%d", events, version)}
		}},
		{Name: "Consistency: rider released after delivery", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil || r.orderID == "" {
				return Result{Status: StatusSkip, Note: "needs db and a delivered order"}
			}
			var busy bool
			if err := r.db.QueryRow(ctx, `SELECT is_busy FROM riders WHERE id=$1`, r.cfg.RiderID).Scan(&busy); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if busy {
				return Result{Status: StatusFail, Note: "rider still busy"}
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Consistency: stock never negative", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: StatusSkip, Note: "db not configured"}
			}
			var bad int
			if err := r.db.QueryRow(ctx, `SELECT count(*) FROM products WHERE stock_quantity < 0 OR is_available <> (stock_quantity > 0)`).Scan(&bad); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if bad > 0 {
				return Result{Status: StatusFail, Note: fmt.Sprintf("inconsistent products=%d", bad)}
			}
			return Result{Status: StatusPass}
		}},

		// Concurrency
		{Name: "Concurrency: accept vs cancel", Run: acceptVsCancel},

		// Performance
		{Name: "Perf: rider location throughput", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.RiderToken == "" {
				return Result{Status: StatusSkip, Note: "rider token not set"}
			}
			return perfLoad(ctx, r, http.MethodPut, "/api/riders/"+r.cfg.RiderID+"/location", r.cfg.RiderToken,
				map[string]any{"lat": 12.9716, "lng": 77.5946, "is_online": true})
		}},
		{Name: "Perf: order placement throughput", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.CustomerToken == "" {
				return Result{Status: StatusSkip, Note: "customer token not set"}
			}
			return perfLoad(ctx, r, http.MethodPost, "/api/orders", r.cfg.CustomerToken, r.orderBody(1))
		}},
	}
}

type actor int

const (
	customer actor = iota
	owner
	rider
)

func (r *Runner) token(a actor) string {
	switch a {
	case owner:
		return r.cfg.OwnerToken
	case rider:
		return r.cfg.RiderToken
	default:
		return r.cfg.CustomerToken
	}
}

func (r *Runner) orderBody(qty int) map[string]any {
	return map[string]any{
		"shop_id":        r.cfg.ShopID,
		"items":          []map[string]any{{"product_id": r.cfg.ProductID, "name": "bench item", "price": 10, "quantity": qty}},
		"delivery_fee":   20,
		"payment_method": "cod",
		"delivery_address": map[string]any{
			"street": "1 Bench Street", "city": "Bengaluru", "pincode": "560001", "state": "KA",
			"coordinates": map[string]any{"lat": 12.98, "lng": 77.6},
		},
	}
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, time.Duration, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, time.Since(start), out, nil
}

func (r *Runner) createOrder(ctx context.Context) (string, int, time.Duration, error) {
	status, latency, body, err := r.call(ctx, http.MethodPost, "/api/orders", r.cfg.CustomerToken, r.orderBody(1))
	if err != nil {
		return "", 0, 0, err
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &created)
	return created.ID, status, latency, nil
}

func (r *Runner) actorCase(name, method, path string, a actor, body any, want int) TestCase {
	return TestCase{Name: name, Run: func(ctx context.Context, r *Runner) Result {
		if !r.cfg.hasActors() {
			return Result{Status: StatusSkip, Note: "actor tokens not set"}
		}
		status, latency, _, err := r.call(ctx, method, path, r.token(a), body)
		return expect(status, latency, err, want)
	}}
}

// orderCase posts to an action of the flow order created by "Order: create".
func (r *Runner) orderCase(name, action string, a actor, body any, want int) TestCase {
	return TestCase{Name: name, Run: func(ctx context.Context, r *Runner) Result {
		if r.orderID == "" {
			return Result{Status: StatusSkip, Note: "no flow order"}
		}
		status, latency, _, err := r.call(ctx, http.MethodPost, "/api/orders/"+r.orderID+action, r.token(a), body)
		return expect(status, latency, err, want)
	}}
}

func expect(status int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: StatusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: StatusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	return Result{Status: StatusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: StatusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

// acceptVsCancel races the owner's accept against the customer's cancel on
// a fresh order; exactly one may win.
func acceptVsCancel(ctx context.Context, r *Runner) Result {
	if !r.cfg.hasActors() {
		return Result{Status: StatusSkip, Note: "actor tokens not set"}
	}
	id, status, _, err := r.createOrder(ctx)
	if err != nil || status != http.StatusCreated {
		return Result{Status: StatusFail, Note: fmt.Sprintf("create: status=%d err=%v", status, err)}
	}

	var wins int32
	var wg sync.WaitGroup
	race := func(action string, a actor, body any) {
		defer wg.Done()
		status, _, _, err := r.call(ctx, http.MethodPost, "/api/orders/"+id+action, r.token(a), body)
		if err == nil && status == http.StatusOK {
			atomic.AddInt32(&wins, 1)
		}
	}
	wg.Add(2)
	go race("/accept", owner, nil)
	go race("/cancel", customer, map[string]any{"reason": "race"})
	wg.Wait()

	if wins != 1 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("winners=%d", wins)}
	}
	return Result{Status: StatusPass, Note: "winners=1"}
}

func perfLoad(ctx context.Context, r *Runner, method, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, method, path, token, payload)
				if err != nil || status >= 500 {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&count, 1)
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: StatusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
