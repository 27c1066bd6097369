// README: Benchmark cases: environment checks, API reachability, single-winner claim races and claim throughput.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"potluck/internal/infra"
	"potluck/internal/modules/matching"
	"potluck/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var requiredTables = []string{
	"users", "dishes", "orders", "order_status_history", "order_number_counters",
	"service_areas", "earnings", "reviews", "notifications", "ai_usage",
}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	// run prefixes every seeded id so concurrent runs and real data never collide.
	run string
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
		run:   "bench-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
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
		r.cleanup(context.Background())
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: pingDB},
		{Name: "Env: Redis connect", Run: pingRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.httpStatus(ctx, r.cfg.BaseURL+"/health", http.StatusOK)
		}},
		{Name: "API: metrics", Run: func(ctx context.Context, r *Runner) Result {
			return r.httpStatus(ctx, r.cfg.BaseURL+"/metrics", http.StatusOK)
		}},
		{Name: "API: unauthenticated request rejected", Run: func(ctx context.Context, r *Runner) Result {
			return r.httpStatus(ctx, r.cfg.BaseURL+"/api/orders", http.StatusUnauthorized)
		}},
		{Name: "Concurrency: many agents claim one order", Run: claimRace},
		{Name: "Perf: claim throughput", Run: claimThroughput},
	}
}

func pingDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusFail, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(_ context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if err := infra.Migrate(r.cfg.DSN, nil); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	var missing []string
	for _, t := range requiredTables {
		var exists bool
		err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+t).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return Result{Status: statusFail, Note: "missing: " + strings.Join(missing, ", ")}
	}
	return Result{Status: statusPass}
}

func (r *Runner) httpStatus(ctx context.Context, url string, want int) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: statusSkip, Note: "server unreachable: " + err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	res := Result{Latency: time.Since(start)}
	if resp.StatusCode != want {
		res.Status = statusFail
		res.Note = fmt.Sprintf("status=%d want=%d", resp.StatusCode, want)
		return res
	}
	res.Status = statusPass
	return res
}

func (r *Runner) id(parts ...any) string {
	return r.run + "-" + strings.Trim(strings.ReplaceAll(fmt.Sprint(parts...), " ", "-"), "-")
}

// seed creates a chef, a consumer and n agents for this run.
func (r *Runner) seed(ctx context.Context, agents int) error {
	users := [][2]string{{r.id("chef"), "chef"}, {r.id("consumer"), "consumer"}}
	for i := 0; i < agents; i++ {
		users = append(users, [2]string{r.id("agent", i), "delivery"})
	}
	for _, u := range users {
		_, err := r.db.Exec(ctx, `
			INSERT INTO users (id, user_type, full_name, zip_code, latitude, longitude)
			VALUES ($1, $2, $1, '75201', 32.78, -96.80)
			ON CONFLICT (id) DO NOTHING`, u[0], u[1])
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u[0], err)
		}
	}
	return nil
}

func (r *Runner) seedOrder(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, consumer_id, chef_id, items,
			subtotal_cents, delivery_fee_cents, platform_fee_cents, tax_cents, total_cents,
			payment_method, delivery_type, delivery_address, delivery_zip,
			delivery_latitude, delivery_longitude, order_status, order_placed_at
		) VALUES (
			$1, $1, $2, $3, '[]',
			2598, 399, 130, 260, 3387,
			'card', 'delivery', '1 Main St', '75201',
			32.7767, -96.797, 'ready', NOW()
		)`, id, r.id("consumer"), r.id("chef"))
	if err != nil {
		return fmt.Errorf("seed order %s: %w", id, err)
	}
	return nil
}

func claimRace(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	if err := r.seed(ctx, r.cfg.Concurrency); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	orderID := r.id("race")
	if err := r.seedOrder(ctx, orderID); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}

	store := matching.NewStore(r.db)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		lost     int
		failures []string
	)
	begin := make(chan struct{})
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(agent types.ID) {
			defer wg.Done()
			<-begin
			_, err := store.Claim(ctx, types.ID(orderID), agent, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, matching.ErrAlreadyAssigned):
				lost++
			default:
				failures = append(failures, err.Error())
			}
		}(types.ID(r.id("agent", i)))
	}
	close(begin)
	wg.Wait()

	var fees int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM earnings WHERE order_id = $1 AND type = 'delivery_fee'`, orderID).Scan(&fees)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	res := Result{Latency: time.Since(start), Note: fmt.Sprintf("won=%d lost=%d fee_rows=%d", won, lost, fees)}
	if won != 1 || fees != 1 || len(failures) > 0 {
		res.Status = statusFail
		if len(failures) > 0 {
			res.Note += " first_error=" + failures[0]
		}
		return res
	}
	res.Status = statusPass
	return res
}

// claimThroughput claims r.cfg.Orders distinct orders, two agents per order.
func claimThroughput(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	if err := r.seed(ctx, r.cfg.Concurrency); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	ids := make([]string, r.cfg.Orders)
	for i := range ids {
		ids[i] = r.id("perf", i)
		if err := r.seedOrder(ctx, ids[i]); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}

	store := matching.NewStore(r.db)
	jobs := make(chan int)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    int
		errCnt int
	)
	start := time.Now()
	for w := 0; w < r.cfg.Concurrency; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range jobs {
				agent := types.ID(r.id("agent", (i+w)%r.cfg.Concurrency))
				_, err := store.Claim(ctx, types.ID(ids[i/2]), agent, time.Now())
				mu.Lock()
				if err == nil {
					won++
				} else if !errors.Is(err, matching.ErrAlreadyAssigned) {
					errCnt++
				}
				mu.Unlock()
			}
		}(w)
	}
	for i := 0; i < 2*len(ids); i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	res := Result{
		Latency: elapsed,
		Note:    fmt.Sprintf("claims/s=%.1f won=%d errors=%d", float64(2*len(ids))/elapsed.Seconds(), won, errCnt),
	}
	if won != len(ids) || errCnt > 0 {
		res.Status = statusFail
		return res
	}
	res.Status = statusPass
	return res
}

func (r *Runner) cleanup(ctx context.Context) {
	like := r.run + "-%"
	for _, stmt := range []string{
		`DELETE FROM earnings WHERE order_id LIKE $1`,
		`DELETE FROM notifications WHERE user_id LIKE $1`,
		`DELETE FROM order_status_history WHERE order_id LIKE $1`,
		`DELETE FROM orders WHERE id LIKE $1`,
		`DELETE FROM users WHERE id LIKE $1`,
	} {
		if _, err := r.db.Exec(ctx, stmt, like); err != nil {
			fmt.Printf("cleanup: %v\n", err)
		}
	}
}
