// README: Shared setup for DB-backed tests. Tests skip unless POTLUCK_TEST_DSN points at a scratch database.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"potluck/internal/infra"
)

const DSNEnv = "POTLUCK_TEST_DSN"

const truncateAll = `TRUNCATE TABLE
	notifications, reviews, earnings, order_status_history, orders,
	order_number_counters, service_areas, dishes, ai_usage, users CASCADE`

// Open migrates the database behind POTLUCK_TEST_DSN, empties it and returns a pool closed at cleanup.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skip(DSNEnv + " not set; skipping DB-backed tests")
	}
	if err := infra.Migrate(dsn, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Exec(ctx, truncateAll); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// User is the minimum needed to satisfy foreign keys and availability checks.
type User struct {
	ID       string
	Type     string
	Zip      string
	Lat, Lng *float64
}

func SeedUser(t *testing.T, db *pgxpool.Pool, u User) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO users (id, user_type, full_name, zip_code, latitude, longitude)
		VALUES ($1, $2, $1, $3, $4, $5)`,
		u.ID, u.Type, u.Zip, u.Lat, u.Lng)
	if err != nil {
		t.Fatalf("seed user %s: %v", u.ID, err)
	}
}

func SeedDish(t *testing.T, db *pgxpool.Pool, id, chefID string, priceCents int64, prepMinutes int) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO dishes (id, chef_id, name, price_cents, prep_time_minutes)
		VALUES ($1, $2, $1, $3, $4)`,
		id, chefID, priceCents, prepMinutes)
	if err != nil {
		t.Fatalf("seed dish %s: %v", id, err)
	}
}

// Float is a convenience for optional coordinates.
func Float(v float64) *float64 { return &v }
