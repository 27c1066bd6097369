// README: Matching store backed by PostgreSQL. Claims are a compare-and-set on delivery_agent_id IS NULL.
package matching

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"potluck/internal/modules/order"
	"potluck/internal/types"
)

type Repository interface {
	// OpenCandidates lists unassigned delivery orders in an assignable status whose
	// destination the coverage admits, oldest first.
	OpenCandidates(ctx context.Context, cov Coverage) ([]Candidate, error)
	Candidate(ctx context.Context, orderID types.ID) (Candidate, error)
	// Claim binds the agent if the order is still unassigned and assignable, posting the
	// agent's pending delivery fee in the same transaction.
	Claim(ctx context.Context, orderID, agentID types.ID, at time.Time) (Candidate, error)
	AgentJobs(ctx context.Context, agentID types.ID) ([]Candidate, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const candidateColumns = `
	o.id, o.order_number, o.chef_id, o.consumer_id, o.delivery_agent_id, o.order_status,
	u.latitude, u.longitude, o.delivery_address, o.delivery_zip, o.delivery_latitude, o.delivery_longitude,
	o.delivery_fee_cents, o.currency, o.order_placed_at, o.expected_ready_time`

func assignable() []string {
	out := make([]string, len(order.AssignableStatuses))
	for i, s := range order.AssignableStatuses {
		out[i] = string(s)
	}
	return out
}

func scanCandidate(row pgx.Row) (Candidate, error) {
	var (
		c                Candidate
		agentID          *string
		status           string
		chefLat, chefLng *float64
		address, zip     *string
		destLat, destLng *float64
	)
	err := row.Scan(
		&c.OrderID, &c.Number, &c.ChefID, &c.ConsumerID, &agentID, &status,
		&chefLat, &chefLng, &address, &zip, &destLat, &destLng,
		&c.DeliveryFee.Amount, &c.DeliveryFee.Currency, &c.PlacedAt, &c.ExpectedReadyAt,
	)
	if err != nil {
		return Candidate{}, err
	}
	c.Status = order.Status(status)
	if agentID != nil {
		a := types.ID(*agentID)
		c.AgentID = &a
	}
	if chefLat != nil && chefLng != nil {
		c.Pickup = &types.Point{Lat: *chefLat, Lng: *chefLng}
	}
	if destLat != nil && destLng != nil {
		c.Destination = &types.Point{Lat: *destLat, Lng: *destLng}
	}
	if address != nil {
		c.DeliveryAddress = *address
	}
	if zip != nil {
		c.DeliveryZip = *zip
	}
	return c, nil
}

func (s *Store) queryCandidates(ctx context.Context, sql string, args ...any) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) OpenCandidates(ctx context.Context, cov Coverage) ([]Candidate, error) {
	if cov.Empty() {
		return nil, nil
	}
	zips := cov.Zips
	if zips == nil {
		zips = []string{}
	}
	return s.queryCandidates(ctx, `
		SELECT `+candidateColumns+`
		FROM orders o JOIN users u ON u.id = o.chef_id
		WHERE o.delivery_type = 'delivery'
		  AND o.delivery_agent_id IS NULL
		  AND o.order_status = ANY($1)
		  AND (
		    regexp_replace(regexp_replace(o.delivery_zip, '^\s+|\s+$', '', 'g'), '^([^-]{5})-.*$', '\1') = ANY($2)
		    OR EXISTS (
		      SELECT 1
		      FROM unnest($3::float8[], $4::float8[], $5::float8[], $6::float8[]) AS b(min_lat, max_lat, min_lng, max_lng)
		      WHERE o.delivery_latitude BETWEEN b.min_lat AND b.max_lat
		        AND o.delivery_longitude BETWEEN b.min_lng AND b.max_lng
		    )
		  )
		ORDER BY o.order_placed_at`,
		assignable(), zips, floats(cov.MinLat), floats(cov.MaxLat), floats(cov.MinLng), floats(cov.MaxLng))
}

func floats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func (s *Store) Candidate(ctx context.Context, orderID types.ID) (Candidate, error) {
	c, err := scanCandidate(s.db.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM orders o JOIN users u ON u.id = o.chef_id
		WHERE o.id = $1`, orderID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Candidate{}, ErrNotFound
	}
	return c, err
}

func (s *Store) Claim(ctx context.Context, orderID, agentID types.ID, at time.Time) (Candidate, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Candidate{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET delivery_agent_id = $1, assigned_at = $2
		WHERE id = $3
		  AND delivery_agent_id IS NULL
		  AND delivery_type = 'delivery'
		  AND order_status = ANY($4)`,
		agentID.String(), at, orderID.String(), assignable(),
	)
	if err != nil {
		return Candidate{}, err
	}
	if tag.RowsAffected() != 1 {
		return Candidate{}, s.claimFailure(ctx, tx, orderID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO earnings (user_id, order_id, amount_cents, currency, type, status)
		SELECT delivery_agent_id, id, delivery_fee_cents, currency, 'delivery_fee', 'pending'
		FROM orders WHERE id = $1
		ON CONFLICT (order_id, user_id, type, status) DO NOTHING`,
		orderID.String(),
	); err != nil {
		return Candidate{}, err
	}

	c, err := scanCandidate(tx.QueryRow(ctx, `
		SELECT `+candidateColumns+`
		FROM orders o JOIN users u ON u.id = o.chef_id
		WHERE o.id = $1`, orderID.String()))
	if err != nil {
		return Candidate{}, err
	}
	return c, tx.Commit(ctx)
}

// claimFailure explains a claim that changed no rows.
func (s *Store) claimFailure(ctx context.Context, tx pgx.Tx, orderID types.ID) error {
	var (
		agentID      *string
		deliveryType string
		status       string
	)
	err := tx.QueryRow(ctx, `
		SELECT delivery_agent_id, delivery_type, order_status FROM orders WHERE id = $1`,
		orderID.String(),
	).Scan(&agentID, &deliveryType, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if agentID != nil {
		return ErrAlreadyAssigned
	}
	return ErrNotEligible
}

func (s *Store) AgentJobs(ctx context.Context, agentID types.ID) ([]Candidate, error) {
	return s.queryCandidates(ctx, `
		SELECT `+candidateColumns+`
		FROM orders o JOIN users u ON u.id = o.chef_id
		WHERE o.delivery_agent_id = $1
		  AND o.order_status NOT IN ('delivered', 'cancelled')
		ORDER BY o.assigned_at`, agentID.String())
}
