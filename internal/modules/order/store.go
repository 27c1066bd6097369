// README: Order store backed by PostgreSQL. Every status write is a compare-and-set on (status, status_version).
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"potluck/internal/types"
)

const (
	pgUniqueViolation     = "23505"
	maxNumberAttempts     = 3
	orderNumberConstraint = "orders_order_number_key"
)

// Repository is the persistence surface of the state machine.
type Repository interface {
	// Create assigns o.Number from the day's sequence and stores the order with its first history row.
	Create(ctx context.Context, o *Order, day time.Time, initial HistoryEntry) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	// Transition applies the change only if the order is still at (From, Version); false means stale.
	Transition(ctx context.Context, c StatusChange) (bool, error)
	History(ctx context.Context, id types.ID) ([]HistoryEntry, error)
	ListByParty(ctx context.Context, userID types.ID, role types.Role, limit int) ([]Order, error)
}

// StatusChange is a guarded status write plus the history row it produces.
type StatusChange struct {
	OrderID         types.ID
	From            Status
	To              Status
	Version         int
	ActorID         types.ID
	Notes           string
	At              time.Time
	ExpectedReadyAt *time.Time
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, o *Order, day time.Time, initial HistoryEntry) error {
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		err = s.create(ctx, o, day, initial)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
			continue
		}
		return err
	}
	return fmt.Errorf("allocate order number for %s: %w", day.Format(numberLayout), err)
}

func (s *Store) create(ctx context.Context, o *Order, day time.Time, initial HistoryEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var seq int
	err = tx.QueryRow(ctx, `
		INSERT INTO order_number_counters (day, last_seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_seq = order_number_counters.last_seq + 1
		RETURNING last_seq
	`, day).Scan(&seq)
	if err != nil {
		return err
	}
	o.Number = FormatNumber(day, seq)

	var lat, lng *float64
	if o.Destination != nil {
		lat, lng = &o.Destination.Lat, &o.Destination.Lng
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, consumer_id, chef_id, items,
			subtotal_cents, delivery_fee_cents, platform_fee_cents, tax_cents, total_cents, currency,
			payment_method, payment_status, delivery_type, delivery_address, delivery_zip,
			delivery_latitude, delivery_longitude, order_status, status_version, prep_time_minutes,
			special_instructions, order_placed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23
		)`,
		o.ID.String(), o.Number, o.ConsumerID.String(), o.ChefID.String(), o.Items,
		o.Subtotal.Amount, o.DeliveryFee.Amount, o.PlatformFee.Amount, o.Tax.Amount, o.Total.Amount, currencyOf(o.Total),
		string(o.PaymentMethod), o.PaymentStatus, string(o.DeliveryType), nullIfEmpty(o.DeliveryAddress), nullIfEmpty(o.DeliveryZip),
		lat, lng, string(o.Status), o.StatusVersion, o.PrepMinutes,
		o.SpecialInstructions, o.PlacedAt,
	)
	if err != nil {
		return err
	}
	if err := appendHistory(ctx, tx, initial); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	id, order_number, consumer_id, chef_id, delivery_agent_id, items,
	subtotal_cents, delivery_fee_cents, platform_fee_cents, tax_cents, total_cents, currency,
	payment_method, payment_status, delivery_type, delivery_address, delivery_zip,
	delivery_latitude, delivery_longitude, order_status, status_version, prep_time_minutes,
	special_instructions, order_placed_at, accepted_at, expected_ready_time, assigned_at,
	picked_up_at, delivered_at, cancelled_at, settled_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o             Order
		agentID       *string
		address, zip  *string
		lat, lng      *float64
		currency      string
		paymentMethod string
		deliveryType  string
		status        string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.ConsumerID, &o.ChefID, &agentID, &o.Items,
		&o.Subtotal.Amount, &o.DeliveryFee.Amount, &o.PlatformFee.Amount, &o.Tax.Amount, &o.Total.Amount, &currency,
		&paymentMethod, &o.PaymentStatus, &deliveryType, &address, &zip,
		&lat, &lng, &status, &o.StatusVersion, &o.PrepMinutes,
		&o.SpecialInstructions, &o.PlacedAt, &o.AcceptedAt, &o.ExpectedReadyAt, &o.AssignedAt,
		&o.PickedUpAt, &o.DeliveredAt, &o.CancelledAt, &o.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	if agentID != nil {
		a := types.ID(*agentID)
		o.AgentID = &a
	}
	if address != nil {
		o.DeliveryAddress = *address
	}
	if zip != nil {
		o.DeliveryZip = *zip
	}
	if lat != nil && lng != nil {
		o.Destination = &types.Point{Lat: *lat, Lng: *lng}
	}
	for _, m := range []*types.Money{&o.Subtotal, &o.DeliveryFee, &o.PlatformFee, &o.Tax, &o.Total} {
		m.Currency = currency
	}
	o.PaymentMethod = PaymentMethod(paymentMethod)
	o.DeliveryType = DeliveryType(deliveryType)
	o.Status = Status(status)
	return &o, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *Store) Transition(ctx context.Context, c StatusChange) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET order_status = $1::text,
			status_version = status_version + 1,
			accepted_at = CASE WHEN $1::text = 'accepted' THEN $2::timestamptz ELSE accepted_at END,
			expected_ready_time = COALESCE($3::timestamptz, expected_ready_time),
			picked_up_at = CASE WHEN $1::text = 'picked_up' THEN COALESCE(picked_up_at, $2::timestamptz) ELSE picked_up_at END,
			delivered_at = CASE WHEN $1::text = 'delivered' THEN COALESCE(delivered_at, $2::timestamptz) ELSE delivered_at END,
			cancelled_at = CASE WHEN $1::text = 'cancelled' THEN COALESCE(cancelled_at, $2::timestamptz) ELSE cancelled_at END
		WHERE id = $4 AND order_status = $5 AND status_version = $6`,
		string(c.To), c.At, c.ExpectedReadyAt, c.OrderID.String(), string(c.From), c.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if err := appendHistory(ctx, tx, HistoryEntry{
		OrderID:   c.OrderID,
		Status:    c.To,
		ChangedBy: c.ActorID,
		Notes:     c.Notes,
		CreatedAt: c.At,
	}); err != nil {
		return false, err
	}

	if c.To == StatusCancelled {
		// A bound agent's pending fee is offset, never deleted.
		if _, err := tx.Exec(ctx, `
			INSERT INTO earnings (user_id, order_id, amount_cents, currency, type, status)
			SELECT user_id, order_id, -amount_cents, currency, type, 'reversed'
			FROM earnings
			WHERE order_id = $1 AND type = 'delivery_fee' AND status = 'pending'
			ON CONFLICT (order_id, user_id, type, status) DO NOTHING
		`, c.OrderID.String()); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func appendHistory(ctx context.Context, tx pgx.Tx, h HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, changed_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		h.OrderID.String(), string(h.Status), h.ChangedBy.String(), h.Notes, h.CreatedAt,
	)
	return err
}

func (s *Store) History(ctx context.Context, id types.ID) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, status, changed_by, notes, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			h      HistoryEntry
			status string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &status, &h.ChangedBy, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Status = Status(status)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) ListByParty(ctx context.Context, userID types.ID, role types.Role, limit int) ([]Order, error) {
	var column string
	switch role {
	case types.RoleConsumer:
		column = "consumer_id"
	case types.RoleChef:
		column = "chef_id"
	case types.RoleDelivery:
		column = "delivery_agent_id"
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+column+` = $1
		ORDER BY order_placed_at DESC
		LIMIT $2`, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func currencyOf(m types.Money) string {
	if m.Currency == "" {
		return types.DefaultCurrency
	}
	return m.Currency
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
