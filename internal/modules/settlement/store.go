// README: Settlement store backed by PostgreSQL. Ledger rows are append-only; ratings update average and count in one statement.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"potluck/internal/types"
)

const recentEntries = 50

type Repository interface {
	// Close posts the chef's revenue and bumps sales counters at most once per order.
	Close(ctx context.Context, c Closing) error
	// Settle writes ratings, review and tip only if the order is delivered and unsettled.
	Settle(ctx context.Context, r Record) error
	Earnings(ctx context.Context, userID types.ID) (Summary, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Close(ctx context.Context, c Closing) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO earnings (user_id, order_id, amount_cents, currency, type, status)
		VALUES ($1, $2, $3, $4, 'order_revenue', 'pending')
		ON CONFLICT (order_id, user_id, type, status) DO NOTHING`,
		c.ChefID.String(), c.OrderID.String(), c.Revenue.Amount, currencyOf(c.Revenue),
	)
	if err != nil {
		return fmt.Errorf("post revenue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already closed.
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET total_dishes_sold = total_dishes_sold + $2 WHERE id = $1`,
		c.ChefID.String(), c.DishesSold,
	); err != nil {
		return fmt.Errorf("count dishes sold: %w", err)
	}
	if c.AgentID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE users SET total_deliveries = total_deliveries + 1 WHERE id = $1`,
			c.AgentID.String(),
		); err != nil {
			return fmt.Errorf("count deliveries: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Settle(ctx context.Context, r Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET settled_at = $2, food_rating = $3, chef_rating = $4, delivery_rating = $5,
			chef_review = $6, tip_cents = $7
		WHERE id = $1 AND order_status = 'delivered' AND settled_at IS NULL`,
		r.OrderID.String(), r.At, r.Ratings.Food, r.Ratings.Chef, r.Ratings.Delivery,
		nullIfEmpty(r.Review), r.Tip.Amount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return settleFailure(ctx, tx, r.OrderID)
	}

	if v := r.Ratings.Chef; v != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE users
			SET chef_rating = (chef_rating * chef_rating_count + $2) / (chef_rating_count + 1),
				chef_rating_count = chef_rating_count + 1
			WHERE id = $1`, r.ChefID.String(), float64(*v)); err != nil {
			return fmt.Errorf("rate chef: %w", err)
		}
	}
	if v := r.Ratings.Food; v != nil && len(r.DishIDs) > 0 {
		ids := make([]string, len(r.DishIDs))
		for i, id := range r.DishIDs {
			ids[i] = id.String()
		}
		if _, err := tx.Exec(ctx, `
			UPDATE dishes
			SET rating = (rating * rating_count + $2) / (rating_count + 1),
				rating_count = rating_count + 1
			WHERE id = ANY($1)`, ids, float64(*v)); err != nil {
			return fmt.Errorf("rate dishes: %w", err)
		}
	}
	if v := r.Ratings.Delivery; v != nil && r.AgentID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE users
			SET delivery_rating = (delivery_rating * delivery_rating_count + $2) / (delivery_rating_count + 1),
				delivery_rating_count = delivery_rating_count + 1
			WHERE id = $1`, r.AgentID.String(), float64(*v)); err != nil {
			return fmt.Errorf("rate delivery: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO reviews (order_id, consumer_id, chef_id, food_rating, chef_rating, delivery_rating, review_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.OrderID.String(), r.ConsumerID.String(), r.ChefID.String(),
		r.Ratings.Food, r.Ratings.Chef, r.Ratings.Delivery, r.Review, r.At,
	); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	if r.Tip.Amount > 0 && r.AgentID != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO earnings (user_id, order_id, amount_cents, currency, type, status, created_at)
			VALUES ($1, $2, $3, $4, 'tip', 'pending', $5)`,
			r.AgentID.String(), r.OrderID.String(), r.Tip.Amount, currencyOf(r.Tip), r.At,
		); err != nil {
			return fmt.Errorf("post tip: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func settleFailure(ctx context.Context, tx pgx.Tx, orderID types.ID) error {
	var (
		status  string
		settled bool
	)
	err := tx.QueryRow(ctx, `
		SELECT order_status, settled_at IS NOT NULL FROM orders WHERE id = $1`, orderID.String(),
	).Scan(&status, &settled)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if settled {
		return ErrAlreadySettled
	}
	return fmt.Errorf("%w: order is %s", ErrNotDelivered, status)
}

func (s *Store) Earnings(ctx context.Context, userID types.ID) (Summary, error) {
	sum := Summary{UserID: userID, ByType: map[EarningType]types.Money{}, Total: types.Cents(0)}

	rows, err := s.db.Query(ctx, `
		SELECT type, COALESCE(SUM(amount_cents), 0)
		FROM earnings
		WHERE user_id = $1
		GROUP BY type`, userID.String())
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var (
			typ    string
			amount int64
		)
		if err := rows.Scan(&typ, &amount); err != nil {
			rows.Close()
			return Summary{}, err
		}
		sum.ByType[EarningType(typ)] = types.Cents(amount)
		sum.Total = sum.Total.Add(types.Cents(amount))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	rows, err = s.db.Query(ctx, `
		SELECT id, order_id, amount_cents, currency, type, status, created_at
		FROM earnings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID.String(), recentEntries)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e   Entry
			typ string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Amount.Amount, &e.Amount.Currency, &typ, &e.Status, &e.At); err != nil {
			return Summary{}, err
		}
		e.Type = EarningType(typ)
		sum.Recent = append(sum.Recent, e)
	}
	return sum, rows.Err()
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
