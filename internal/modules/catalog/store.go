// README: Catalog store backed by PostgreSQL.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"potluck/internal/types"
)

type Repository interface {
	InsertDish(ctx context.Context, d Dish) (Dish, error)
	Chef(ctx context.Context, id types.ID) (Chef, error)
	ChefDishCount(ctx context.Context, chefID types.ID) (sold int, err error)
	DishesForOrder(ctx context.Context, chefID types.ID, ids []types.ID) (map[types.ID]Dish, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) InsertDish(ctx context.Context, d Dish) (Dish, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO dishes (id, chef_id, name, description, price_cents, cuisine_type, portion_size, prep_time_minutes, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, d.ID, d.ChefID, d.Name, d.Description, d.Price.Amount, d.CuisineType, d.PortionSize, d.PrepMinutes, d.Available).
		Scan(&d.CreatedAt)
	if err != nil {
		return Dish{}, err
	}
	return d, nil
}

func (s *Store) Chef(ctx context.Context, id types.ID) (Chef, error) {
	var (
		c        Chef
		lat, lng *float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, full_name, user_type, is_active, is_available, zip_code, latitude, longitude
		FROM users WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.UserType, &c.Active, &c.Available, &c.Zip, &lat, &lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chef{}, fmt.Errorf("%w: chef %s", ErrNotFound, id)
	}
	if err != nil {
		return Chef{}, err
	}
	if lat != nil && lng != nil {
		c.Position = &types.Point{Lat: *lat, Lng: *lng}
	}
	return c, nil
}

func (s *Store) ChefDishCount(ctx context.Context, chefID types.ID) (int, error) {
	var sold int
	err := s.db.QueryRow(ctx, `SELECT total_dishes_sold FROM users WHERE id = $1`, chefID).Scan(&sold)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: chef %s", ErrNotFound, chefID)
	}
	return sold, err
}

// DishesForOrder returns the requested dishes owned by chefID. Missing ids are simply absent.
func (s *Store) DishesForOrder(ctx context.Context, chefID types.ID, ids []types.ID) (map[types.ID]Dish, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, chef_id, name, price_cents, prep_time_minutes, is_available
		FROM dishes
		WHERE chef_id = $1 AND id = ANY($2)
	`, chefID, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]Dish, len(ids))
	for rows.Next() {
		var d Dish
		if err := rows.Scan(&d.ID, &d.ChefID, &d.Name, &d.Price.Amount, &d.PrepMinutes, &d.Available); err != nil {
			return nil, err
		}
		d.Price.Currency = types.DefaultCurrency
		out[d.ID] = d
	}
	return out, rows.Err()
}
