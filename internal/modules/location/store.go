// README: Location store backed by Postgres service areas and Redis GEO agent positions.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"potluck/internal/types"
)

const geoAgentsKey = "geo:agents"

// Repository is the persistence surface the location service relies on.
type Repository interface {
	InsertServiceArea(ctx context.Context, area ServiceArea) (ServiceArea, error)
	ListServiceAreas(ctx context.Context, agentID types.ID, activeOnly bool) ([]ServiceArea, error)
	DeactivateServiceArea(ctx context.Context, agentID types.ID, areaID int64) (bool, error)
	SetAgentPosition(ctx context.Context, pos AgentPosition) error
	AgentPosition(ctx context.Context, agentID types.ID) (AgentPosition, bool, error)
}

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// InsertServiceArea stores the area; a primary area clears the agent's other primaries in the same tx.
func (s *Store) InsertServiceArea(ctx context.Context, area ServiceArea) (ServiceArea, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ServiceArea{}, err
	}
	defer tx.Rollback(ctx)

	if area.IsPrimary {
		if _, err := tx.Exec(ctx, `
			UPDATE service_areas SET is_primary = FALSE
			WHERE delivery_agent_id = $1 AND is_primary
		`, area.AgentID); err != nil {
			return ServiceArea{}, err
		}
	}

	var lat, lng *float64
	if area.Centre != nil {
		lat, lng = &area.Centre.Lat, &area.Centre.Lng
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO service_areas (delivery_agent_id, zip_code, city, state, latitude, longitude, radius_km, is_primary, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id, created_at
	`, area.AgentID, area.ZipCode, area.City, area.State, lat, lng, area.RadiusKm, area.IsPrimary).Scan(&area.ID, &area.CreatedAt)
	if err != nil {
		return ServiceArea{}, err
	}
	area.IsActive = true
	return area, tx.Commit(ctx)
}

func (s *Store) ListServiceAreas(ctx context.Context, agentID types.ID, activeOnly bool) ([]ServiceArea, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, delivery_agent_id, zip_code, city, state, latitude, longitude, radius_km, is_primary, is_active, created_at
		FROM service_areas
		WHERE delivery_agent_id = $1 AND (is_active OR NOT $2)
		ORDER BY is_primary DESC, id
	`, agentID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceArea
	for rows.Next() {
		var (
			a        ServiceArea
			lat, lng *float64
		)
		if err := rows.Scan(&a.ID, &a.AgentID, &a.ZipCode, &a.City, &a.State, &lat, &lng,
			&a.RadiusKm, &a.IsPrimary, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			a.Centre = &types.Point{Lat: *lat, Lng: *lng}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateServiceArea(ctx context.Context, agentID types.ID, areaID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE service_areas SET is_active = FALSE, is_primary = FALSE
		WHERE id = $1 AND delivery_agent_id = $2
	`, areaID, agentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetAgentPosition writes the hot copy to Redis GEO and a durable snapshot to users.
func (s *Store) SetAgentPosition(ctx context.Context, pos AgentPosition) error {
	if s.redis != nil {
		if err := s.redis.GeoAdd(ctx, geoAgentsKey, &redis.GeoLocation{
			Name:      pos.AgentID.String(),
			Longitude: pos.Position.Lng,
			Latitude:  pos.Position.Lat,
		}).Err(); err != nil {
			return fmt.Errorf("redis geoadd: %w", err)
		}
	}
	_, err := s.db.Exec(ctx, `
		UPDATE users
		SET current_latitude = $2, current_longitude = $3, location_updated_at = $4
		WHERE id = $1
	`, pos.AgentID, pos.Position.Lat, pos.Position.Lng, pos.UpdatedAt)
	return err
}

// AgentPosition reads Redis first and falls back to the Postgres snapshot.
func (s *Store) AgentPosition(ctx context.Context, agentID types.ID) (AgentPosition, bool, error) {
	if s.redis != nil {
		res, err := s.redis.GeoPos(ctx, geoAgentsKey, agentID.String()).Result()
		if err == nil && len(res) == 1 && res[0] != nil {
			return AgentPosition{
				AgentID:  agentID,
				Position: types.Point{Lat: res[0].Latitude, Lng: res[0].Longitude},
			}, true, nil
		}
	}

	var (
		lat, lng  *float64
		updatedAt *time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT current_latitude, current_longitude, location_updated_at FROM users WHERE id = $1
	`, agentID).Scan(&lat, &lng, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AgentPosition{}, false, nil
	}
	if err != nil {
		return AgentPosition{}, false, err
	}
	if lat == nil || lng == nil {
		return AgentPosition{}, false, nil
	}
	pos := AgentPosition{AgentID: agentID, Position: types.Point{Lat: *lat, Lng: *lng}}
	if updatedAt != nil {
		pos.UpdatedAt = *updatedAt
	}
	return pos, true, nil
}
