// README: Location service manages agent service areas and live position updates.
package location

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/types"
)

type Service struct {
	repo          Repository
	geocoder      Geocoder
	defaultRadius float64
	log           *zap.Logger
	now           func() time.Time
}

func NewService(repo Repository, geocoder Geocoder, defaultRadiusKm float64, log *zap.Logger) *Service {
	if geocoder == nil {
		geocoder = StaticGeocoder{}
	}
	log = logger.OrNop(log)
	return &Service{
		repo:          repo,
		geocoder:      geocoder,
		defaultRadius: defaultRadiusKm,
		log:           log.Named("location.service"),
		now:           time.Now,
	}
}

func (s *Service) AddServiceArea(ctx context.Context, agentID types.ID, in AreaInput) (ServiceArea, error) {
	zip := NormalizeZip(in.ZipCode)
	if zip == "" {
		return ServiceArea{}, fmt.Errorf("%w: zip_code is required", ErrValidation)
	}
	if in.RadiusKm < 0 {
		return ServiceArea{}, fmt.Errorf("%w: radius_km must not be negative", ErrValidation)
	}
	area := ServiceArea{
		AgentID:   agentID,
		ZipCode:   zip,
		City:      strings.TrimSpace(in.City),
		State:     strings.TrimSpace(in.State),
		Centre:    in.Centre,
		RadiusKm:  in.RadiusKm,
		IsPrimary: in.IsPrimary,
	}
	if area.RadiusKm == 0 {
		area.RadiusKm = s.defaultRadius
	}
	if area.Centre != nil {
		if err := ValidatePoint(*area.Centre); err != nil {
			return ServiceArea{}, err
		}
	} else {
		place, ok, err := s.geocoder.GeocodeZip(ctx, zip)
		if err != nil {
			s.log.Warn("geocode failed, area will match by zip", zap.String("zip", zip), zap.Error(err))
		} else if ok {
			centre := place.Centre
			area.Centre = &centre
			if area.City == "" {
				area.City = place.City
			}
			if area.State == "" {
				area.State = place.State
			}
		}
	}

	saved, err := s.repo.InsertServiceArea(ctx, area)
	if err != nil {
		return ServiceArea{}, fmt.Errorf("insert service area: %w", err)
	}
	s.log.Info("service area added",
		zap.String("agent_id", agentID.String()),
		zap.String("zip", zip),
		zap.Bool("primary", saved.IsPrimary),
		zap.Bool("geocoded", saved.Centre != nil))
	return saved, nil
}

func (s *Service) ListServiceAreas(ctx context.Context, agentID types.ID) ([]ServiceArea, error) {
	return s.repo.ListServiceAreas(ctx, agentID, false)
}

// ActiveServiceAreas is the matching engine's view of an agent's coverage.
func (s *Service) ActiveServiceAreas(ctx context.Context, agentID types.ID) ([]ServiceArea, error) {
	return s.repo.ListServiceAreas(ctx, agentID, true)
}

func (s *Service) DeactivateServiceArea(ctx context.Context, agentID types.ID, areaID int64) error {
	ok, err := s.repo.DeactivateServiceArea(ctx, agentID, areaID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: service area %d", ErrNotFound, areaID)
	}
	return nil
}

func (s *Service) UpdateAgentLocation(ctx context.Context, agentID types.ID, p types.Point) error {
	if err := ValidateTrackable(p); err != nil {
		return err
	}
	return s.repo.SetAgentPosition(ctx, AgentPosition{AgentID: agentID, Position: p, UpdatedAt: s.now()})
}

// AgentLocation returns ok=false when the agent never reported a position.
func (s *Service) AgentLocation(ctx context.Context, agentID types.ID) (types.Point, bool, error) {
	pos, ok, err := s.repo.AgentPosition(ctx, agentID)
	if err != nil || !ok {
		return types.Point{}, false, err
	}
	return pos.Position, true, nil
}
