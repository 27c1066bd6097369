// README: Catalog service creates dish listings after a pricing sanity check.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/modules/pricing"
	"potluck/internal/types"
)

const defaultPrepMinutes = 30

// Pricer is satisfied by *pricing.Service.
type Pricer interface {
	Suggest(ctx context.Context, uid string, attrs pricing.DishAttributes) pricing.Suggestion
	ValidateListing(ctx context.Context, uid string, attrs pricing.DishAttributes, price types.Money) (pricing.Suggestion, error)
}

type Service struct {
	repo    Repository
	pricing Pricer
	newID   func() types.ID
	log     *zap.Logger
}

func NewService(repo Repository, pricer Pricer, newID func() types.ID, log *zap.Logger) *Service {
	return &Service{repo: repo, pricing: pricer, newID: newID, log: logger.OrNop(log).Named("catalog.service")}
}

func (s *Service) CreateDish(ctx context.Context, chefID types.ID, in DishInput) (Dish, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Dish{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.Price.Amount <= 0 {
		return Dish{}, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if in.PrepMinutes < 0 {
		return Dish{}, fmt.Errorf("%w: prep_time_minutes must not be negative", ErrValidation)
	}
	chef, err := s.repo.Chef(ctx, chefID)
	if err != nil {
		return Dish{}, err
	}
	if chef.UserType != types.RoleChef {
		return Dish{}, fmt.Errorf("%w: user %s is not a chef", ErrValidation, chefID)
	}

	if s.pricing != nil {
		attrs := pricing.DishAttributes{
			Name:           name,
			Description:    in.Description,
			CuisineType:    in.CuisineType,
			PortionSize:    in.PortionSize,
			ChefExperience: s.experience(ctx, chefID),
			Location:       chef.Zip,
		}
		if _, err := s.pricing.ValidateListing(ctx, chefID.String(), attrs, in.Price); err != nil {
			s.log.Info("dish listing rejected", zap.String("chef_id", chefID.String()), zap.String("price", in.Price.String()), zap.Error(err))
			return Dish{}, err
		}
	}

	prep := in.PrepMinutes
	if prep == 0 {
		prep = defaultPrepMinutes
	}
	dish := Dish{
		ID:          s.newID(),
		ChefID:      chefID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		CuisineType: strings.TrimSpace(in.CuisineType),
		PortionSize: strings.TrimSpace(in.PortionSize),
		PrepMinutes: prep,
		Available:   true,
	}
	saved, err := s.repo.InsertDish(ctx, dish)
	if err != nil {
		return Dish{}, fmt.Errorf("insert dish: %w", err)
	}
	return saved, nil
}

// SuggestPrice exposes the pricing oracle for a chef drafting a listing.
func (s *Service) SuggestPrice(ctx context.Context, chefID types.ID, attrs pricing.DishAttributes) (pricing.Suggestion, error) {
	chef, err := s.repo.Chef(ctx, chefID)
	if err != nil {
		return pricing.Suggestion{}, err
	}
	if attrs.ChefExperience == "" {
		attrs.ChefExperience = s.experience(ctx, chefID)
	}
	if attrs.Location == "" {
		attrs.Location = chef.Zip
	}
	if s.pricing == nil {
		return pricing.FallbackSuggestion(attrs), nil
	}
	return s.pricing.Suggest(ctx, chefID.String(), attrs), nil
}

func (s *Service) Chef(ctx context.Context, id types.ID) (Chef, error) {
	return s.repo.Chef(ctx, id)
}

func (s *Service) DishesForOrder(ctx context.Context, chefID types.ID, ids []types.ID) (map[types.ID]Dish, error) {
	return s.repo.DishesForOrder(ctx, chefID, ids)
}

// experience tiers a chef by lifetime dishes sold.
func (s *Service) experience(ctx context.Context, chefID types.ID) string {
	sold, err := s.repo.ChefDishCount(ctx, chefID)
	if err != nil {
		return pricing.ExperienceNew
	}
	return ExperienceTier(sold)
}

func ExperienceTier(dishesSold int) string {
	switch {
	case dishesSold >= 100:
		return pricing.ExperienceExperienced
	case dishesSold >= 20:
		return pricing.ExperienceIntermediate
	}
	return pricing.ExperienceNew
}
