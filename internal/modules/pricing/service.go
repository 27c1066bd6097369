// README: Pricing service wraps the oracle with a quota, a timeout and the rule-based fallback.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/types"
)

// mispricedFactor is how far above the suggested max a listing may go.
const mispricedFactor = 2

type Service struct {
	oracle  Oracle
	quota   Quota
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewService accepts a nil oracle (always fallback) and a nil quota (unmetered).
func NewService(oracle Oracle, quota Quota, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		oracle:  oracle,
		quota:   quota,
		timeout: timeout,
		log:     logger.OrNop(log).Named("pricing.service"),
		metrics: m,
	}
}

// Suggest never fails: oracle errors, timeouts and an exhausted quota all degrade to the fallback.
func (s *Service) Suggest(ctx context.Context, uid string, attrs DishAttributes) Suggestion {
	if s.oracle == nil {
		return s.fallback(attrs)
	}
	if s.quota != nil {
		if err := s.quota.Consume(ctx, uid); err != nil {
			if !errors.Is(err, ErrQuotaExceeded) {
				s.log.Warn("quota check failed", zap.String("uid", uid), zap.Error(err))
			}
			return s.fallback(attrs)
		}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	sug, err := s.oracle.SuggestPrice(callCtx, attrs)
	if err != nil {
		s.log.Warn("pricing oracle failed, using fallback", zap.String("uid", uid), zap.Error(err))
		return s.fallback(attrs)
	}
	s.metrics.PriceSuggestion(SourceOracle)
	return capForNewChef(sug, attrs.ChefExperience)
}

// ValidateListing rejects prices above twice the suggested maximum.
func (s *Service) ValidateListing(ctx context.Context, uid string, attrs DishAttributes, price types.Money) (Suggestion, error) {
	if price.Amount <= 0 {
		return Suggestion{}, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	sug := s.Suggest(ctx, uid, attrs)
	if limit := sug.Max.Mul(mispricedFactor); price.Amount > limit.Amount {
		return sug, fmt.Errorf("%w: price %s exceeds %s (2x suggested max)", ErrMispriced, price, limit)
	}
	return sug, nil
}

func (s *Service) fallback(attrs DishAttributes) Suggestion {
	s.metrics.PriceSuggestion(SourceFallback)
	return FallbackSuggestion(attrs)
}
