// README: Matching service lists open delivery jobs for an agent and arbitrates claims.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"potluck/internal/config"
	"potluck/internal/logger"
	"potluck/internal/metrics"
	"potluck/internal/modules/location"
	"potluck/internal/types"
)

// notifyBudget bounds the notifications sent for one claim.
const notifyBudget = 2 * time.Second

// Areas exposes the agent's coverage and last known position.
type Areas interface {
	ActiveServiceAreas(ctx context.Context, agentID types.ID) ([]location.ServiceArea, error)
	AgentLocation(ctx context.Context, agentID types.ID) (types.Point, bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID)
}

type Service struct {
	repo     Repository
	areas    Areas
	notifier Notifier
	cfg      config.MatchingConfig
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(repo Repository, areas Areas, notifier Notifier, cfg config.MatchingConfig, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		areas:    areas,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.OrNop(log).Named("matching.service"),
		metrics:  m,
	}
}

// FindAvailableJobs returns open jobs inside the agent's active service areas, nearest pickup first.
// An agent without an active area or a known position gets an empty list and a Reason.
func (s *Service) FindAvailableJobs(ctx context.Context, agentID types.ID) (JobList, error) {
	if agentID == "" {
		return JobList{}, fmt.Errorf("%w: agent id is required", ErrValidation)
	}
	areas, err := s.areas.ActiveServiceAreas(ctx, agentID)
	if err != nil {
		return JobList{}, fmt.Errorf("load service areas: %w", err)
	}
	if len(areas) == 0 {
		return JobList{Jobs: []Job{}, Reason: ReasonNoServiceArea}, nil
	}
	pos, ok, err := s.areas.AgentLocation(ctx, agentID)
	if err != nil {
		return JobList{}, fmt.Errorf("load agent location: %w", err)
	}
	if !ok {
		return JobList{Jobs: []Job{}, Reason: ReasonNoLocation}, nil
	}

	cands, err := s.repo.OpenCandidates(ctx, coverageOf(areas))
	if err != nil {
		return JobList{}, fmt.Errorf("load open orders: %w", err)
	}
	jobs := rankJobs(pos, areas, cands, s.cfg, s.now())
	s.log.Debug("jobs listed",
		zap.String("agent_id", agentID.String()),
		zap.Int("candidates", len(cands)),
		zap.Int("jobs", len(jobs)))
	return JobList{Jobs: jobs}, nil
}

// AcceptJob claims an order for the agent. Exactly one of several concurrent claims wins;
// the rest get ErrAlreadyAssigned.
func (s *Service) AcceptJob(ctx context.Context, agentID, orderID types.ID) (Job, error) {
	job, err := s.acceptJob(ctx, agentID, orderID)
	s.metrics.Claim(claimResult(err))
	return job, err
}

func (s *Service) acceptJob(ctx context.Context, agentID, orderID types.ID) (Job, error) {
	if agentID == "" || orderID == "" {
		return Job{}, fmt.Errorf("%w: agent id and order id are required", ErrValidation)
	}
	log := s.log.With(zap.String("agent_id", agentID.String()), zap.String("order_id", orderID.String()))

	c, err := s.repo.Candidate(ctx, orderID)
	if err != nil {
		return Job{}, err
	}
	if c.AgentID != nil {
		return Job{}, fmt.Errorf("%w: order %s", ErrAlreadyAssigned, orderID)
	}
	areas, err := s.areas.ActiveServiceAreas(ctx, agentID)
	if err != nil {
		return Job{}, fmt.Errorf("load service areas: %w", err)
	}
	if !covered(areas, c) {
		log.Info("claim rejected", zap.String("reason", "outside service areas"))
		return Job{}, fmt.Errorf("%w: order %s is outside your service areas", ErrNotEligible, orderID)
	}

	claimed, err := s.repo.Claim(ctx, orderID, agentID, s.now())
	if err != nil {
		if errors.Is(err, ErrAlreadyAssigned) || errors.Is(err, ErrNotEligible) {
			log.Info("claim rejected", zap.Error(err))
			return Job{}, fmt.Errorf("%w: order %s", err, orderID)
		}
		if errors.Is(err, ErrNotFound) {
			return Job{}, err
		}
		log.Error("claim write failed", zap.Error(err))
		return Job{}, fmt.Errorf("claim order %s: %w", orderID, err)
	}
	log.Info("job claimed", zap.String("order_number", claimed.Number))

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyBudget)
	defer cancel()
	s.notify(nctx, claimed.ChefID, "Courier assigned", fmt.Sprintf("A courier will collect order %s", claimed.Number), orderID)
	s.notify(nctx, claimed.ConsumerID, "Courier assigned", fmt.Sprintf("A courier has been assigned to order %s", claimed.Number), orderID)

	return enrich(claimed, s.position(ctx, agentID), s.cfg, s.now()), nil
}

// ActiveJobs lists the orders bound to the agent that are not yet delivered or cancelled.
func (s *Service) ActiveJobs(ctx context.Context, agentID types.ID) ([]Job, error) {
	cands, err := s.repo.AgentJobs(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load active jobs: %w", err)
	}
	pos := s.position(ctx, agentID)
	now := s.now()
	jobs := make([]Job, 0, len(cands))
	for _, c := range cands {
		jobs = append(jobs, enrich(c, pos, s.cfg, now))
	}
	return jobs, nil
}

func (s *Service) position(ctx context.Context, agentID types.ID) *types.Point {
	p, ok, err := s.areas.AgentLocation(ctx, agentID)
	if err != nil {
		s.log.Warn("agent location lookup failed", zap.String("agent_id", agentID.String()), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &p
}

func (s *Service) notify(ctx context.Context, userID types.ID, title, message string, orderID types.ID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, title, message, orderID)
}

func claimResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	}
	return "error"
}
