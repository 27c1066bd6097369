// README: Matching tests covering geo filtering, ranking and concurrent claims.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potluck/internal/config"
	"potluck/internal/metrics"
	"potluck/internal/modules/location"
	"potluck/internal/modules/order"
	"potluck/internal/types"
)

var (
	now       = time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	centroid  = types.Point{Lat: 32.7767, Lng: -96.7970}
	chefPoint = types.Point{Lat: 32.7800, Lng: -96.8000}
	testCfg   = config.MatchingConfig{RadiusKm: 3, BaseFeeCents: 300, PerKmCents: 50}
)

// memRepo guards claims with the same compare-and-set the SQL store uses.
type memRepo struct {
	mu     sync.Mutex
	orders map[types.ID]*Candidate
	fees   map[types.ID]int
}

func newMemRepo(cands ...Candidate) *memRepo {
	r := &memRepo{orders: map[types.ID]*Candidate{}, fees: map[types.ID]int{}}
	for i := range cands {
		c := cands[i]
		r.orders[c.OrderID] = &c
	}
	return r
}

func assignableStatus(s order.Status) bool {
	for _, a := range order.AssignableStatuses {
		if a == s {
			return true
		}
	}
	return false
}

func (r *memRepo) OpenCandidates(_ context.Context, cov Coverage) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Candidate
	for _, c := range r.orders {
		if c.AgentID == nil && assignableStatus(c.Status) && cov.Admits(c.DeliveryZip, c.Destination) {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (r *memRepo) Candidate(_ context.Context, id types.ID) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.orders[id]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	return *c, nil
}

func (r *memRepo) Claim(_ context.Context, id, agentID types.ID, _ time.Time) (Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.orders[id]
	if !ok {
		return Candidate{}, ErrNotFound
	}
	if c.AgentID != nil {
		return Candidate{}, ErrAlreadyAssigned
	}
	if !assignableStatus(c.Status) {
		return Candidate{}, ErrNotEligible
	}
	a := agentID
	c.AgentID = &a
	r.fees[agentID]++
	return *c, nil
}

func (r *memRepo) AgentJobs(_ context.Context, agentID types.ID) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Candidate
	for _, c := range r.orders {
		if c.AgentID != nil && *c.AgentID == agentID && !c.Status.Terminal() {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeAreas struct {
	areas     map[types.ID][]location.ServiceArea
	positions map[types.ID]types.Point
}

func newFakeAreas() *fakeAreas {
	return &fakeAreas{areas: map[types.ID][]location.ServiceArea{}, positions: map[types.ID]types.Point{}}
}

func (f *fakeAreas) cover(agent types.ID, centre types.Point, radiusKm float64) {
	c := centre
	f.areas[agent] = append(f.areas[agent], location.ServiceArea{
		AgentID: agent, ZipCode: "75201", Centre: &c, RadiusKm: radiusKm, IsActive: true,
	})
	f.positions[agent] = centre
}

func (f *fakeAreas) ActiveServiceAreas(_ context.Context, agent types.ID) ([]location.ServiceArea, error) {
	var out []location.ServiceArea
	for _, a := range f.areas[agent] {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAreas) AgentLocation(_ context.Context, agent types.ID) (types.Point, bool, error) {
	p, ok := f.positions[agent]
	return p, ok, nil
}

type notified struct {
	mu    sync.Mutex
	users []types.ID
}

func (n *notified) Notify(_ context.Context, userID types.ID, _, _ string, _ types.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
}

func candidate(id string, dest types.Point, placed time.Time) Candidate {
	pickup := chefPoint
	return Candidate{
		OrderID:     types.ID(id),
		Number:      "POT-20240101-" + id,
		ChefID:      "chef-1",
		ConsumerID:  "consumer-1",
		Status:      order.StatusAccepted,
		Pickup:      &pickup,
		DeliveryZip: "75201",
		Destination: &dest,
		DeliveryFee: types.Cents(399),
		PlacedAt:    placed,
	}
}

func newTestService(repo Repository, areas Areas, n Notifier, m *metrics.Metrics) *Service {
	svc := NewService(repo, areas, n, testCfg, nil, m)
	svc.now = func() time.Time { return now }
	return svc
}

func TestFindAvailableJobs_Reasons(t *testing.T) {
	ctx := context.Background()
	areas := newFakeAreas()
	svc := newTestService(newMemRepo(), areas, nil, nil)

	list, err := svc.FindAvailableJobs(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoServiceArea, list.Reason)
	assert.Empty(t, list.Jobs)

	areas.cover("agent-1", centroid, 3)
	delete(areas.positions, "agent-1")
	list, err = svc.FindAvailableJobs(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoLocation, list.Reason)

	areas.areas["agent-1"][0].IsActive = false
	areas.positions["agent-1"] = centroid
	list, err = svc.FindAvailableJobs(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, ReasonNoServiceArea, list.Reason, "inactive areas do not count")
}

func TestFindAvailableJobs_GeoFilter(t *testing.T) {
	ctx := context.Background()
	atCentroid := candidate("0001", centroid, now)
	near := candidate("0002", types.Point{Lat: 32.79, Lng: -96.80}, now)
	// About 11 km north of the centroid.
	far := candidate("0003", types.Point{Lat: 32.8767, Lng: -96.7970}, now)
	zipOnly := candidate("0004", types.Point{}, now)
	zipOnly.Destination = nil
	otherZip := candidate("0005", types.Point{}, now)
	otherZip.Destination = nil
	otherZip.DeliveryZip = "10001"
	assigned := candidate("0006", centroid, now)
	someone := types.ID("agent-9")
	assigned.AgentID = &someone
	picked := candidate("0007", centroid, now)
	picked.Status = order.StatusPickedUp

	repo := newMemRepo(atCentroid, near, far, zipOnly, otherZip, assigned, picked)
	areas := newFakeAreas()
	areas.cover("agent-1", centroid, 3)
	svc := newTestService(repo, areas, nil, nil)

	list, err := svc.FindAvailableJobs(ctx, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, list.Reason)

	var ids []types.ID
	for _, j := range list.Jobs {
		ids = append(ids, j.OrderID)
		if j.Destination != nil {
			d, err := location.Distance(centroid, *j.Destination)
			require.NoError(t, err)
			assert.LessOrEqual(t, d, 3.0, "job %s outside every service area", j.OrderID)
		}
	}
	assert.ElementsMatch(t, []types.ID{"0001", "0002", "0004"}, ids)
}

func TestFindAvailableJobs_CentroidJobSurvivesBacklogElsewhere(t *testing.T) {
	mexicoCity := types.Point{Lat: 19.4326, Lng: -99.1332}
	var cands []Candidate
	for i := 0; i < 750; i++ {
		c := candidate(fmt.Sprintf("mx-%04d", i), mexicoCity, now.Add(-time.Duration(1000-i)*time.Minute))
		c.DeliveryZip = "06000"
		cands = append(cands, c)
	}
	cands = append(cands, candidate("dallas", centroid, now))

	areas := newFakeAreas()
	areas.cover("agent-1", centroid, 3)
	svc := newTestService(newMemRepo(cands...), areas, nil, nil)

	list, err := svc.FindAvailableJobs(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, types.ID("dallas"), list.Jobs[0].OrderID)
}

func TestCoverageOf(t *testing.T) {
	zipOnly := location.ServiceArea{ZipCode: " 75201-1234", IsActive: true}
	inactive := location.ServiceArea{ZipCode: "10001", Centre: &types.Point{Lat: 40.75, Lng: -73.99}, RadiusKm: 3}
	withCentre := location.ServiceArea{ZipCode: "75202", Centre: &centroid, RadiusKm: 3, IsActive: true}

	cov := coverageOf([]location.ServiceArea{zipOnly, inactive, withCentre})
	assert.Equal(t, []string{"75201", "75202"}, cov.Zips)
	require.Len(t, cov.MinLat, 1)

	assert.True(t, cov.Admits("75201-9999", nil))
	assert.False(t, cov.Admits("10001", nil), "inactive areas are ignored")
	assert.True(t, cov.Admits("", &centroid))

	// Points on the radius in each direction must stay inside the box.
	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		p := offset(centroid, 3, bearing)
		d, err := location.Distance(centroid, p)
		require.NoError(t, err)
		require.InDelta(t, 3.0, d, 1e-6)
		assert.True(t, cov.Admits("", &p), "bearing %v", bearing)
	}
	far := types.Point{Lat: 32.8767, Lng: -96.7970}
	assert.False(t, cov.Admits("", &far))
	assert.True(t, coverageOf(nil).Empty())
}

func TestBoundingBox_WrapsNearPolesAndAntimeridian(t *testing.T) {
	_, _, minLng, maxLng := boundingBox(types.Point{Lat: 89.99, Lng: 10}, 5)
	assert.Equal(t, -180.0, minLng)
	assert.Equal(t, 180.0, maxLng)

	_, _, minLng, maxLng = boundingBox(types.Point{Lat: 0, Lng: 179.99}, 5)
	assert.Equal(t, -180.0, minLng)
	assert.Equal(t, 180.0, maxLng)
}

// offset moves p by km along the initial bearing (degrees) on the great circle.
func offset(p types.Point, km, bearing float64) types.Point {
	const r = 6371.0
	d := km / r
	b := bearing * math.Pi / 180
	lat1 := p.Lat * math.Pi / 180
	lng1 := p.Lng * math.Pi / 180
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(b))
	lng2 := lng1 + math.Atan2(math.Sin(b)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return types.Point{Lat: lat2 * 180 / math.Pi, Lng: lng2 * 180 / math.Pi}
}

func TestFindAvailableJobs_PreparingAndReadyAreVisible(t *testing.T) {
	a := candidate("0001", centroid, now)
	a.Status = order.StatusPreparing
	b := candidate("0002", centroid, now)
	b.Status = order.StatusReady
	c := candidate("0003", centroid, now)
	c.Status = order.StatusPending

	areas := newFakeAreas()
	areas.cover("agent-1", centroid, 3)
	svc := newTestService(newMemRepo(a, b, c), areas, nil, nil)

	list, err := svc.FindAvailableJobs(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Len(t, list.Jobs, 2)
}

func TestRankJobs_OrderAndEnrichment(t *testing.T) {
	nearChef := types.Point{Lat: 32.7770, Lng: -96.7972}
	farChef := types.Point{Lat: 32.7950, Lng: -96.7970}

	first := candidate("0001", centroid, now.Add(-10*time.Minute))
	first.Pickup = &farChef
	second := candidate("0002", centroid, now.Add(-5*time.Minute))
	second.Pickup = &nearChef
	tieEarly := candidate("0003", centroid, now.Add(-20*time.Minute))
	tieEarly.Pickup = &nearChef
	ready := now.Add(15 * time.Minute)
	second.ExpectedReadyAt = &ready
	late := now.Add(-time.Minute)
	first.ExpectedReadyAt = &late
	unknown := candidate("0004", centroid, now.Add(-30*time.Minute))
	unknown.Pickup = nil

	areas := []location.ServiceArea{{Centre: &centroid, RadiusKm: 3, IsActive: true}}
	jobs := rankJobs(centroid, areas, []Candidate{first, second, unknown, tieEarly}, testCfg, now)

	require.Len(t, jobs, 4)
	assert.Equal(t, []types.ID{"0003", "0002", "0001", "0004"},
		[]types.ID{jobs[0].OrderID, jobs[1].OrderID, jobs[2].OrderID, jobs[3].OrderID})

	assert.Equal(t, 15*time.Minute, jobs[1].ETA)
	assert.Equal(t, time.Duration(0), jobs[2].ETA, "ETA is floored at zero")
	assert.Nil(t, jobs[3].DistanceKm)
	assert.Equal(t, int64(300), jobs[3].EstimatedEarnings.Amount, "unknown trip earns the base fee")

	require.NotNil(t, jobs[2].TripKm)
	want := 300 + int64(50**jobs[2].TripKm+0.5)
	assert.Equal(t, want, jobs[2].EstimatedEarnings.Amount)
}

func TestEstimateEarnings(t *testing.T) {
	km := 4.0
	assert.Equal(t, int64(500), estimateEarnings(&km, testCfg, "").Amount)
	assert.Equal(t, types.DefaultCurrency, estimateEarnings(&km, testCfg, "").Currency)
	half := 0.01
	assert.Equal(t, int64(301), estimateEarnings(&half, testCfg, "USD").Amount)
}

func TestAcceptJob_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	repo := newMemRepo(candidate("0001", centroid, now))
	areas := newFakeAreas()
	const agents = 10
	for i := 0; i < agents; i++ {
		areas.cover(types.ID(fmt.Sprintf("agent-%d", i)), centroid, 3)
	}
	reg := prometheus.NewRegistry()
	svc := newTestService(repo, areas, &notified{}, metrics.New(reg))

	start := make(chan struct{})
	winners := make(chan types.ID, agents)
	errs := make(chan error, agents)
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		agent := types.ID(fmt.Sprintf("agent-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.AcceptJob(context.Background(), agent, "0001"); err != nil {
				errs <- err
				return
			}
			winners <- agent
		}()
	}
	close(start)
	wg.Wait()
	close(winners)
	close(errs)

	var won []types.ID
	for w := range winners {
		won = append(won, w)
	}
	require.Len(t, won, 1)
	for err := range errs {
		assert.True(t, errors.Is(err, ErrAlreadyAssigned), "unexpected error: %v", err)
	}

	c, err := repo.Candidate(context.Background(), "0001")
	require.NoError(t, err)
	require.NotNil(t, c.AgentID)
	assert.Equal(t, won[0], *c.AgentID)
	assert.Equal(t, 1, repo.fees[won[0]], "fee posted once")

	expected := fmt.Sprintf(`
# HELP potluck_job_claims_total Delivery job claim attempts by result.
# TYPE potluck_job_claims_total counter
potluck_job_claims_total{result="already_assigned"} %d
potluck_job_claims_total{result="ok"} 1
`, agents-1)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "potluck_job_claims_total"))
}

func TestAcceptJob_Rejections(t *testing.T) {
	ctx := context.Background()
	far := candidate("0002", types.Point{Lat: 32.8767, Lng: -96.7970}, now)
	pending := candidate("0003", centroid, now)
	pending.Status = order.StatusPending
	repo := newMemRepo(candidate("0001", centroid, now), far, pending)
	areas := newFakeAreas()
	areas.cover("agent-1", centroid, 3)
	areas.cover("agent-2", centroid, 3)
	svc := newTestService(repo, areas, nil, nil)

	_, err := svc.AcceptJob(ctx, "agent-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.AcceptJob(ctx, "agent-1", "0002")
	assert.ErrorIs(t, err, ErrNotEligible, "outside service area")

	_, err = svc.AcceptJob(ctx, "agent-1", "0003")
	assert.ErrorIs(t, err, ErrNotEligible, "pending orders are not claimable")

	_, err = svc.AcceptJob(ctx, "agent-3", "0001")
	assert.ErrorIs(t, err, ErrNotEligible, "agent without areas")

	job, err := svc.AcceptJob(ctx, "agent-1", "0001")
	require.NoError(t, err)
	require.NotNil(t, job.AgentID)
	assert.Equal(t, types.ID("agent-1"), *job.AgentID)

	_, err = svc.AcceptJob(ctx, "agent-2", "0001")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	_, err = svc.AcceptJob(ctx, "", "0001")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAcceptJob_NotifiesChefAndConsumer(t *testing.T) {
	n := &notified{}
	areas := newFakeAreas()
	areas.cover("agent-1", centroid, 3)
	svc := newTestService(newMemRepo(candidate("0001", centroid, now)), areas, n, nil)

	_, err := svc.AcceptJob(context.Background(), "agent-1", "0001")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"chef-1", "consumer-1"}, n.users)
}

func TestActiveJobs(t *testing.T) {
	ctx := context.Background()
	done := candidate("0002", centroid, now)
	done.Status = order.StatusDelivered
	agent := types.ID("agent-1")
	done.AgentID = &agent
	areas := newFakeAreas()
	areas.cover(agent, centroid, 3)
	svc := newTestService(newMemRepo(candidate("0001", centroid, now), done), areas, nil, nil)

	_, err := svc.AcceptJob(ctx, agent, "0001")
	require.NoError(t, err)

	jobs, err := svc.ActiveJobs(ctx, agent)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.ID("0001"), jobs[0].OrderID)
	assert.NotNil(t, jobs[0].DistanceKm)
}
