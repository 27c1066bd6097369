// README: Route, role gating and error mapping tests against stub services.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "potluck/internal/http"
	"potluck/internal/infra"
	"potluck/internal/metrics"
	"potluck/internal/modules/catalog"
	"potluck/internal/modules/location"
	"potluck/internal/modules/matching"
	"potluck/internal/modules/notification"
	"potluck/internal/modules/order"
	"potluck/internal/modules/pricing"
	"potluck/internal/modules/settlement"
	"potluck/internal/types"
)

// tokenVerifier treats the bearer token as "<uid>:<role>".
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	for i := range raw {
		if raw[i] == ':' {
			return &infra.FirebaseToken{UID: raw[:i], Claims: map[string]interface{}{"role": raw[i+1:]}}, nil
		}
	}
	return nil, errors.New("malformed token")
}

type revocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (r *revocations) Revoke(_ context.Context, token string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[token] = true
	return nil
}

func (r *revocations) IsRevoked(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[token], nil
}

var placedAt = time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)

func sampleOrder() *order.Order {
	agent := types.ID("agent-1")
	return &order.Order{
		ID:            "1001",
		Number:        "POT-20240101-0001",
		ConsumerID:    "consumer-1",
		ChefID:        "chef-1",
		AgentID:       &agent,
		Items:         []order.Item{{DishID: "dish-1", Quantity: 2, UnitPrice: 1299}},
		Subtotal:      types.Cents(2598),
		DeliveryFee:   types.Cents(399),
		PlatformFee:   types.Cents(130),
		Tax:           types.Cents(260),
		Total:         types.Cents(3387),
		PaymentMethod: order.PaymentCard,
		PaymentStatus: "pending",
		DeliveryType:  order.DeliveryTypeDelivery,
		Status:        order.StatusPending,
		PlacedAt:      placedAt,
	}
}

type stubOrders struct {
	created       order.CreateCommand
	transitionErr error
	getErr        error
}

func (s *stubOrders) Create(_ context.Context, cmd order.CreateCommand) (*order.Order, error) {
	s.created = cmd
	return sampleOrder(), nil
}

func (s *stubOrders) Transition(_ context.Context, cmd order.TransitionCommand) (*order.Order, error) {
	if s.transitionErr != nil {
		return nil, s.transitionErr
	}
	o := sampleOrder()
	o.Status = cmd.To
	return o, nil
}

func (s *stubOrders) Get(_ context.Context, _, _ types.ID) (*order.Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return sampleOrder(), nil
}

func (s *stubOrders) History(_ context.Context, id, actor types.ID) ([]order.HistoryEntry, error) {
	return []order.HistoryEntry{{OrderID: id, Status: order.StatusPending, ChangedBy: actor, CreatedAt: placedAt}}, nil
}

func (s *stubOrders) ListByParty(_ context.Context, _ types.ID, _ types.Role) ([]order.Order, error) {
	return []order.Order{*sampleOrder()}, nil
}

type stubMatching struct {
	list matching.JobList
}

func (s *stubMatching) FindAvailableJobs(_ context.Context, _ types.ID) (matching.JobList, error) {
	return s.list, nil
}

func (s *stubMatching) AcceptJob(_ context.Context, _, orderID types.ID) (matching.Job, error) {
	if orderID == "taken" {
		return matching.Job{}, fmt.Errorf("%w: order %s", matching.ErrAlreadyAssigned, orderID)
	}
	km := 7.123
	return matching.Job{
		Candidate:         matching.Candidate{OrderID: orderID, Status: order.StatusReady, DeliveryFee: types.Cents(399)},
		TripKm:            &km,
		EstimatedEarnings: types.Cents(390),
		ETA:               90 * time.Second,
	}, nil
}

func (s *stubMatching) ActiveJobs(_ context.Context, _ types.ID) ([]matching.Job, error) {
	return nil, nil
}

type stubLocation struct {
	added location.AreaInput
}

func (s *stubLocation) AddServiceArea(_ context.Context, agentID types.ID, in location.AreaInput) (location.ServiceArea, error) {
	s.added = in
	return location.ServiceArea{ID: 7, AgentID: agentID, ZipCode: in.ZipCode, RadiusKm: 3, IsActive: true}, nil
}

func (s *stubLocation) ListServiceAreas(_ context.Context, _ types.ID) ([]location.ServiceArea, error) {
	return nil, nil
}

func (s *stubLocation) DeactivateServiceArea(_ context.Context, _ types.ID, _ int64) error {
	return nil
}

func (s *stubLocation) UpdateAgentLocation(_ context.Context, _ types.ID, p types.Point) error {
	return location.ValidateTrackable(p)
}

type stubSettlement struct {
	cmd settlement.SettleCommand
}

func (s *stubSettlement) Settle(_ context.Context, cmd settlement.SettleCommand) error {
	s.cmd = cmd
	return nil
}

func (s *stubSettlement) Earnings(_ context.Context, userID types.ID) (settlement.Summary, error) {
	return settlement.Summary{
		UserID: userID,
		ByType: map[settlement.EarningType]types.Money{settlement.EarningDeliveryFee: types.Cents(399), settlement.EarningTip: types.Cents(300)},
		Total:  types.Cents(699),
	}, nil
}

type stubNotifications struct{}

func (stubNotifications) List(_ context.Context, _ types.ID) ([]notification.Notification, error) {
	return nil, nil
}

func (stubNotifications) MarkRead(_ context.Context, _ types.ID, id int64) error {
	if id != 1 {
		return fmt.Errorf("%w: notification %d", notification.ErrNotFound, id)
	}
	return nil
}

type stubCatalog struct{}

func (stubCatalog) CreateDish(_ context.Context, chefID types.ID, in catalog.DishInput) (catalog.Dish, error) {
	return catalog.Dish{ID: "dish-9", ChefID: chefID, Name: in.Name, Price: in.Price, Available: true}, nil
}

func (stubCatalog) SuggestPrice(_ context.Context, _ types.ID, _ pricing.DishAttributes) (pricing.Suggestion, error) {
	return pricing.Suggestion{}, errors.New("connection reset by peer")
}

type fixture struct {
	router      *gin.Engine
	orders      *stubOrders
	matching    *stubMatching
	location    *stubLocation
	settlement  *stubSettlement
	revocations *revocations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		orders:      &stubOrders{},
		matching:    &stubMatching{},
		location:    &stubLocation{},
		settlement:  &stubSettlement{},
		revocations: &revocations{revoked: map[string]bool{}},
	}
	reg := prometheus.NewRegistry()
	f.router = apihttp.NewRouter(apihttp.RouterDeps{
		Orders:        f.orders,
		Matching:      f.matching,
		Location:      f.location,
		Settlement:    f.settlement,
		Notifications: stubNotifications{},
		Catalog:       stubCatalog{},
		Verifier:      tokenVerifier{},
		Revocations:   f.revocations,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
	})
	return f
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			_ = json.NewEncoder(&buf).Encode(v)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const (
	consumerToken = "consumer-1:consumer"
	chefToken     = "chef-1:chef"
	agentToken    = "agent-1:delivery"
)

func TestHealthAndMetricsNeedNoAuth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)

	f.do(http.MethodGet, "/health", "", nil)
	w := f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "potluck_http_request_duration_seconds")
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["error"])
}

func TestCreateOrder_ParsesDecimalMoney(t *testing.T) {
	f := newFixture(t)
	body := `{
		"chef_id": "chef-1",
		"items": [{"dish_id": "dish-1", "quantity": 2, "unit_price": 12.99}],
		"delivery_type": "delivery",
		"delivery_address": "1 Main St",
		"delivery_zip": "10001",
		"payment_method": "card",
		"subtotal": 25.98, "delivery_fee": 3.99, "platform_fee": 1.30, "tax": 2.60,
		"total_amount": "33.87"
	}`
	w := f.do(http.MethodPost, "/api/orders", consumerToken, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	cmd := f.orders.created
	assert.Equal(t, types.ID("consumer-1"), cmd.ConsumerID)
	assert.Equal(t, types.RoleConsumer, cmd.ActorRole)
	assert.Equal(t, int64(3387), cmd.Total.Amount)
	assert.Equal(t, int64(2598), cmd.Subtotal.Amount)
	require.Len(t, cmd.Items, 1)
	assert.Equal(t, int64(1299), cmd.Items[0].UnitPrice)

	out := decode(t, w)
	assert.Equal(t, "33.87", out["total_amount"])
	assert.Equal(t, "POT-20240101-0001", out["order_number"])
	assert.Equal(t, "pending", out["order_status"])
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		token string
		body  string
		code  int
	}{
		{"chef cannot order", chefToken, `{"chef_id":"chef-1"}`, http.StatusForbidden},
		{"consumer id mismatch", consumerToken, `{"consumer_id":"someone-else","chef_id":"chef-1"}`, http.StatusBadRequest},
		{"sub-cent price", consumerToken, `{"chef_id":"chef-1","items":[{"dish_id":"d","quantity":1,"unit_price":1.005}]}`, http.StatusBadRequest},
		{"malformed json", consumerToken, `{"chef_id":`, http.StatusBadRequest},
		{"bad chef id", consumerToken, `{"chef_id":"chef/1"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/orders", tc.token, tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		want string
	}{
		{fmt.Errorf("%w: ready -> delivered", order.ErrInvalidTransition), http.StatusBadRequest, "invalid_transition"},
		{fmt.Errorf("%w: delivered", order.ErrAlreadyInState), http.StatusConflict, "already_in_state"},
		{fmt.Errorf("%w: chef only", order.ErrForbidden), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: 1001", order.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: 1001", order.ErrStaleStatus), http.StatusConflict, "stale_status"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			f := newFixture(t)
			f.orders.transitionErr = tc.err
			w := f.do(http.MethodPost, "/api/orders/1001/status", chefToken, map[string]string{"status": "delivered"})
			assert.Equal(t, tc.code, w.Code)
			out := decode(t, w)
			assert.Equal(t, tc.want, out["error"])
			if tc.code == http.StatusInternalServerError {
				assert.NotContains(t, out["message"], "connection refused")
			}
		})
	}
}

func TestUpdateStatus_Success(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/orders/1001/status", chefToken, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "accepted", decode(t, w)["order_status"])

	w = f.do(http.MethodPost, "/api/orders/1001/status", chefToken, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderHistory(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/orders/1001/history", consumerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "pending", history[0].(map[string]any)["status"])
}

func TestDeliveryRoutesRequireAgentRole(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/delivery/jobs", consumerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJobs_ReasonIsReported(t *testing.T) {
	f := newFixture(t)
	f.matching.list = matching.JobList{Reason: matching.ReasonNoServiceArea}
	w := f.do(http.MethodGet, "/api/delivery/jobs", agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "no_service_area", out["reason"])
	assert.Empty(t, out["jobs"])
}

func TestAcceptJob(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/delivery/jobs/1001/accept", agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "3.90", out["estimated_earnings"])
	assert.Equal(t, 7.12, out["trip_km"])
	assert.Equal(t, float64(2), out["eta_minutes"])

	w = f.do(http.MethodPost, "/api/delivery/jobs/taken/accept", agentToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_assigned", decode(t, w)["error"])
}

func TestUpdateLocation_InvalidCoordinate(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPut, "/api/delivery/location", agentToken, map[string]float64{"lat": 91, "lng": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_coordinate", decode(t, w)["error"])

	w = f.do(http.MethodPut, "/api/delivery/location", agentToken, map[string]float64{"lat": 86, "lng": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/delivery/location", agentToken, map[string]float64{"lat": 40.75, "lng": -73.99})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServiceAreas(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/delivery/service-areas", agentToken, `{"zip_code":"10001","is_primary":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "10001", f.location.added.ZipCode)
	assert.True(t, f.location.added.IsPrimary)

	w = f.do(http.MethodPost, "/api/delivery/service-areas", agentToken, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/api/delivery/service-areas/abc", agentToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodDelete, "/api/delivery/service-areas/7", agentToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSettle(t *testing.T) {
	f := newFixture(t)
	body := `{"ratings":{"food":5,"delivery":4},"tip":"3.50","review":"great"}`
	w := f.do(http.MethodPost, "/api/orders/1001/settle", consumerToken, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cmd := f.settlement.cmd
	assert.Equal(t, types.ID("1001"), cmd.OrderID)
	assert.Equal(t, int64(350), cmd.Tip.Amount)
	require.NotNil(t, cmd.Ratings.Food)
	assert.Equal(t, 5, *cmd.Ratings.Food)
	assert.Nil(t, cmd.Ratings.Chef)

	w = f.do(http.MethodPost, "/api/orders/1001/settle", agentToken, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEarnings(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/earnings", agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "6.99", out["total"])
	assert.Equal(t, "3.00", out["by_type"].(map[string]any)["tip"])
}

func TestNotifications_MarkRead(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/notifications/1/read", consumerToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/notifications/2/read", consumerToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/notifications/x/read", consumerToken, nil).Code)
}

func TestDishes(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/dishes", chefToken, `{"name":"Jollof","price":12.99}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "12.99", decode(t, w)["price"])

	w = f.do(http.MethodPost, "/api/dishes", consumerToken, `{"name":"Jollof","price":12.99}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/dishes/price-suggestion", chefToken, `{"name":"Jollof"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decode(t, w)["error"])
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/orders", consumerToken, nil).Code)
	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/auth/logout", consumerToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/orders", consumerToken, nil).Code)
}
