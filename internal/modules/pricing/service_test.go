package pricing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potluck/internal/types"
)

type stubOracle struct {
	calls int32
	sug   Suggestion
	err   error
	delay time.Duration
}

func (o *stubOracle) SuggestPrice(ctx context.Context, _ DishAttributes) (Suggestion, error) {
	atomic.AddInt32(&o.calls, 1)
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return Suggestion{}, ctx.Err()
		}
	}
	return o.sug, o.err
}

type stubQuota struct {
	remaining int
	err       error
}

func (q *stubQuota) Consume(context.Context, string) error {
	if q.err != nil {
		return q.err
	}
	if q.remaining <= 0 {
		return ErrQuotaExceeded
	}
	q.remaining--
	return nil
}

var oracleSuggestion = Suggestion{
	Suggested: types.Cents(1200),
	Min:       types.Cents(1000),
	Max:       types.Cents(1500),
	Breakdown: Breakdown{Ingredients: types.Cents(800), Utilities: types.Cents(100), Packaging: types.Cents(50)},
	Source:    SourceOracle,
}

var attrs = DishAttributes{Name: "Butter Chicken", CuisineType: "Indian", PortionSize: "Serves 2", ChefExperience: "experienced"}

func TestSuggest_UsesOracle(t *testing.T) {
	oracle := &stubOracle{sug: oracleSuggestion}
	svc := NewService(oracle, &stubQuota{remaining: 1}, time.Second, nil, nil)

	got := svc.Suggest(context.Background(), "chef-1", attrs)
	assert.Equal(t, SourceOracle, got.Source)
	assert.Equal(t, int64(1200), got.Suggested.Amount)
	assert.Equal(t, int32(1), oracle.calls)
}

func TestSuggest_FallbackOnOracleError(t *testing.T) {
	svc := NewService(&stubOracle{err: errors.New("503")}, nil, time.Second, nil, nil)

	got := svc.Suggest(context.Background(), "chef-1", attrs)
	assert.True(t, got.Fallback())
	assert.Equal(t, FallbackSuggestion(attrs), got)
}

func TestSuggest_FallbackOnTimeout(t *testing.T) {
	svc := NewService(&stubOracle{sug: oracleSuggestion, delay: time.Second}, nil, 20*time.Millisecond, nil, nil)

	start := time.Now()
	got := svc.Suggest(context.Background(), "chef-1", attrs)
	assert.True(t, got.Fallback())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSuggest_FallbackWhenQuotaExhausted(t *testing.T) {
	oracle := &stubOracle{sug: oracleSuggestion}
	svc := NewService(oracle, &stubQuota{remaining: 1}, time.Second, nil, nil)
	ctx := context.Background()

	assert.False(t, svc.Suggest(ctx, "chef-1", attrs).Fallback())
	assert.True(t, svc.Suggest(ctx, "chef-1", attrs).Fallback())
	assert.Equal(t, int32(1), oracle.calls, "oracle is not called once the quota is spent")
}

func TestSuggest_NilOracleAlwaysFallsBack(t *testing.T) {
	svc := NewService(nil, nil, 0, nil, nil)
	assert.True(t, svc.Suggest(context.Background(), "chef-1", attrs).Fallback())
}

func TestSuggest_NewChefCapApplied(t *testing.T) {
	svc := NewService(&stubOracle{sug: oracleSuggestion}, nil, time.Second, nil, nil)
	newChef := attrs
	newChef.ChefExperience = "new"

	got := svc.Suggest(context.Background(), "chef-1", newChef)
	// 9.50 * 1.3 * 1.1 = 13.585 -> 13.59 is above 12.00, so no cap
	assert.Equal(t, int64(1200), got.Suggested.Amount)

	expensive := oracleSuggestion
	expensive.Suggested = types.Cents(1450)
	svc = NewService(&stubOracle{sug: expensive}, nil, time.Second, nil, nil)
	got = svc.Suggest(context.Background(), "chef-1", newChef)
	assert.Equal(t, int64(1359), got.Suggested.Amount)
}

func TestValidateListing(t *testing.T) {
	svc := NewService(&stubOracle{sug: oracleSuggestion}, nil, time.Second, nil, nil)
	ctx := context.Background()

	_, err := svc.ValidateListing(ctx, "chef-1", attrs, types.Cents(3000))
	require.NoError(t, err, "exactly 2x max is allowed")

	_, err = svc.ValidateListing(ctx, "chef-1", attrs, types.Cents(3001))
	assert.ErrorIs(t, err, ErrMispriced)

	_, err = svc.ValidateListing(ctx, "chef-1", attrs, types.Cents(0))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseOracleResponse(t *testing.T) {
	raw := "```json\n" + `{"suggested_price": 12.5, "min_price": 10, "max_price": 15.25,
		"cost_breakdown": {"ingredients": 7, "utilities": 0.5, "packaging": 0.5, "platform_fee": 1.1, "profit": 2.4},
		"reasoning": "cost plus margin"}` + "\n```"

	s, err := parseOracleResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), s.Suggested.Amount)
	assert.Equal(t, int64(1000), s.Min.Amount)
	assert.Equal(t, int64(1525), s.Max.Amount)
	assert.Equal(t, int64(700), s.Breakdown.Ingredients.Amount)
	assert.Equal(t, SourceOracle, s.Source)

	_, err = parseOracleResponse(`{"suggested_price": 20, "min_price": 10, "max_price": 15}`)
	assert.Error(t, err, "suggested above max is inconsistent")

	_, err = parseOracleResponse("not json")
	assert.Error(t, err)
}
