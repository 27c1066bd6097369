package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"potluck/internal/modules/catalog"
	"potluck/internal/types"
)

// memRepo mirrors Store semantics in memory, including the compare-and-set on (status, version).
type memRepo struct {
	mu       sync.Mutex
	orders   map[types.ID]*Order
	history  []HistoryEntry
	counters map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[types.ID]*Order{}, counters: map[string]int{}}
}

func (r *memRepo) Create(_ context.Context, o *Order, day time.Time, initial HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := day.Format(numberLayout)
	r.counters[key]++
	o.Number = FormatNumber(day, r.counters[key])
	cp := *o
	r.orders[o.ID] = &cp
	initial.ID = int64(len(r.history) + 1)
	r.history = append(r.history, initial)
	return nil
}

func (r *memRepo) Get(_ context.Context, id types.ID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) Transition(_ context.Context, c StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[c.OrderID]
	if !ok || o.Status != c.From || o.StatusVersion != c.Version {
		return false, nil
	}
	updated := ApplyChange(*o, c)
	r.orders[c.OrderID] = &updated
	r.history = append(r.history, HistoryEntry{
		ID: int64(len(r.history) + 1), OrderID: c.OrderID, Status: c.To,
		ChangedBy: c.ActorID, Notes: c.Notes, CreatedAt: c.At,
	})
	return true, nil
}

func (r *memRepo) History(_ context.Context, id types.ID) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HistoryEntry
	for _, h := range r.history {
		if h.OrderID == id {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memRepo) ListByParty(_ context.Context, userID types.ID, role types.Role, limit int) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		match := (role == types.RoleConsumer && o.ConsumerID == userID) ||
			(role == types.RoleChef && o.ChefID == userID) ||
			(role == types.RoleDelivery && o.HasAgent() && *o.AgentID == userID)
		if match {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// bindAgent simulates a won claim.
func (r *memRepo) bindAgent(id, agent types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[id].AgentID = &agent
}

func (r *memRepo) historyCount(id types.ID, status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.history {
		if h.OrderID == id && h.Status == status {
			n++
		}
	}
	return n
}

type memCatalog struct {
	chefs  map[types.ID]catalog.Chef
	dishes map[types.ID]catalog.Dish
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		chefs: map[types.ID]catalog.Chef{
			"chef-1":      {ID: "chef-1", UserType: types.RoleChef, Active: true, Available: true},
			"chef-paused": {ID: "chef-paused", UserType: types.RoleChef, Active: true, Available: false},
		},
		dishes: map[types.ID]catalog.Dish{
			"1": {ID: "1", ChefID: "chef-1", Price: types.Cents(1299), PrepMinutes: 45, Available: true},
			"2": {ID: "2", ChefID: "chef-1", Price: types.Cents(500), PrepMinutes: 20, Available: true},
			"3": {ID: "3", ChefID: "chef-1", Price: types.Cents(800), Available: false},
		},
	}
}

func (c *memCatalog) Chef(_ context.Context, id types.ID) (catalog.Chef, error) {
	ch, ok := c.chefs[id]
	if !ok {
		return catalog.Chef{}, catalog.ErrNotFound
	}
	return ch, nil
}

func (c *memCatalog) DishesForOrder(_ context.Context, chefID types.ID, ids []types.ID) (map[types.ID]catalog.Dish, error) {
	out := map[types.ID]catalog.Dish{}
	for _, id := range ids {
		if d, ok := c.dishes[id]; ok && d.ChefID == chefID {
			out[id] = d
		}
	}
	return out, nil
}

type sentNotification struct {
	UserID  types.ID
	Title   string
	OrderID types.ID
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	// stall holds every send until its context ends, like a sink that never answers.
	stall bool
}

func (n *recordingNotifier) Notify(ctx context.Context, userID types.ID, title, _ string, orderID types.ID) {
	if n.stall {
		<-ctx.Done()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, OrderID: orderID})
}

func (n *recordingNotifier) recipients() []types.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.ID, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.UserID
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type countingSettler struct {
	calls int32
	err   error
}

func (s *countingSettler) Close(context.Context, *Order) error {
	atomic.AddInt32(&s.calls, 1)
	return s.err
}

func sequentialIDs() func() types.ID {
	var n int64
	return func() types.ID {
		return types.ID(fmt.Sprintf("order-%d", atomic.AddInt64(&n, 1)))
	}
}
