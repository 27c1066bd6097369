// README: JSON views of module types. Money is rendered as a fixed two-decimal string.
package handlers

import (
	"math"
	"time"

	"potluck/internal/modules/catalog"
	"potluck/internal/modules/location"
	"potluck/internal/modules/matching"
	"potluck/internal/modules/notification"
	"potluck/internal/modules/order"
	"potluck/internal/modules/pricing"
	"potluck/internal/modules/settlement"
	"potluck/internal/types"
)

func money(m types.Money) string {
	return m.Decimal().StringFixed(2)
}

type pointView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func newPointView(p *types.Point) *pointView {
	if p == nil {
		return nil
	}
	return &pointView{Lat: p.Lat, Lng: p.Lng}
}

type itemView struct {
	DishID    types.ID `json:"dish_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice string   `json:"unit_price"`
}

type orderView struct {
	ID                  types.ID   `json:"id"`
	OrderNumber         string     `json:"order_number"`
	ConsumerID          types.ID   `json:"consumer_id"`
	ChefID              types.ID   `json:"chef_id"`
	DeliveryAgentID     *types.ID  `json:"delivery_agent_id"`
	Items               []itemView `json:"items"`
	Subtotal            string     `json:"subtotal"`
	DeliveryFee         string     `json:"delivery_fee"`
	PlatformFee         string     `json:"platform_fee"`
	Tax                 string     `json:"tax"`
	TotalAmount         string     `json:"total_amount"`
	Currency            string     `json:"currency"`
	PaymentMethod       string     `json:"payment_method"`
	PaymentStatus       string     `json:"payment_status"`
	DeliveryType        string     `json:"delivery_type"`
	DeliveryAddress     string     `json:"delivery_address,omitempty"`
	DeliveryZip         string     `json:"delivery_zip,omitempty"`
	Destination         *pointView `json:"delivery_location,omitempty"`
	Status              string     `json:"order_status"`
	SpecialInstructions string     `json:"special_instructions,omitempty"`
	PlacedAt            time.Time  `json:"order_placed_at"`
	AcceptedAt          *time.Time `json:"accepted_at,omitempty"`
	ExpectedReadyAt     *time.Time `json:"expected_ready_time,omitempty"`
	AssignedAt          *time.Time `json:"assigned_at,omitempty"`
	PickedUpAt          *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	SettledAt           *time.Time `json:"settled_at,omitempty"`
}

func newOrderView(o *order.Order) orderView {
	items := make([]itemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemView{DishID: it.DishID, Quantity: it.Quantity, UnitPrice: money(types.Cents(it.UnitPrice))}
	}
	currency := o.Total.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return orderView{
		ID:                  o.ID,
		OrderNumber:         o.Number,
		ConsumerID:          o.ConsumerID,
		ChefID:              o.ChefID,
		DeliveryAgentID:     o.AgentID,
		Items:               items,
		Subtotal:            money(o.Subtotal),
		DeliveryFee:         money(o.DeliveryFee),
		PlatformFee:         money(o.PlatformFee),
		Tax:                 money(o.Tax),
		TotalAmount:         money(o.Total),
		Currency:            currency,
		PaymentMethod:       string(o.PaymentMethod),
		PaymentStatus:       o.PaymentStatus,
		DeliveryType:        string(o.DeliveryType),
		DeliveryAddress:     o.DeliveryAddress,
		DeliveryZip:         o.DeliveryZip,
		Destination:         newPointView(o.Destination),
		Status:              string(o.Status),
		SpecialInstructions: o.SpecialInstructions,
		PlacedAt:            o.PlacedAt,
		AcceptedAt:          o.AcceptedAt,
		ExpectedReadyAt:     o.ExpectedReadyAt,
		AssignedAt:          o.AssignedAt,
		PickedUpAt:          o.PickedUpAt,
		DeliveredAt:         o.DeliveredAt,
		CancelledAt:         o.CancelledAt,
		SettledAt:           o.SettledAt,
	}
}

type historyView struct {
	Status    string    `json:"status"`
	ChangedBy types.ID  `json:"changed_by"`
	Notes     string    `json:"notes,omitempty"`
	At        time.Time `json:"created_at"`
}

func newHistoryView(h order.HistoryEntry) historyView {
	return historyView{Status: string(h.Status), ChangedBy: h.ChangedBy, Notes: h.Notes, At: h.CreatedAt}
}

type jobView struct {
	OrderID           types.ID   `json:"order_id"`
	OrderNumber       string     `json:"order_number"`
	ChefID            types.ID   `json:"chef_id"`
	Status            string     `json:"order_status"`
	Pickup            *pointView `json:"pickup_location,omitempty"`
	DeliveryAddress   string     `json:"delivery_address"`
	DeliveryZip       string     `json:"delivery_zip"`
	Destination       *pointView `json:"delivery_location,omitempty"`
	DistanceKm        *float64   `json:"distance_km,omitempty"`
	TripKm            *float64   `json:"trip_km,omitempty"`
	DeliveryFee       string     `json:"delivery_fee"`
	EstimatedEarnings string     `json:"estimated_earnings"`
	ETAMinutes        int        `json:"eta_minutes"`
	PlacedAt          time.Time  `json:"order_placed_at"`
}

func newJobView(j matching.Job) jobView {
	return jobView{
		OrderID:           j.OrderID,
		OrderNumber:       j.Number,
		ChefID:            j.ChefID,
		Status:            string(j.Status),
		Pickup:            newPointView(j.Pickup),
		DeliveryAddress:   j.DeliveryAddress,
		DeliveryZip:       j.DeliveryZip,
		Destination:       newPointView(j.Destination),
		DistanceKm:        round2(j.DistanceKm),
		TripKm:            round2(j.TripKm),
		DeliveryFee:       money(j.DeliveryFee),
		EstimatedEarnings: money(j.EstimatedEarnings),
		ETAMinutes:        int(math.Ceil(j.ETA.Minutes())),
		PlacedAt:          j.PlacedAt,
	}
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

type areaView struct {
	ID        int64      `json:"id"`
	ZipCode   string     `json:"zip_code"`
	City      string     `json:"city"`
	State     string     `json:"state"`
	Centre    *pointView `json:"location,omitempty"`
	RadiusKm  float64    `json:"radius_km"`
	IsPrimary bool       `json:"is_primary"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

func newAreaView(a location.ServiceArea) areaView {
	return areaView{
		ID: a.ID, ZipCode: a.ZipCode, City: a.City, State: a.State, Centre: newPointView(a.Centre),
		RadiusKm: a.RadiusKm, IsPrimary: a.IsPrimary, IsActive: a.IsActive, CreatedAt: a.CreatedAt,
	}
}

type entryView struct {
	OrderID types.ID  `json:"order_id"`
	Amount  string    `json:"amount"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
	At      time.Time `json:"created_at"`
}

type earningsView struct {
	UserID types.ID          `json:"user_id"`
	ByType map[string]string `json:"by_type"`
	Total  string            `json:"total"`
	Recent []entryView       `json:"recent"`
}

func newEarningsView(s settlement.Summary) earningsView {
	v := earningsView{UserID: s.UserID, ByType: map[string]string{}, Total: money(s.Total), Recent: []entryView{}}
	for t, m := range s.ByType {
		v.ByType[string(t)] = money(m)
	}
	for _, e := range s.Recent {
		v.Recent = append(v.Recent, entryView{OrderID: e.OrderID, Amount: money(e.Amount), Type: string(e.Type), Status: e.Status, At: e.At})
	}
	return v
}

type notificationView struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OrderID   *types.ID `json:"order_id,omitempty"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func newNotificationView(n notification.Notification) notificationView {
	return notificationView{ID: n.ID, Title: n.Title, Message: n.Message, OrderID: n.OrderID, Read: n.Read, CreatedAt: n.CreatedAt}
}

type dishView struct {
	ID          types.ID `json:"id"`
	ChefID      types.ID `json:"chef_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	CuisineType string   `json:"cuisine_type"`
	PortionSize string   `json:"portion_size"`
	PrepMinutes int      `json:"prep_time_minutes"`
	Available   bool     `json:"is_available"`
}

func newDishView(d catalog.Dish) dishView {
	return dishView{
		ID: d.ID, ChefID: d.ChefID, Name: d.Name, Description: d.Description, Price: money(d.Price),
		CuisineType: d.CuisineType, PortionSize: d.PortionSize, PrepMinutes: d.PrepMinutes, Available: d.Available,
	}
}

type suggestionView struct {
	Suggested string            `json:"suggested_price"`
	Min       string            `json:"min_price"`
	Max       string            `json:"max_price"`
	Breakdown map[string]string `json:"breakdown"`
	Reasoning string            `json:"reasoning,omitempty"`
	Source    string            `json:"source"`
}

func newSuggestionView(s pricing.Suggestion) suggestionView {
	return suggestionView{
		Suggested: money(s.Suggested),
		Min:       money(s.Min),
		Max:       money(s.Max),
		Breakdown: map[string]string{
			"ingredients":  money(s.Breakdown.Ingredients),
			"utilities":    money(s.Breakdown.Utilities),
			"packaging":    money(s.Breakdown.Packaging),
			"platform_fee": money(s.Breakdown.PlatformFee),
			"profit":       money(s.Breakdown.Profit),
		},
		Reasoning: s.Reasoning,
		Source:    s.Source,
	}
}
