// README: Order handlers for create/get/history/list/status.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"potluck/internal/http/middleware"
	"potluck/internal/modules/order"
	"potluck/internal/types"
)

type OrderService interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
	Transition(ctx context.Context, cmd order.TransitionCommand) (*order.Order, error)
	Get(ctx context.Context, id, actorID types.ID) (*order.Order, error)
	History(ctx context.Context, id, actorID types.ID) ([]order.HistoryEntry, error)
	ListByParty(ctx context.Context, userID types.ID, role types.Role) ([]order.Order, error)
}

type OrderHandler struct {
	order OrderService
}

func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createItemReq struct {
	DishID    string          `json:"dish_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type pointReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type createOrderReq struct {
	ConsumerID          string          `json:"consumer_id"`
	ChefID              string          `json:"chef_id"`
	Items               []createItemReq `json:"items"`
	DeliveryType        string          `json:"delivery_type"`
	DeliveryAddress     string          `json:"delivery_address"`
	DeliveryZip         string          `json:"delivery_zip"`
	DeliveryLocation    *pointReq       `json:"delivery_location"`
	PaymentMethod       string          `json:"payment_method"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	DeliveryFee         decimal.Decimal `json:"delivery_fee"`
	PlatformFee         decimal.Decimal `json:"platform_fee"`
	Tax                 decimal.Decimal `json:"tax"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	SpecialInstructions string          `json:"special_instructions"`
}

func (r createOrderReq) command(caller types.ID, role types.Role) (order.CreateCommand, string) {
	if r.ConsumerID != "" && types.ID(r.ConsumerID) != caller {
		return order.CreateCommand{}, "consumer_id must match the authenticated caller"
	}
	if !isValidID(r.ChefID) {
		return order.CreateCommand{}, "invalid chef_id"
	}
	cmd := order.CreateCommand{
		ConsumerID:          caller,
		ActorRole:           role,
		ChefID:              types.ID(r.ChefID),
		DeliveryType:        order.DeliveryType(r.DeliveryType),
		DeliveryAddress:     r.DeliveryAddress,
		DeliveryZip:         r.DeliveryZip,
		PaymentMethod:       order.PaymentMethod(r.PaymentMethod),
		SpecialInstructions: r.SpecialInstructions,
	}
	if r.DeliveryLocation != nil {
		cmd.Destination = &types.Point{Lat: r.DeliveryLocation.Lat, Lng: r.DeliveryLocation.Lng}
	}
	for _, it := range r.Items {
		if !isValidID(it.DishID) {
			return order.CreateCommand{}, "invalid dish_id"
		}
		price, err := types.ParseMoney(it.UnitPrice)
		if err != nil {
			return order.CreateCommand{}, err.Error()
		}
		cmd.Items = append(cmd.Items, order.Item{DishID: types.ID(it.DishID), Quantity: it.Quantity, UnitPrice: price.Amount})
	}
	for _, f := range []struct {
		dst *types.Money
		src decimal.Decimal
	}{
		{&cmd.Subtotal, r.Subtotal},
		{&cmd.DeliveryFee, r.DeliveryFee},
		{&cmd.PlatformFee, r.PlatformFee},
		{&cmd.Tax, r.Tax},
		{&cmd.Total, r.TotalAmount},
	} {
		m, err := types.ParseMoney(f.src)
		if err != nil {
			return order.CreateCommand{}, err.Error()
		}
		*f.dst = m
	}
	return cmd, ""
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	cmd, problem := req.command(middleware.CallerID(c), middleware.CallerRole(c))
	if problem != "" {
		writeBadRequest(c, problem)
		return
	}
	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newOrderView(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}

func (h *OrderHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.order.History(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]historyView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newHistoryView(e))
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "history": out})
}

// List returns the caller's orders from the perspective of their role.
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.order.ListByParty(c.Request.Context(), middleware.CallerID(c), middleware.CallerRole(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderView(&orders[i]))
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": out})
}

type transitionReq struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	if req.Status == "" {
		writeBadRequest(c, "missing status")
		return
	}
	o, err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID:   id,
		To:        order.Status(req.Status),
		ActorID:   middleware.CallerID(c),
		ActorRole: middleware.CallerRole(c),
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newOrderView(o))
}
