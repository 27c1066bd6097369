// README: Chef dish listing handlers, including price suggestions.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"potluck/internal/http/middleware"
	"potluck/internal/modules/catalog"
	"potluck/internal/modules/pricing"
	"potluck/internal/types"
)

type CatalogService interface {
	CreateDish(ctx context.Context, chefID types.ID, in catalog.DishInput) (catalog.Dish, error)
	SuggestPrice(ctx context.Context, chefID types.ID, attrs pricing.DishAttributes) (pricing.Suggestion, error)
}

type DishHandler struct {
	catalog CatalogService
}

func NewDishHandler(svc CatalogService) *DishHandler {
	return &DishHandler{catalog: svc}
}

type createDishReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CuisineType string          `json:"cuisine_type"`
	PortionSize string          `json:"portion_size"`
	PrepMinutes int             `json:"prep_time_minutes"`
}

func (h *DishHandler) Create(c *gin.Context) {
	var req createDishReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	price, err := types.ParseMoney(req.Price)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	dish, err := h.catalog.CreateDish(c.Request.Context(), middleware.CallerID(c), catalog.DishInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		CuisineType: req.CuisineType,
		PortionSize: req.PortionSize,
		PrepMinutes: req.PrepMinutes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newDishView(dish))
}

func (h *DishHandler) SuggestPrice(c *gin.Context) {
	var attrs pricing.DishAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	if attrs.Name == "" {
		writeBadRequest(c, "missing name")
		return
	}
	s, err := h.catalog.SuggestPrice(c.Request.Context(), middleware.CallerID(c), attrs)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newSuggestionView(s))
}
