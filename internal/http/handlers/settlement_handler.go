// README: Settlement handlers: consumer rating/tip submission and earnings summaries.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"potluck/internal/http/middleware"
	"potluck/internal/modules/settlement"
	"potluck/internal/types"
)

type SettlementService interface {
	Settle(ctx context.Context, cmd settlement.SettleCommand) error
	Earnings(ctx context.Context, userID types.ID) (settlement.Summary, error)
}

type SettlementHandler struct {
	settlement SettlementService
}

func NewSettlementHandler(svc SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: svc}
}

type settleReq struct {
	Ratings struct {
		Food     *int `json:"food"`
		Chef     *int `json:"chef"`
		Delivery *int `json:"delivery"`
	} `json:"ratings"`
	Tip    decimal.Decimal `json:"tip"`
	Review string          `json:"review"`
}

func (h *SettlementHandler) Settle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req settleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	tip, err := types.ParseMoney(req.Tip)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	err = h.settlement.Settle(c.Request.Context(), settlement.SettleCommand{
		OrderID:   id,
		ActorID:   middleware.CallerID(c),
		ActorRole: middleware.CallerRole(c),
		Ratings: settlement.Ratings{
			Food:     req.Ratings.Food,
			Chef:     req.Ratings.Chef,
			Delivery: req.Ratings.Delivery,
		},
		Tip:    tip,
		Review: req.Review,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "settled": true})
}

func (h *SettlementHandler) Earnings(c *gin.Context) {
	sum, err := h.settlement.Earnings(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newEarningsView(sum))
}
