// README: Delivery agent handlers: job discovery, claims, live location and service areas.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"potluck/internal/http/middleware"
	"potluck/internal/modules/location"
	"potluck/internal/modules/matching"
	"potluck/internal/types"
)

type MatchingService interface {
	FindAvailableJobs(ctx context.Context, agentID types.ID) (matching.JobList, error)
	AcceptJob(ctx context.Context, agentID, orderID types.ID) (matching.Job, error)
	ActiveJobs(ctx context.Context, agentID types.ID) ([]matching.Job, error)
}

type LocationService interface {
	AddServiceArea(ctx context.Context, agentID types.ID, in location.AreaInput) (location.ServiceArea, error)
	ListServiceAreas(ctx context.Context, agentID types.ID) ([]location.ServiceArea, error)
	DeactivateServiceArea(ctx context.Context, agentID types.ID, areaID int64) error
	UpdateAgentLocation(ctx context.Context, agentID types.ID, p types.Point) error
}

type DeliveryHandler struct {
	matching MatchingService
	location LocationService
}

func NewDeliveryHandler(m MatchingService, l LocationService) *DeliveryHandler {
	return &DeliveryHandler{matching: m, location: l}
}

func jobViews(jobs []matching.Job) []jobView {
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobView(j))
	}
	return out
}

func (h *DeliveryHandler) Jobs(c *gin.Context) {
	list, err := h.matching.FindAvailableJobs(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"jobs": jobViews(list.Jobs)}
	if list.Reason != "" {
		body["reason"] = string(list.Reason)
	}
	writeJSON(c, http.StatusOK, body)
}

func (h *DeliveryHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := h.matching.AcceptJob(c.Request.Context(), middleware.CallerID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newJobView(job))
}

func (h *DeliveryHandler) Active(c *gin.Context) {
	jobs, err := h.matching.ActiveJobs(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": jobViews(jobs)})
}

func (h *DeliveryHandler) UpdateLocation(c *gin.Context) {
	var req pointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	p := types.Point{Lat: req.Lat, Lng: req.Lng}
	if err := h.location.UpdateAgentLocation(c.Request.Context(), middleware.CallerID(c), p); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type serviceAreaReq struct {
	ZipCode   string    `json:"zip_code"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Location  *pointReq `json:"location"`
	RadiusKm  float64   `json:"radius_km"`
	IsPrimary bool      `json:"is_primary"`
}

func (h *DeliveryHandler) AddServiceArea(c *gin.Context) {
	var req serviceAreaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid json")
		return
	}
	if req.ZipCode == "" {
		writeBadRequest(c, "missing zip_code")
		return
	}
	in := location.AreaInput{
		ZipCode:   req.ZipCode,
		City:      req.City,
		State:     req.State,
		RadiusKm:  req.RadiusKm,
		IsPrimary: req.IsPrimary,
	}
	if req.Location != nil {
		in.Centre = &types.Point{Lat: req.Location.Lat, Lng: req.Location.Lng}
	}
	area, err := h.location.AddServiceArea(c.Request.Context(), middleware.CallerID(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newAreaView(area))
}

func (h *DeliveryHandler) ListServiceAreas(c *gin.Context) {
	areas, err := h.location.ListServiceAreas(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]areaView, 0, len(areas))
	for _, a := range areas {
		out = append(out, newAreaView(a))
	}
	writeJSON(c, http.StatusOK, gin.H{"service_areas": out})
}

func (h *DeliveryHandler) DeleteServiceArea(c *gin.Context) {
	id, ok := pathInt(c)
	if !ok {
		return
	}
	if err := h.location.DeactivateServiceArea(c.Request.Context(), middleware.CallerID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
