package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/service"
)

// DriverHandler handles HTTP requests for driver location and availability.
type DriverHandler struct {
	locationService *service.LocationService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(locationService *service.LocationService) *DriverHandler {
	return &DriverHandler{locationService: locationService}
}

// LocationRequest is the HTTP request body for a driver location sample.
type LocationRequest struct {
	DriverID  string  `json:"driver_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// CapturedAt is optional; when absent the server clock is used.
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// UpdateLocation handles POST /v1/driver/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.CapturedAt.IsZero() {
		req.CapturedAt = time.Now()
	}

	err := h.locationService.Ingest(c.Request.Context(), domain.LocationSample{
		DriverID:   req.DriverID,
		Position:   geo.Point{Lat: req.Latitude, Lng: req.Longitude},
		Status:     domain.DriverStatusOnline,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// UpdateStatus handles POST /v1/driver/location/status?status=ONLINE|OFFLINE
func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	driverID := c.Query("driver_id")
	status := domain.DriverStatus(strings.ToUpper(c.Query("status")))

	err := h.locationService.SetStatus(c.Request.Context(), driverID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// GetLocation handles GET /v1/driver/:id/location
func (h *DriverHandler) GetLocation(c *gin.Context) {
	sample, err := h.locationService.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"driver_id":   sample.DriverID,
		"latitude":    sample.Position.Lat,
		"longitude":   sample.Position.Lng,
		"status":      sample.Status,
		"captured_at": sample.CapturedAt,
	})
}
