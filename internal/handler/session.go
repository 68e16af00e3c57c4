package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/service"
)

// SessionHandler handles HTTP requests for ride sessions.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// BookRequest is the HTTP request body for booking a ride.
type BookRequest struct {
	PassengerID   string  `json:"passenger_id"`
	PickupLat     float64 `json:"pickup_lat"`
	PickupLng     float64 `json:"pickup_lng"`
	PickupAddress string  `json:"pickup_address,omitempty"`
	DestLat       float64 `json:"dest_lat"`
	DestLng       float64 `json:"dest_lng"`
	DestAddress   string  `json:"dest_address,omitempty"`
}

// AcceptRequest is the HTTP request body for a driver accepting a session.
type AcceptRequest struct {
	DriverID string `json:"driver_id"`
}

// StatusRequest is the HTTP request body for a raw status update.
type StatusRequest struct {
	Status string `json:"status"`
}

// CancelRequest is the HTTP request body for cancelling a session.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SessionResponse is the HTTP representation of a ride session.
type SessionResponse struct {
	ID            string                   `json:"id"`
	PassengerID   string                   `json:"passenger_id"`
	DriverID      string                   `json:"driver_id,omitempty"`
	Status        string                   `json:"status"`
	Phase         string                   `json:"phase"`
	PickupLat     float64                  `json:"pickup_lat"`
	PickupLng     float64                  `json:"pickup_lng"`
	PickupAddress string                   `json:"pickup_address,omitempty"`
	DestLat       float64                  `json:"dest_lat"`
	DestLng       float64                  `json:"dest_lng"`
	DestAddress   string                   `json:"dest_address,omitempty"`
	RoutePolyline string                   `json:"route_polyline,omitempty"`
	DriverArrived bool                     `json:"driver_arrived"`
	DestArrived   bool                     `json:"dest_arrived"`
	CancelReason  string                   `json:"cancel_reason,omitempty"`
	Candidates    []domain.MatchCandidate  `json:"candidates,omitempty"`
}

func sessionResponse(s *domain.RideSession, candidates []domain.MatchCandidate) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		PassengerID:   s.PassengerID,
		DriverID:      s.DriverID,
		Status:        string(s.Status),
		Phase:         string(s.Phase),
		PickupLat:     s.Pickup.Lat,
		PickupLng:     s.Pickup.Lng,
		PickupAddress: s.PickupAddress,
		DestLat:       s.Destination.Lat,
		DestLng:       s.Destination.Lng,
		DestAddress:   s.DestAddress,
		RoutePolyline: geo.EncodePolyline(s.Route),
		DriverArrived: s.DriverArrived,
		DestArrived:   s.DestArrived,
		CancelReason:  s.CancelReason,
		Candidates:    candidates,
	}
}

// Book handles POST /v1/rides
func (h *SessionHandler) Book(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.sessionService.Book(c.Request.Context(), service.BookRequest{
		PassengerID:   req.PassengerID,
		Pickup:        geo.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		PickupAddress: req.PickupAddress,
		Destination:   geo.Point{Lat: req.DestLat, Lng: req.DestLng},
		DestAddress:   req.DestAddress,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, sessionResponse(result.Session, result.Candidates))
}

// Get handles GET /v1/rides/:id
func (h *SessionHandler) Get(c *gin.Context) {
	state, err := h.sessionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sessionResponse(state, nil))
}

// Accept handles POST /v1/rides/:id/accept
func (h *SessionHandler) Accept(c *gin.Context) {
	var req AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	state, err := h.sessionService.Accept(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		// The loser of an accept race still gets the winning snapshot so
		// its UI can reconcile.
		if state != nil {
			c.JSON(mapErrorToHTTPStatus(err), gin.H{
				"error":   err.Error(),
				"session": sessionResponse(state, nil),
			})
			return
		}
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sessionResponse(state, nil))
}

// UpdateStatus handles PUT /v1/rides/:id/status
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	state, err := h.sessionService.UpdateStatus(c.Request.Context(), c.Param("id"), domain.SessionStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sessionResponse(state, nil))
}

// Start handles POST /v1/rides/:id/start
func (h *SessionHandler) Start(c *gin.Context) {
	state, err := h.sessionService.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sessionResponse(state, nil))
}

// Complete handles POST /v1/rides/:id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	state, err := h.sessionService.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sessionResponse(state, nil))
}

// Cancel handles POST /v1/rides/:id/cancel
func (h *SessionHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	state, err := h.sessionService.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sessionResponse(state, nil))
}

// RouteResponse is the HTTP representation of a session's route view.
type RouteResponse struct {
	CanonicalPolyline string `json:"canonical_polyline"`
	RemainingPolyline string `json:"remaining_polyline"`
	RemainingPoints   int    `json:"remaining_points"`
}

// Route handles GET /v1/rides/:id/route
func (h *SessionHandler) Route(c *gin.Context) {
	view, err := h.sessionService.Route(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, RouteResponse{
		CanonicalPolyline: geo.EncodePolyline(view.Canonical),
		RemainingPolyline: geo.EncodePolyline(view.Remaining),
		RemainingPoints:   len(view.Remaining),
	})
}
