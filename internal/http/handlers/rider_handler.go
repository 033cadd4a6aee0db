// README: Rider handlers: periodic location and online-status pushes.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hyperlocal/internal/http/middleware"
	"hyperlocal/internal/modules/rider"
	"hyperlocal/internal/types"
)

type RiderHandler struct {
	rider *rider.Service
}

func NewRiderHandler(svc *rider.Service) *RiderHandler {
	return &RiderHandler{rider: svc}
}

type locationReq struct {
	Lat      *float64 `json:"lat" binding:"required"`
	Lng      *float64 `json:"lng" binding:"required"`
	IsOnline *bool    `json:"is_online" binding:"required"`
}

func (h *RiderHandler) UpdateLocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat, lng and is_online required")
		return
	}
	r, err := h.rider.UpdateLocation(c.Request.Context(), rider.LocationUpdate{
		RiderID:     types.ID(id),
		ActorUserID: types.ID(middleware.CallerUID(c)),
		Position:    types.Point{Lat: *req.Lat, Lng: *req.Lng},
		IsOnline:    *req.IsOnline,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
