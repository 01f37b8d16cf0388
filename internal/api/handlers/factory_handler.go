package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/domain/entities"
	"rideescrow/internal/services"
	"rideescrow/pkg/utils"
)

type FactoryHandler struct {
	escrowService *services.EscrowService
}

func NewFactoryHandler(escrowService *services.EscrowService) *FactoryHandler {
	return &FactoryHandler{escrowService: escrowService}
}

// CreateRideRequest carries amounts as strings so callers can write
// "1 gwei" as well as plain wei.
type CreateRideRequest struct {
	Price  string           `json:"price" binding:"required"`
	Driver entities.Address `json:"driver" binding:"required"`
}

// CreateRide handles POST /factory/rides
func (h *FactoryHandler) CreateRide(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	price, err := utils.ParseAmount(req.Price)
	if err != nil {
		badRequest(c, err)
		return
	}

	receipt, err := h.escrowService.CreateRide(c.Request.Context(), from, entities.Amount(price), req.Driver)
	if err != nil {
		writeCallError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// ListRides handles GET /factory/rides
func (h *FactoryHandler) ListRides(c *gin.Context) {
	rides := h.escrowService.FactoryRides(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"factory": h.escrowService.FactoryAddress(),
		"epoch":   h.escrowService.Epoch(),
		"count":   len(rides),
		"rides":   rides,
	})
}

// RideAt handles GET /factory/rides/:index
func (h *FactoryHandler) RideAt(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}

	address, err := h.escrowService.RideAt(c.Request.Context(), index)
	if err != nil {
		writeCallError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "address": address})
}
