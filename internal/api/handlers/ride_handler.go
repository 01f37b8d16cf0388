package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/domain/entities"
	"rideescrow/internal/services"
	"rideescrow/pkg/utils"
)

type RideHandler struct {
	escrowService *services.EscrowService
}

func NewRideHandler(escrowService *services.EscrowService) *RideHandler {
	return &RideHandler{escrowService: escrowService}
}

func rideAddress(c *gin.Context) (entities.Address, bool) {
	address, err := entities.ParseAddress(c.Param("address"))
	if err != nil {
		badRequest(c, err)
		return address, false
	}
	return address, true
}

type DeployRideRequest struct {
	Owner  entities.Address `json:"owner" binding:"required"`
	Price  string           `json:"price" binding:"required"`
	Driver entities.Address `json:"driver" binding:"required"`
}

// DeployRide handles POST /rides: a standalone deployment with an explicit
// owner.
func (h *RideHandler) DeployRide(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req DeployRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	price, err := utils.ParseAmount(req.Price)
	if err != nil {
		badRequest(c, err)
		return
	}

	receipt, err := h.escrowService.DeployRide(c.Request.Context(), from, req.Owner, entities.Amount(price), req.Driver)
	if err != nil {
		writeCallError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// ListRides handles GET /rides: every ride, factory or standalone.
func (h *RideHandler) ListRides(c *gin.Context) {
	rides, err := h.escrowService.ListRides(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rides), "rides": rides})
}

// GetRide handles GET /rides/:address
func (h *RideHandler) GetRide(c *gin.Context) {
	address, ok := rideAddress(c)
	if !ok {
		return
	}

	ride, err := h.escrowService.GetRide(c.Request.Context(), address)
	if err != nil {
		writeCallError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, ride)
}

// AddPassengerRequest names the passenger and the value sent with the call.
// Value defaults to nothing, which the ride rejects unless its price is zero.
type AddPassengerRequest struct {
	Candidate entities.Address `json:"candidate" binding:"required"`
	Value     string           `json:"value"`
}

// AddPassenger handles POST /rides/:address/passenger
func (h *RideHandler) AddPassenger(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	address, ok := rideAddress(c)
	if !ok {
		return
	}
	var req AddPassengerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var value uint64
	if req.Value != "" {
		v, err := utils.ParseAmount(req.Value)
		if err != nil {
			badRequest(c, err)
			return
		}
		value = v
	}

	receipt, err := h.escrowService.AddPassenger(c.Request.Context(), from, address, req.Candidate, entities.Amount(value))
	if err != nil {
		writeCallError(c, err, receipt)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// StartRide handles POST /rides/:address/start
func (h *RideHandler) StartRide(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	address, ok := rideAddress(c)
	if !ok {
		return
	}

	receipt, err := h.escrowService.StartRide(c.Request.Context(), from, address)
	if err != nil {
		writeCallError(c, err, receipt)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// DriverRides handles GET /drivers/:address/rides
func (h *RideHandler) DriverRides(c *gin.Context) {
	address, ok := rideAddress(c)
	if !ok {
		return
	}

	rides, err := h.escrowService.RidesByDriver(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": address, "rides": rides})
}

// OwnerRides handles GET /owners/:address/rides
func (h *RideHandler) OwnerRides(c *gin.Context) {
	address, ok := rideAddress(c)
	if !ok {
		return
	}

	rides, err := h.escrowService.RidesByOwner(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": address, "rides": rides})
}
