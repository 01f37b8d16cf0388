package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/api/middleware"
	"rideescrow/internal/domain/entities"
	"rideescrow/internal/services"
)

// writeCallError maps a failed call to an HTTP response. Reverts carry the
// contract's reason string and, when available, the reverted receipt.
func writeCallError(c *gin.Context, err error, receipt *services.Receipt) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrInsufficientPayment):
		status = http.StatusPaymentRequired
	case errors.Is(err, entities.ErrAlreadyAdmitted), errors.Is(err, entities.ErrAlreadyStarted):
		status = http.StatusConflict
	case errors.Is(err, entities.ErrNotAuthorized), errors.Is(err, services.ErrReservedDeployer):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrRideNotFound), errors.Is(err, entities.ErrIndexOutOfRange):
		status = http.StatusNotFound
	}

	body := gin.H{"error": err.Error()}
	if reason := entities.RevertReason(err); reason != "" {
		body["error"] = reason
	} else if status == http.StatusNotFound {
		body["error"] = "ride not found"
	}
	if receipt != nil {
		body["receipt"] = receipt
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// caller returns the authenticated caller, answering 401 when there is none.
func caller(c *gin.Context) (entities.Address, bool) {
	from, ok := middleware.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller not authenticated"})
	}
	return from, ok
}
