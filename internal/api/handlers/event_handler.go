package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/domain/entities"
	"rideescrow/internal/repository"
	"rideescrow/internal/services"
	"rideescrow/pkg/utils"
)

const maxEventPage = 500

type EventHandler struct {
	escrowService *services.EscrowService
}

func NewEventHandler(escrowService *services.EscrowService) *EventHandler {
	return &EventHandler{escrowService: escrowService}
}

// eventFilter reads ?epoch=&name=&tx_id=&after_seq=&limit= from the query
// string.
func eventFilter(c *gin.Context) (repository.EventFilter, error) {
	filter := repository.EventFilter{
		Epoch: c.Query("epoch"),
		Name:  entities.EventName(c.Query("name")),
		TxID:  c.Query("tx_id"),
	}
	if filter.TxID != "" && !utils.IsTxID(filter.TxID) {
		return filter, errors.New("tx_id must be a transaction id")
	}
	if v := c.Query("after_seq"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return filter, errors.New("after_seq must be a non-negative integer")
		}
		filter.AfterSeq = seq
	}
	filter.Limit = maxEventPage
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(limit, maxEventPage)
	}
	return filter, nil
}

func (h *EventHandler) list(c *gin.Context, filter repository.EventFilter) ([]entities.Event, bool) {
	events, err := h.escrowService.ListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if events == nil {
		events = []entities.Event{}
	}
	return events, true
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(c *gin.Context) {
	filter, err := eventFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if v := c.Query("contract"); v != "" {
		contract, err := entities.ParseAddress(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.Contract = &contract
	}

	events, ok := h.list(c, filter)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// RideEvents handles GET /rides/:address/events
func (h *EventHandler) RideEvents(c *gin.Context) {
	address, ok := rideAddress(c)
	if !ok {
		return
	}
	if _, err := h.escrowService.GetRide(c.Request.Context(), address); err != nil {
		writeCallError(c, err, nil)
		return
	}
	filter, err := eventFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	filter.Contract = &address

	events, ok := h.list(c, filter)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ride": address, "events": events})
}
