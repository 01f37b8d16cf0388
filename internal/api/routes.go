package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/api/handlers"
	"rideescrow/internal/api/middleware"
	"rideescrow/internal/api/ws"
)

type Router struct {
	factoryHandler *handlers.FactoryHandler
	rideHandler    *handlers.RideHandler
	eventHandler   *handlers.EventHandler
	hub            *ws.Hub
	verifier       middleware.TokenVerifier
	log            *slog.Logger
}

func NewRouter(
	factoryHandler *handlers.FactoryHandler,
	rideHandler *handlers.RideHandler,
	eventHandler *handlers.EventHandler,
	hub *ws.Hub,
	verifier middleware.TokenVerifier,
	log *slog.Logger,
) *Router {
	return &Router{
		factoryHandler: factoryHandler,
		rideHandler:    rideHandler,
		eventHandler:   eventHandler,
		hub:            hub,
		verifier:       verifier,
		log:            log,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.RequestLogger(r.log), gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Reads need no identity.
	engine.GET("/factory/rides", r.factoryHandler.ListRides)
	engine.GET("/factory/rides/:index", r.factoryHandler.RideAt)
	engine.GET("/rides", r.rideHandler.ListRides)
	engine.GET("/rides/:address", r.rideHandler.GetRide)
	engine.GET("/rides/:address/events", r.eventHandler.RideEvents)
	engine.GET("/drivers/:address/rides", r.rideHandler.DriverRides)
	engine.GET("/owners/:address/rides", r.rideHandler.OwnerRides)
	engine.GET("/events", r.eventHandler.ListEvents)
	engine.GET("/events/ws", gin.WrapF(r.hub.ServeWS))

	// Every state-changing call is made on behalf of the token's address.
	calls := engine.Group("/")
	calls.Use(middleware.BearerAuth(r.verifier))
	{
		calls.POST("/factory/rides", r.factoryHandler.CreateRide)
		calls.POST("/rides", r.rideHandler.DeployRide)
		calls.POST("/rides/:address/passenger", r.rideHandler.AddPassenger)
		calls.POST("/rides/:address/start", r.rideHandler.StartRide)
	}
}
