package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"rental/internal/domain"
	"rental/internal/handler"
	"rental/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RentalHandler  *handler.RentalHandler
	VehicleHandler *handler.VehicleHandler
	PaymentHandler *handler.PaymentHandler
	ReceiptHandler *handler.ReceiptHandler
	UserHandler    *handler.UserHandler
	Authenticator  *middleware.Authenticator
	RedisClient    *redis.Client
	IdempotencyTTL time.Duration
	NewRelicApp    *newrelic.Application
	Logger         *log.Entry
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	customer := middleware.RequireRole(domain.RoleCustomer)
	owner := middleware.RequireRole(domain.RoleOwner)

	var idempotencyStore redis.Cmdable
	if deps.RedisClient != nil {
		idempotencyStore = deps.RedisClient
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Authenticator))
	v1.Use(middleware.NewRelicAttributes())
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore, deps.IdempotencyTTL))
	{
		v1.GET("/me", deps.UserHandler.Me)

		vehicles := v1.Group("/vehicles/:id")
		{
			vehicles.GET("/quote", deps.VehicleHandler.Quote)
			vehicles.GET("/availability", deps.VehicleHandler.Availability)
			vehicles.GET("/rentals", owner, deps.VehicleHandler.ListRentals)
		}

		rentals := v1.Group("/rentals")
		{
			rentals.POST("", customer, deps.RentalHandler.Create)
			rentals.GET("", customer, deps.RentalHandler.List)
			rentals.GET("/:id", deps.RentalHandler.Get)
			rentals.POST("/:id/approve", owner, deps.RentalHandler.Approve)
			rentals.POST("/:id/reject", owner, deps.RentalHandler.Reject)
			rentals.POST("/:id/cancel", customer, deps.RentalHandler.Cancel)
			rentals.POST("/:id/renew", customer, deps.RentalHandler.Renew)
			rentals.POST("/:id/payments", customer, deps.PaymentHandler.Submit)
			rentals.GET("/:id/payments", deps.PaymentHandler.ListForRental)
			rentals.POST("/:id/cash-slip", owner, deps.PaymentHandler.IssueCashSlip)
		}

		payments := v1.Group("/payments")
		{
			payments.GET("/:id", deps.PaymentHandler.Get)
			payments.GET("/:id/receipt", deps.ReceiptHandler.Get)
			payments.GET("/:id/receipt.pdf", deps.ReceiptHandler.Document)
		}
	}

	return router
}
