// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hyperlocal/internal/http/handlers"
	"hyperlocal/internal/http/middleware"
	"hyperlocal/internal/infra"
	"hyperlocal/internal/modules/dispatch"
	"hyperlocal/internal/modules/eta"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/modules/rider"
)

type RouterDeps struct {
	Verifier infra.TokenVerifier
	Order    *order.Service
	Rider    *rider.Service
	Dispatch *dispatch.Service
	Tracker  *eta.Tracker
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Dispatch, deps.Tracker)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/accept", orderHandler.Accept)
	api.POST("/orders/:id/assign", orderHandler.Assign)
	api.POST("/orders/:id/dispatch", orderHandler.Dispatch)
	api.GET("/orders/:id/dispatch/suggestion", orderHandler.SuggestRider)
	api.POST("/orders/:id/status", orderHandler.UpdateStatus)
	api.POST("/orders/:id/payment", orderHandler.UpdatePayment)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.GET("/orders/:id/eta", orderHandler.ETA)
	api.GET("/shops/:id/orders", orderHandler.ListByShop)

	riderHandler := handlers.NewRiderHandler(deps.Rider)
	api.PUT("/riders/:id/location", riderHandler.UpdateLocation)

	return r
}
