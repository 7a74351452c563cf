// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"checkride/internal/http/handlers"
	"checkride/internal/http/middleware"
)

type RouterDeps struct {
	Booking *handlers.BookingHandler
	Payment *handlers.PaymentHandler
	Admin   *handlers.AdminHandler

	AdminAPIKey string
	Log         *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))

	api := r.Group("/api")
	{
		api.POST("/bookings", deps.Booking.Create)
		api.GET("/bookings/:id", deps.Booking.Get)
		api.POST("/bookings/:id/cancel", deps.Booking.Cancel)
		api.GET("/bookings/:id/availability", deps.Booking.Availability)
		api.POST("/bookings/:id/respond", deps.Booking.Respond)
		api.GET("/bookings/:id/responses", deps.Booking.Responses)

		api.POST("/payments/create-checkout-session", deps.Payment.CreateCheckoutSession)
		api.POST("/payments/webhook", deps.Payment.Webhook)

		admin := api.Group("/admin", middleware.AdminAuth(deps.AdminAPIKey))
		{
			admin.GET("/bookings", deps.Admin.ListBookings)
			admin.GET("/bookings/:id/audit", deps.Admin.AuditTrail)
			admin.GET("/bookings/:id/diagnostic", deps.Admin.Diagnostic)
			admin.POST("/bookings/:id/reset", deps.Admin.Reset)
			admin.POST("/bookings/:id/refund", deps.Admin.ProcessRefund)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
