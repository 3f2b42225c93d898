package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/naavyaj-29/DormDash/internal/handler"
)

// RegisterRoutes registers the health check and the meal endpoints.
//
// The rate limiter and response cache are attached per route rather than
// with Group.Use, so that unmatched paths fall straight through to the
// error handler's plain text 404. Either middleware may be nil.
func RegisterRoutes(e *echo.Echo, h *handler.MealHandler, limiter, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	var read, write []echo.MiddlewareFunc
	if limiter != nil {
		read = append(read, limiter)
		write = append(write, limiter)
	}
	if cache != nil {
		// The cache also invalidates itself after successful writes.
		read = append(read, cache)
		write = append(write, cache)
	}

	api := e.Group("/api")
	api.GET("/meals", h.ListMeals, read...)
	api.POST("/meals", h.CreateMeal, write...)
	api.PATCH("/meals/:id/reserve", h.ReserveMeal, write...)
}
