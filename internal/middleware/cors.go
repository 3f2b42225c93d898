package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
)

// CORS answers cross-origin preflights and decorates actual responses. The
// allowed origin comes from configuration ("*" by default); the method and
// header lists are fixed to what the meals API accepts.
func CORS(origin string) echo.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{echo.HeaderContentType},
	})
	return echo.WrapMiddleware(c.Handler)
}

// Preflight ends every OPTIONS request that is not a CORS preflight with an
// empty 204, before routing can turn it into a 404.
func Preflight(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusNoContent)
		}
		return next(c)
	}
}
