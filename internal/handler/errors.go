package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/model"
	"github.com/naavyaj-29/DormDash/internal/repository"
)

// Error messages clients can match on. They are part of the API.
const (
	msgInvalidID    = "Invalid meal id"
	msgNotFound     = "Meal not found"
	msgSoldOut      = "Sold out"
	msgInvalidBody  = "invalid request body"
	msgInternal     = "internal server error"
	notFoundPayload = "Not found"
)

// writeError maps domain errors to their stable status and message. Anything
// else is an infrastructure failure: it is logged with its cause and the
// client only sees a generic 500.
func writeError(c echo.Context, log *logrus.Logger, err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidMealID):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msgInvalidID})
	case errors.Is(err, repository.ErrMealNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": msgNotFound})
	case errors.Is(err, repository.ErrSoldOut):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msgSoldOut})
	}
	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Request().URL.Path,
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msgInternal})
}

// ErrorHandler replaces echo's default error handler. Unknown paths and
// unsupported methods get a plain text 404; other echo errors keep their
// status with a JSON body.
func ErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				_ = c.String(http.StatusNotFound, notFoundPayload)
			default:
				_ = c.JSON(he.Code, echo.Map{"error": http.StatusText(he.Code)})
			}
			return
		}
		_ = writeError(c, log, err)
	}
}
