package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/service"
)

// MealHandler exposes listing, creation and reservation of meals.
type MealHandler struct {
	Listings     *service.ListingService
	Reservations *service.ReservationService
	Log          *logrus.Logger
}

// NewMealHandler constructs a MealHandler and panics if a service is nil.
func NewMealHandler(listings *service.ListingService, reservations *service.ReservationService, log *logrus.Logger) *MealHandler {
	if listings == nil || reservations == nil {
		panic("nil service passed to NewMealHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MealHandler{Listings: listings, Reservations: reservations, Log: log}
}

// ListMeals handles GET /api/meals. It returns every meal as a JSON array,
// most recently created first, and an empty array when there are none.
func (h *MealHandler) ListMeals(c echo.Context) error {
	meals, err := h.Listings.List(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, meals)
}

// CreateMeal handles POST /api/meals. The body must be a JSON object (an
// empty body counts as {}); every field is optional and defaulted by the
// listing service. Returns 201 with the stored meal.
func (h *MealHandler) CreateMeal(c echo.Context) error {
	payload, err := decodePayload(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msgInvalidBody})
	}
	if payload == nil {
		payload = map[string]any{}
	}
	meal, err := h.Listings.Create(c.Request().Context(), payload)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, meal)
}

// ReserveMeal handles PATCH /api/meals/:id/reserve. It claims one serving
// and returns the updated meal. A malformed id is 400, an unknown one 404
// and a meal with no servings left 400 "Sold out"; none of these change
// any state.
func (h *MealHandler) ReserveMeal(c echo.Context) error {
	meal, err := h.Reservations.Reserve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, meal)
}

// decodePayload reads exactly one JSON object from r. An empty body or a
// bare null yields nil; trailing data after the object is an error.
func decodePayload(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return payload, nil
}
