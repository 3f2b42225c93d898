package service

import (
	"context"
	"encoding/json"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/model"
	"github.com/naavyaj-29/DormDash/internal/queue"
)

// Placeholders used when a listing arrives without them.
const (
	DefaultTitle  = "Untitled Meal"
	DefaultChef   = "Anonymous Chef"
	DefaultRating = 5.0
)

// ListingService turns raw creation payloads into canonical meals and lists
// what is stored. It performs defaulting and type coercion only; values
// such as a negative price are accepted unchanged.
type ListingService struct {
	store  MealStore
	events EventPublisher
	log    *logrus.Logger
	opts   StoreOptions
}

// NewListingService wires a listing service. events may be nil.
func NewListingService(store MealStore, events EventPublisher, log *logrus.Logger, opts StoreOptions) *ListingService {
	if store == nil {
		panic("nil store passed to NewListingService")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ListingService{store: store, events: events, log: log, opts: opts.withDefaults()}
}

// Normalize applies the defaulting rules to a decoded JSON object. Each
// rule is independent of the others except servingsLeft, which falls back
// to the already defaulted servings.
func (s *ListingService) Normalize(payload map[string]any) model.Meal {
	m := model.Meal{
		Title:       stringOr(payload, "title", DefaultTitle),
		Description: stringOr(payload, "description", ""),
		Chef:        stringOr(payload, "chef", DefaultChef),
		ChefBio:     stringOr(payload, "chefBio", ""),
		Dorm:        stringOr(payload, "dorm", ""),
		Image:       stringOr(payload, "image", ""),
		DishMatters: stringOr(payload, "dishMatters", stringOr(payload, "culturalNote", "")),
		Price:       numberOr(payload, "price", 0),
		Rating:      numberOr(payload, "rating", DefaultRating),
		Orders:      intOr(payload, "orders", 0),
		Servings:    intOr(payload, "servings", 1),
		Tags:        stringList(payload["tags"]),
	}
	m.ServingsLeft = intOr(payload, "servingsLeft", m.Servings)

	if key, ok := nonEmptyString(payload, "originKey"); ok {
		m.OriginKey = &key
		lat, latOK := number(payload["lat"])
		lng, lngOK := number(payload["lng"])
		// coordinates are all or nothing
		if latOK && lngOK {
			m.Lat, m.Lng = &lat, &lng
		}
	}
	return m
}

// Create normalizes payload, stores it and announces the new listing.
func (s *ListingService) Create(ctx context.Context, payload map[string]any) (*model.Meal, error) {
	m := s.Normalize(payload)

	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	created, err := s.store.Create(cctx, m)
	if err != nil {
		return nil, storageErr(err)
	}
	publish(ctx, s.events, s.log, queue.EventMealListed, created)
	return created, nil
}

// List returns every meal, newest first.
func (s *ListingService) List(ctx context.Context) ([]model.Meal, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	meals, err := s.store.ListAll(cctx)
	if err != nil {
		return nil, storageErr(err)
	}
	if meals == nil {
		meals = []model.Meal{}
	}
	return meals, nil
}

func nonEmptyString(p map[string]any, key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok && s != ""
}

func stringOr(p map[string]any, key, def string) string {
	if s, ok := nonEmptyString(p, key); ok {
		return s
	}
	return def
}

// number accepts the numeric shapes a decoded JSON body can hold.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func numberOr(p map[string]any, key string, def float64) float64 {
	if f, ok := number(p[key]); ok {
		return f
	}
	return def
}

// intOr treats fractional or out-of-range numbers like absent ones.
func intOr(p map[string]any, key string, def int) int {
	f, ok := number(p[key])
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return def
	}
	return int(f)
}

// stringList keeps the string elements of a JSON array in order. Anything
// that is not an array becomes an empty list.
func stringList(v any) []string {
	out := []string{}
	switch items := v.(type) {
	case []any:
		for _, it := range items {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, items...)
	}
	return out
}
