// Package queue defines the meal events exchanged over the message broker
// and the publishers and consumers that move them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/naavyaj-29/DormDash/internal/model"
)

// Event types. With RabbitMQ each type is also the name of its durable queue.
const (
	EventMealListed   = "meal.listed"
	EventMealReserved = "meal.reserved"
)

// MealEvent is published after a meal is listed or a serving is reserved.
// It carries enough for downstream consumers to log, notify or feed
// analytics without querying the meal store.
type MealEvent struct {
	EventID      string `json:"event_id"`
	Type         string `json:"type"`
	MealID       string `json:"meal_id"`
	Title        string `json:"title"`
	Chef         string `json:"chef"`
	Dorm         string `json:"dorm"`
	ServingsLeft int    `json:"servings_left"`
	OccurredAt   string `json:"occurred_at"`
}

// NewMealEvent snapshots m into an event of the given type.
func NewMealEvent(eventType string, m *model.Meal, at time.Time) MealEvent {
	return MealEvent{
		EventID:      uuid.NewString(),
		Type:         eventType,
		MealID:       m.ID.Hex(),
		Title:        m.Title,
		Chef:         m.Chef,
		Dorm:         m.Dorm,
		ServingsLeft: m.ServingsLeft,
		OccurredAt:   at.UTC().Format(time.RFC3339),
	}
}
