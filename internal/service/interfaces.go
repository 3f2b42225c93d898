package service

import (
	"context"

	"github.com/naavyaj-29/DormDash/internal/model"
	"github.com/naavyaj-29/DormDash/internal/queue"
)

// MealStore is the durable meal collection. Implementations own all
// persisted meal state; services keep no copies between calls.
type MealStore interface {
	// Create persists m under a store-assigned id and timestamps and
	// returns the canonical stored form.
	Create(ctx context.Context, m model.Meal) (*model.Meal, error)
	// ListAll returns every meal, newest first. Never nil on success.
	ListAll(ctx context.Context) ([]model.Meal, error)
	// GetByID returns repository.ErrMealNotFound for unknown ids.
	GetByID(ctx context.Context, id model.MealID) (*model.Meal, error)
	// DecrementServings atomically takes one serving when servingsLeft > 0
	// and returns the updated meal, or fails with repository.ErrSoldOut /
	// repository.ErrMealNotFound leaving state untouched.
	DecrementServings(ctx context.Context, id model.MealID) (*model.Meal, error)
}

// EventPublisher delivers meal events to whatever broker is configured.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.MealEvent) error
}
