package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/model"
	"github.com/naavyaj-29/DormDash/internal/queue"
)

// ReservationService claims one serving of a meal per call. It holds no
// state between calls and takes no locks: the only guard against
// overselling is the store's conditional decrement.
type ReservationService struct {
	store  MealStore
	events EventPublisher
	log    *logrus.Logger
	opts   StoreOptions
}

// NewReservationService wires a reservation service. events may be nil.
func NewReservationService(store MealStore, events EventPublisher, log *logrus.Logger, opts StoreOptions) *ReservationService {
	if store == nil {
		panic("nil store passed to NewReservationService")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReservationService{store: store, events: events, log: log, opts: opts.withDefaults()}
}

// Reserve validates rawID, confirms the meal exists and decrements its
// servings by one. Errors are model.ErrInvalidMealID,
// repository.ErrMealNotFound, repository.ErrSoldOut or a wrapped
// repository.ErrStorageUnavailable.
//
// The existence read only sharpens the error (404 instead of sold out); a
// meal that sells out between that read and the decrement is still caught
// by the decrement itself.
func (s *ReservationService) Reserve(ctx context.Context, rawID string) (*model.Meal, error) {
	id, err := model.ParseMealID(rawID)
	if err != nil {
		return nil, err
	}
	if _, err := readMeal(ctx, s.store, s.opts, id); err != nil {
		return nil, err
	}

	// Sent at most once and detached from the client: a dropped connection
	// must not abort a decrement midway, and a committed one stays committed.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()
	meal, err := s.store.DecrementServings(dctx, id)
	if err != nil {
		return nil, storageErr(err)
	}

	s.log.WithFields(logrus.Fields{
		"meal_id":       meal.ID.Hex(),
		"servings_left": meal.ServingsLeft,
	}).Info("serving reserved")
	publish(ctx, s.events, s.log, queue.EventMealReserved, meal)
	return meal, nil
}
