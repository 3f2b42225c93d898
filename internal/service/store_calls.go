package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/model"
	"github.com/naavyaj-29/DormDash/internal/queue"
	"github.com/naavyaj-29/DormDash/internal/repository"
)

// publishTimeout bounds how long a write request waits on the broker.
const publishTimeout = 3 * time.Second

// StoreOptions bounds every call into the meal store.
type StoreOptions struct {
	Timeout      time.Duration // per call; exceeding it is a transient failure
	ReadRetries  int           // extra attempts for idempotent reads
	RetryBackoff time.Duration // first pause between read attempts, doubled each time
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.ReadRetries < 0 {
		o.ReadRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 50 * time.Millisecond
	}
	return o
}

// storageErr keeps domain outcomes as they are and folds everything else,
// deadline expiry included, into ErrStorageUnavailable.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrMealNotFound),
		errors.Is(err, repository.ErrSoldOut),
		errors.Is(err, repository.ErrStorageUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStorageUnavailable, err)
}

// readMeal fetches a meal, retrying transient failures with backoff.
func readMeal(ctx context.Context, store MealStore, opts StoreOptions, id model.MealID) (*model.Meal, error) {
	backoff := opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		m, err := store.GetByID(cctx, id)
		cancel()
		if err == nil {
			return m, nil
		}
		err = storageErr(err)
		if !errors.Is(err, repository.ErrStorageUnavailable) || attempt >= opts.ReadRetries {
			return nil, err
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, err
		case <-t.C:
		}
		backoff *= 2
	}
}

// publish sends an event best-effort. The write it describes has already
// happened, so a broker failure is logged and otherwise ignored.
func publish(ctx context.Context, events EventPublisher, log *logrus.Logger, eventType string, m *model.Meal) {
	if events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := queue.NewMealEvent(eventType, m, time.Now())
	if err := events.Publish(pctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event":   eventType,
			"meal_id": m.ID.Hex(),
		}).Warn("event publish failed")
	}
}
