package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naavyaj-29/DormDash/internal/model"
	"github.com/naavyaj-29/DormDash/internal/queue"
	"github.com/naavyaj-29/DormDash/internal/repository"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newPebbleStore(t *testing.T) *repository.MealPebbleRepo {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewMealPebbleRepo(db)
}

// recordingPublisher keeps every event it is given and fails when err is set.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.MealEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.MealEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// mockStore is a testify mock of MealStore for failure paths.
type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, meal model.Meal) (*model.Meal, error) {
	args := m.Called(ctx, meal)
	out, _ := args.Get(0).(*model.Meal)
	return out, args.Error(1)
}

func (m *mockStore) ListAll(ctx context.Context) ([]model.Meal, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]model.Meal)
	return out, args.Error(1)
}

func (m *mockStore) GetByID(ctx context.Context, id model.MealID) (*model.Meal, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*model.Meal)
	return out, args.Error(1)
}

func (m *mockStore) DecrementServings(ctx context.Context, id model.MealID) (*model.Meal, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*model.Meal)
	return out, args.Error(1)
}

var errTransient = errors.New("i/o timeout")
