package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/naavyaj-29/DormDash/internal/model"
)

const mealKeyPrefix = "meal/"

// MealPebbleRepo keeps meals in an embedded Pebble database, one JSON value
// per key. Pebble has no conditional write, and the database belongs to a
// single process, so the repo serializes decrements with its own mutex.
type MealPebbleRepo struct {
	db  *pebble.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewMealPebbleRepo returns a repo backed by an open Pebble database.
func NewMealPebbleRepo(db *pebble.DB) *MealPebbleRepo {
	return &MealPebbleRepo{db: db, now: time.Now}
}

func mealKey(id model.MealID) []byte { return []byte(mealKeyPrefix + id.Hex()) }

func (r *MealPebbleRepo) put(m *model.Meal) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.db.Set(mealKey(m.ID), b, pebble.Sync)
}

func (r *MealPebbleRepo) get(id model.MealID) (*model.Meal, error) {
	val, closer, err := r.db.Get(mealKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var m model.Meal
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, fmt.Errorf("decode meal %s: %w", id, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return &m, nil
}

// Create stores the meal under a fresh id.
func (r *MealPebbleRepo) Create(ctx context.Context, m model.Meal) (*model.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	m.ID = model.NewMealID()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if err := r.put(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAll scans the meal keyspace and orders the result newest first.
func (r *MealPebbleRepo) ListAll(ctx context.Context) ([]model.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(mealKeyPrefix),
		UpperBound: []byte("meal0"), // '0' sorts right after '/'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	meals := []model.Meal{}
	for iter.First(); iter.Valid(); iter.Next() {
		var m model.Meal
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
		meals = append(meals, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(meals, func(i, j int) bool {
		if !meals[i].CreatedAt.Equal(meals[j].CreatedAt) {
			return meals[i].CreatedAt.After(meals[j].CreatedAt)
		}
		return meals[i].ID.Compare(meals[j].ID) > 0
	})
	return meals, nil
}

// GetByID returns ErrMealNotFound when the key is absent.
func (r *MealPebbleRepo) GetByID(ctx context.Context, id model.MealID) (*model.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.get(id)
}

// DecrementServings holds the repo mutex across read, check and write, which
// makes it the compare-and-swap on servingsLeft > 0 for this backend.
func (r *MealPebbleRepo) DecrementServings(ctx context.Context, id model.MealID) (*model.Meal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if m.SoldOut() {
		return nil, ErrSoldOut
	}
	m.ServingsLeft--
	m.UpdatedAt = r.now().UTC()
	if err := r.put(m); err != nil {
		return nil, err
	}
	return m, nil
}
