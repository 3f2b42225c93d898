package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/naavyaj-29/DormDash/internal/model"
)

// MealRepo is the MySQL meal store. Rows live in the meals table created by
// database.EnsureSchema. All timestamps are stored in UTC with microsecond
// precision so values round-trip unchanged.
type MealRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMealRepo returns a new MealRepo bound to the given database.
func NewMealRepo(db *sqlx.DB) *MealRepo { return &MealRepo{db: db, now: time.Now} }

// MealRecord mirrors the schema of the meals table. It is used internally
// when scanning rows; business logic should use model.Meal instead.
type MealRecord struct {
	ID           string          `db:"id"`
	Title        string          `db:"title"`
	Description  string          `db:"description"`
	Chef         string          `db:"chef"`
	ChefBio      string          `db:"chef_bio"`
	Dorm         string          `db:"dorm"`
	Price        float64         `db:"price"`
	Servings     int             `db:"servings"`
	ServingsLeft int             `db:"servings_left"`
	Image        string          `db:"image"`
	Tags         tagList         `db:"tags"`
	DishMatters  string          `db:"dish_matters"`
	Rating       float64         `db:"rating"`
	Orders       int             `db:"orders"`
	OriginKey    sql.NullString  `db:"origin_key"`
	Lat          sql.NullFloat64 `db:"lat"`
	Lng          sql.NullFloat64 `db:"lng"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

const mealColumns = `id, title, description, chef, chef_bio, dorm, price, servings, servings_left,
                     image, tags, dish_matters, rating, orders, origin_key, lat, lng, created_at, updated_at`

const selectMealByID = `SELECT ` + mealColumns + ` FROM meals WHERE id = ?`

// tagList stores the ordered tag sequence in a JSON column.
type tagList []string

func (t tagList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *tagList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = tagList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("tags: unsupported column type %T", src)
	}
	out := []string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = out
	return nil
}

func recordFromMeal(m model.Meal) MealRecord {
	rec := MealRecord{
		ID:           m.ID.Hex(),
		Title:        m.Title,
		Description:  m.Description,
		Chef:         m.Chef,
		ChefBio:      m.ChefBio,
		Dorm:         m.Dorm,
		Price:        m.Price,
		Servings:     m.Servings,
		ServingsLeft: m.ServingsLeft,
		Image:        m.Image,
		Tags:         tagList(m.Tags),
		DishMatters:  m.DishMatters,
		Rating:       m.Rating,
		Orders:       m.Orders,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.OriginKey != nil {
		rec.OriginKey = sql.NullString{String: *m.OriginKey, Valid: true}
	}
	if m.Lat != nil {
		rec.Lat = sql.NullFloat64{Float64: *m.Lat, Valid: true}
	}
	if m.Lng != nil {
		rec.Lng = sql.NullFloat64{Float64: *m.Lng, Valid: true}
	}
	return rec
}

func (rec MealRecord) toMeal() (*model.Meal, error) {
	id, err := model.ParseMealID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("meals row %q: %w", rec.ID, err)
	}
	m := &model.Meal{
		ID:           id,
		Title:        rec.Title,
		Description:  rec.Description,
		Chef:         rec.Chef,
		ChefBio:      rec.ChefBio,
		Dorm:         rec.Dorm,
		Price:        rec.Price,
		Servings:     rec.Servings,
		ServingsLeft: rec.ServingsLeft,
		Image:        rec.Image,
		Tags:         []string(rec.Tags),
		DishMatters:  rec.DishMatters,
		Rating:       rec.Rating,
		Orders:       rec.Orders,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if rec.OriginKey.Valid {
		key := rec.OriginKey.String
		m.OriginKey = &key
	}
	if rec.Lat.Valid {
		lat := rec.Lat.Float64
		m.Lat = &lat
	}
	if rec.Lng.Valid {
		lng := rec.Lng.Float64
		m.Lng = &lng
	}
	return m, nil
}

// Create inserts a new meal with a fresh id and timestamps, then reads the
// row back so the caller sees exactly what was persisted.
func (r *MealRepo) Create(ctx context.Context, m model.Meal) (*model.Meal, error) {
	now := r.now().UTC().Truncate(time.Microsecond)
	m.ID = model.NewMealID()
	m.CreatedAt, m.UpdatedAt = now, now
	rec := recordFromMeal(m)

	const q = `INSERT INTO meals (` + mealColumns + `)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.Title, rec.Description, rec.Chef, rec.ChefBio, rec.Dorm,
		rec.Price, rec.Servings, rec.ServingsLeft, rec.Image, rec.Tags, rec.DishMatters,
		rec.Rating, rec.Orders, rec.OriginKey, rec.Lat, rec.Lng, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, m.ID)
}

// ListAll returns every meal, most recently created first. When the table
// is empty it returns an empty slice and nil error.
func (r *MealRepo) ListAll(ctx context.Context) ([]model.Meal, error) {
	const q = `SELECT ` + mealColumns + ` FROM meals ORDER BY created_at DESC, id DESC`
	var recs []MealRecord
	if err := r.db.SelectContext(ctx, &recs, q); err != nil {
		return nil, err
	}
	meals := make([]model.Meal, 0, len(recs))
	for _, rec := range recs {
		m, err := rec.toMeal()
		if err != nil {
			return nil, err
		}
		meals = append(meals, *m)
	}
	return meals, nil
}

// GetByID retrieves a meal by its id. It returns ErrMealNotFound if there
// is no matching row.
func (r *MealRepo) GetByID(ctx context.Context, id model.MealID) (*model.Meal, error) {
	var rec MealRecord
	if err := r.db.GetContext(ctx, &rec, selectMealByID, id.Hex()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	return rec.toMeal()
}

// DecrementServings takes one serving from the meal. The guarded UPDATE is
// the whole concurrency story: MySQL applies it atomically per row, so of
// two requests racing for the last serving exactly one sees a changed row.
// The post-decrement row is read inside the same transaction.
func (r *MealRepo) DecrementServings(ctx context.Context, id model.MealID) (*model.Meal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback()
		}
	}()

	const q = `UPDATE meals SET servings_left = servings_left - 1, updated_at = ?
               WHERE id = ? AND servings_left > 0`
	res, err := tx.ExecContext(ctx, q, r.now().UTC().Truncate(time.Microsecond), id.Hex())
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		finished = true
		if err := tx.Rollback(); err != nil {
			return nil, err
		}
		return nil, r.missingOrSoldOut(ctx, id)
	}

	var rec MealRecord
	if err := tx.GetContext(ctx, &rec, selectMealByID, id.Hex()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	finished = true
	return rec.toMeal()
}

// missingOrSoldOut explains why the guarded UPDATE touched no row. It only
// reads, so it cannot affect the outcome of the decrement.
func (r *MealRepo) missingOrSoldOut(ctx context.Context, id model.MealID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM meals WHERE id = ?)`, id.Hex()); err != nil {
		return err
	}
	if !exists {
		return ErrMealNotFound
	}
	return ErrSoldOut
}
