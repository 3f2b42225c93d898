package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naavyaj-29/DormDash/internal/model"
)

var mealRowColumns = []string{
	"id", "title", "description", "chef", "chef_bio", "dorm", "price", "servings", "servings_left",
	"image", "tags", "dish_matters", "rating", "orders", "origin_key", "lat", "lng", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*MealRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewMealRepo(sqlx.NewDb(db, "mysql"))
	repo.now = func() time.Time { return time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock
}

func mealRow(id model.MealID, title string, left int, created time.Time) []driver.Value {
	return []driver.Value{
		id.Hex(), title, "", "Anu", "", "North Hall", 6.5, 3, left,
		"", []byte(`["vegan","spicy"]`), "", 5.0, 0, nil, nil, nil, created, created,
	}
}

func TestMealRepoGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := model.NewMealID()
	created := time.Date(2024, 9, 1, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM meals WHERE id = ?")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows(mealRowColumns).AddRow(mealRow(id, "Biryani", 2, created)...))

	m, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "Biryani", m.Title)
	assert.Equal(t, []string{"vegan", "spicy"}, m.Tags)
	assert.Nil(t, m.OriginKey)
	assert.Nil(t, m.Lat)
	assert.True(t, created.Equal(m.CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM meals WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows(mealRowColumns))

	_, err := repo.GetByID(context.Background(), model.NewMealID())
	assert.ErrorIs(t, err, ErrMealNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoListAllOrdersByCreatedAt(t *testing.T) {
	repo, mock := newMockRepo(t)
	newer, older := model.NewMealID(), model.NewMealID()
	t1 := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM meals ORDER BY created_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(mealRowColumns).
			AddRow(mealRow(newer, "Later", 1, t1.Add(time.Hour))...).
			AddRow(mealRow(older, "Earlier", 1, t1)...))

	meals, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, meals, 2)
	assert.Equal(t, "Later", meals[0].Title)
	assert.Equal(t, "Earlier", meals[1].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoListAllEmpty(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM meals ORDER BY").WillReturnRows(sqlmock.NewRows(mealRowColumns))

	meals, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, meals)
	assert.Empty(t, meals)
}

func TestMealRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	key := "MX-Oaxaca"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO meals")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM meals WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows(mealRowColumns).
			AddRow(model.NewMealID().Hex(), "Mole", "", "Luis", "", "", 0.0, 1, 1,
				"", []byte(`[]`), "", 5.0, 0, key, 17.06, -96.72, repo.now(), repo.now()))

	m, err := repo.Create(context.Background(), model.Meal{Title: "Mole", Chef: "Luis", Servings: 1, ServingsLeft: 1, OriginKey: &key})
	require.NoError(t, err)
	require.NotNil(t, m.OriginKey)
	assert.Equal(t, key, *m.OriginKey)
	require.NotNil(t, m.Lng)
	assert.Equal(t, -96.72, *m.Lng)
	assert.Equal(t, []string{}, m.Tags)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoDecrementServings(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := model.NewMealID()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND servings_left > 0")).
		WithArgs(repo.now(), id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM meals WHERE id = ?")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows(mealRowColumns).AddRow(mealRow(id, "Biryani", 1, repo.now())...))
	mock.ExpectCommit()

	m, err := repo.DecrementServings(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ServingsLeft)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoDecrementSoldOut(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := model.NewMealID()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE meals SET servings_left").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(id.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.DecrementServings(context.Background(), id)
	assert.ErrorIs(t, err, ErrSoldOut)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoDecrementMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE meals SET servings_left").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.DecrementServings(context.Background(), model.NewMealID())
	assert.ErrorIs(t, err, ErrMealNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMealRepoDecrementRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE meals SET servings_left").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := repo.DecrementServings(context.Background(), model.NewMealID())
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
