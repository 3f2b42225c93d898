package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// mealsTable is the only table the service needs. DATETIME(6) keeps the
// microsecond precision the repository writes; the created_at index backs
// the newest-first listing.
const mealsTable = `CREATE TABLE IF NOT EXISTS meals (
    id            CHAR(24)     NOT NULL PRIMARY KEY,
    title         VARCHAR(255) NOT NULL,
    description   TEXT         NOT NULL,
    chef          VARCHAR(255) NOT NULL,
    chef_bio      TEXT         NOT NULL,
    dorm          VARCHAR(255) NOT NULL,
    price         DOUBLE       NOT NULL DEFAULT 0,
    servings      INT          NOT NULL DEFAULT 1,
    servings_left INT          NOT NULL DEFAULT 1,
    image         TEXT         NOT NULL,
    tags          JSON         NOT NULL,
    dish_matters  TEXT         NOT NULL,
    rating        DOUBLE       NOT NULL DEFAULT 5,
    orders        INT          NOT NULL DEFAULT 0,
    origin_key    VARCHAR(255) NULL,
    lat           DOUBLE       NULL,
    lng           DOUBLE       NULL,
    created_at    DATETIME(6)  NOT NULL,
    updated_at    DATETIME(6)  NOT NULL,
    INDEX idx_meals_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the meals table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, mealsTable)
	return err
}
