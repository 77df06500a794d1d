package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables the sync reads and writes.  performances.schedules
// holds the denormalized per-day summary; schedules holds one row per slot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS venues (
        venue_id    VARCHAR(64)  NOT NULL PRIMARY KEY,
        name        VARCHAR(255) NOT NULL,
        total_seats INT          NOT NULL
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS performances (
        performance_id VARCHAR(64)  NOT NULL PRIMARY KEY,
        title          VARCHAR(255) NOT NULL,
        venue_id       VARCHAR(64)  NULL,
        schedule       VARCHAR(512) NOT NULL DEFAULT '',
        start_date     DATE         NOT NULL,
        end_date       DATE         NOT NULL,
        cast_json      JSON         NULL,
        schedules      JSON         NULL
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS schedules (
        schedule_id     VARCHAR(160) NOT NULL PRIMARY KEY,
        performance_id  VARCHAR(64)  NOT NULL,
        show_date       DATE         NOT NULL,
        show_time       CHAR(5)      NOT NULL,
        show_datetime   CHAR(16)     NOT NULL,
        day_of_week     CHAR(3)      NOT NULL,
        available_seats INT          NOT NULL,
        total_seats     INT          NOT NULL,
        status          VARCHAR(16)  NOT NULL,
        casting         JSON         NULL,
        created_at      DATETIME     NOT NULL,
        KEY idx_schedules_performance (performance_id, show_datetime)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables.  Existing tables are left as they are.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
