package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"garagelog/internal/domain"
	"garagelog/internal/repository"
)

const createSettingsTable = `
CREATE TABLE IF NOT EXISTS user_settings (
	user_id INTEGER PRIMARY KEY,
	theme TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	notifications INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
`

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) repository.SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSettingsTable); err != nil {
		return fmt.Errorf("create user_settings table: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Get(ctx context.Context, userID int64) (*domain.Settings, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT user_id, theme, currency, notifications, updated_at
FROM user_settings
WHERE user_id = ?`,
		userID,
	)

	var (
		settings      domain.Settings
		notifications int
	)
	if err := row.Scan(&settings.UserID, &settings.Theme, &settings.Currency, &notifications, &settings.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settings: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	settings.Notifications = notifications != 0

	return &settings, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now().UTC()

	notifications := 0
	if settings.Notifications {
		notifications = 1
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO user_settings (user_id, theme, currency, notifications, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	theme = excluded.theme,
	currency = excluded.currency,
	notifications = excluded.notifications,
	updated_at = excluded.updated_at`,
		settings.UserID,
		settings.Theme,
		settings.Currency,
		notifications,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
