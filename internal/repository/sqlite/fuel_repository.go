package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"garagelog/internal/domain"
	"garagelog/internal/repository"
)

const createFuelTable = `
CREATE TABLE IF NOT EXISTS fuel_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date DATETIME NOT NULL,
	mileage REAL NOT NULL,
	fuel_cost REAL NOT NULL,
	fuel_amount REAL NOT NULL,
	user_id INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_fuel_records_user_id ON fuel_records(user_id);
`

type FuelRepository struct {
	db *sql.DB
}

func NewFuelRepository(db *sql.DB) repository.FuelRepository {
	return &FuelRepository{db: db}
}

func (r *FuelRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createFuelTable); err != nil {
		return fmt.Errorf("create fuel_records table: %w", err)
	}
	return nil
}

func (r *FuelRepository) Create(ctx context.Context, record *domain.FuelRecord) (int64, error) {
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO fuel_records (date, mileage, fuel_cost, fuel_amount, user_id)
VALUES (?, ?, ?, ?, ?)`,
		record.Date.UTC(),
		record.Mileage,
		record.FuelCost,
		record.FuelAmount,
		record.UserID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert fuel record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("fuel last insert id: %w", err)
	}
	record.ID = id
	return id, nil
}

func (r *FuelRepository) ListByUser(ctx context.Context, userID int64) ([]domain.FuelRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, date, mileage, fuel_cost, fuel_amount, user_id
FROM fuel_records
WHERE user_id = ?
ORDER BY date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query fuel records: %w", err)
	}
	defer rows.Close()

	var records []domain.FuelRecord
	for rows.Next() {
		var rec domain.FuelRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Mileage, &rec.FuelCost, &rec.FuelAmount, &rec.UserID); err != nil {
			return nil, fmt.Errorf("scan fuel record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *FuelRepository) Aggregates(ctx context.Context, userID int64) (repository.FuelAggregates, error) {
	var agg repository.FuelAggregates
	row := r.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(fuel_cost), 0), COALESCE(SUM(fuel_amount), 0), COALESCE(AVG(mileage), 0)
FROM fuel_records
WHERE user_id = ?`,
		userID,
	)
	if err := row.Scan(&agg.TotalCost, &agg.TotalAmount, &agg.AverageMileage); err != nil {
		return repository.FuelAggregates{}, fmt.Errorf("scan fuel aggregates: %w", err)
	}
	return agg, nil
}
