package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"garagelog/internal/domain"
	"garagelog/internal/repository"
)

const createMaintenanceTable = `
CREATE TABLE IF NOT EXISTS maintenance_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date DATETIME NOT NULL,
	service_type TEXT NOT NULL,
	cost REAL NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	user_id INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_maintenance_records_user_id ON maintenance_records(user_id);
`

type MaintenanceRepository struct {
	db *sql.DB
}

func NewMaintenanceRepository(db *sql.DB) repository.MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

func (r *MaintenanceRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMaintenanceTable); err != nil {
		return fmt.Errorf("create maintenance_records table: %w", err)
	}
	return nil
}

func (r *MaintenanceRepository) Create(ctx context.Context, record *domain.MaintenanceRecord) (int64, error) {
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO maintenance_records (date, service_type, cost, notes, user_id)
VALUES (?, ?, ?, ?, ?)`,
		record.Date.UTC(),
		record.ServiceType,
		record.Cost,
		record.Notes,
		record.UserID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert maintenance record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("maintenance last insert id: %w", err)
	}
	record.ID = id
	return id, nil
}

func (r *MaintenanceRepository) ListByUser(ctx context.Context, userID int64, filter domain.ServiceFilter) ([]domain.MaintenanceRecord, error) {
	conditions := []string{"user_id = ?"}
	args := []any{userID}

	if s := strings.TrimSpace(filter.ServiceType); s != "" {
		conditions = append(conditions, "LOWER(service_type) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if filter.MinCost != nil {
		conditions = append(conditions, "cost >= ?")
		args = append(args, *filter.MinCost)
	}
	if filter.MaxCost != nil {
		conditions = append(conditions, "cost <= ?")
		args = append(args, *filter.MaxCost)
	}

	query := fmt.Sprintf(`
SELECT id, date, service_type, cost, notes, user_id
FROM maintenance_records
WHERE %s
ORDER BY date DESC`, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query maintenance records: %w", err)
	}
	defer rows.Close()

	var records []domain.MaintenanceRecord
	for rows.Next() {
		var rec domain.MaintenanceRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.ServiceType, &rec.Cost, &rec.Notes, &rec.UserID); err != nil {
			return nil, fmt.Errorf("scan maintenance record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *MaintenanceRepository) Aggregates(ctx context.Context, userID int64) (repository.MaintenanceAggregates, error) {
	var agg repository.MaintenanceAggregates
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(cost), 0)
FROM maintenance_records
WHERE user_id = ?`,
		userID,
	)
	if err := row.Scan(&agg.Count, &agg.TotalCost); err != nil {
		return repository.MaintenanceAggregates{}, fmt.Errorf("scan maintenance aggregates: %w", err)
	}
	return agg, nil
}
