package repository

import (
	"context"

	"garagelog/internal/domain"
)

// MaintenanceAggregates summarizes a user's maintenance history.
type MaintenanceAggregates struct {
	Count     int64
	TotalCost float64
}

// FuelAggregates summarizes a user's fuel history.
type FuelAggregates struct {
	TotalCost      float64
	TotalAmount    float64
	AverageMileage float64
}

// MaintenanceRepository defines persistence operations for maintenance
// records. Every read is scoped to a single owning user.
type MaintenanceRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, record *domain.MaintenanceRecord) (int64, error)
	ListByUser(ctx context.Context, userID int64, filter domain.ServiceFilter) ([]domain.MaintenanceRecord, error)
	Aggregates(ctx context.Context, userID int64) (MaintenanceAggregates, error)
}

// FuelRepository defines persistence operations for fuel records.
type FuelRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, record *domain.FuelRecord) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.FuelRecord, error)
	Aggregates(ctx context.Context, userID int64) (FuelAggregates, error)
}

// SettingsRepository stores per-user preferences keyed by user id.
type SettingsRepository interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, userID int64) (*domain.Settings, error)
	Upsert(ctx context.Context, settings *domain.Settings) error
}
