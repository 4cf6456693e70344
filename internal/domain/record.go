package domain

import "time"

// MaintenanceRecord is one logged service event owned by a single user.
// Records are append-only: the application never updates or deletes them.
type MaintenanceRecord struct {
	ID          int64
	Date        time.Time
	ServiceType string
	Cost        float64
	Notes       string
	UserID      int64
}

// FuelRecord is one logged fuel purchase with the odometer reading taken
// at the pump.
type FuelRecord struct {
	ID         int64
	Date       time.Time
	Mileage    float64
	FuelCost   float64
	FuelAmount float64
	UserID     int64
}

// ServiceFilter narrows a maintenance listing. Zero values mean "no
// constraint" for the corresponding field.
type ServiceFilter struct {
	ServiceType string
	MinCost     *float64
	MaxCost     *float64
}

// Report aggregates a single user's history. All values default to zero
// when the user has no records.
type Report struct {
	MaintenanceCount     int64
	TotalMaintenanceCost float64
	TotalFuelSpent       float64
	TotalFuelAmount      float64
	AverageMileage       float64
}

// Settings holds per-user display preferences.
type Settings struct {
	UserID        int64
	Theme         string
	Currency      string
	Notifications bool
	UpdatedAt     time.Time
}
