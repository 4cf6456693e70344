package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"garagelog/internal/domain"
	"garagelog/internal/repository"
)

// ValidationError reports a rejected form field. It never reaches the store:
// a request failing validation creates no record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RecordService coordinates maintenance and fuel record operations for a
// single identified user. The user id is always an explicit argument; there
// is no ambient "current user" below the HTTP layer.
type RecordService interface {
	AddService(ctx context.Context, userID int64, serviceType, cost, notes string) (*domain.MaintenanceRecord, error)
	ListServices(ctx context.Context, userID int64, serviceType, minCost, maxCost string) ([]domain.MaintenanceRecord, error)
	AddFuel(ctx context.Context, userID int64, mileage, fuelCost, fuelAmount string) (*domain.FuelRecord, error)
	ListFuel(ctx context.Context, userID int64) ([]domain.FuelRecord, error)
	Report(ctx context.Context, userID int64) (*domain.Report, error)
	GetSettings(ctx context.Context, userID int64) (*domain.Settings, error)
	SaveSettings(ctx context.Context, userID int64, theme, currency string, notifications bool) error
}

type recordService struct {
	maintenance repository.MaintenanceRepository
	fuel        repository.FuelRepository
	settings    repository.SettingsRepository
}

func NewRecordService(maintenance repository.MaintenanceRepository, fuel repository.FuelRepository, settings repository.SettingsRepository) RecordService {
	return &recordService{
		maintenance: maintenance,
		fuel:        fuel,
		settings:    settings,
	}
}

func (s *recordService) AddService(ctx context.Context, userID int64, serviceType, cost, notes string) (*domain.MaintenanceRecord, error) {
	serviceType = strings.TrimSpace(serviceType)
	if serviceType == "" {
		return nil, &ValidationError{Field: "service_type", Message: "service type is required"}
	}

	costValue, err := parseAmount("cost", cost)
	if err != nil {
		return nil, err
	}
	if costValue < 0 {
		return nil, &ValidationError{Field: "cost", Message: "cost must not be negative"}
	}

	record := &domain.MaintenanceRecord{
		ServiceType: serviceType,
		Cost:        costValue,
		Notes:       strings.TrimSpace(notes),
		UserID:      userID,
	}

	if _, err := s.maintenance.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *recordService) ListServices(ctx context.Context, userID int64, serviceType, minCost, maxCost string) ([]domain.MaintenanceRecord, error) {
	filter := domain.ServiceFilter{ServiceType: strings.TrimSpace(serviceType)}

	if strings.TrimSpace(minCost) != "" {
		v, err := parseAmount("min_cost", minCost)
		if err != nil {
			return nil, err
		}
		filter.MinCost = &v
	}
	if strings.TrimSpace(maxCost) != "" {
		v, err := parseAmount("max_cost", maxCost)
		if err != nil {
			return nil, err
		}
		filter.MaxCost = &v
	}

	return s.maintenance.ListByUser(ctx, userID, filter)
}

func (s *recordService) AddFuel(ctx context.Context, userID int64, mileage, fuelCost, fuelAmount string) (*domain.FuelRecord, error) {
	mileageValue, err := parseAmount("mileage", mileage)
	if err != nil {
		return nil, err
	}
	costValue, err := parseAmount("fuel_cost", fuelCost)
	if err != nil {
		return nil, err
	}
	amountValue, err := parseAmount("fuel_amount", fuelAmount)
	if err != nil {
		return nil, err
	}
	if costValue < 0 {
		return nil, &ValidationError{Field: "fuel_cost", Message: "fuel cost must not be negative"}
	}
	if amountValue <= 0 {
		return nil, &ValidationError{Field: "fuel_amount", Message: "fuel amount must be positive"}
	}

	record := &domain.FuelRecord{
		Mileage:    mileageValue,
		FuelCost:   costValue,
		FuelAmount: amountValue,
		UserID:     userID,
	}

	if _, err := s.fuel.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *recordService) ListFuel(ctx context.Context, userID int64) ([]domain.FuelRecord, error) {
	return s.fuel.ListByUser(ctx, userID)
}

func (s *recordService) Report(ctx context.Context, userID int64) (*domain.Report, error) {
	maintenance, err := s.maintenance.Aggregates(ctx, userID)
	if err != nil {
		return nil, err
	}
	fuel, err := s.fuel.Aggregates(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &domain.Report{
		MaintenanceCount:     maintenance.Count,
		TotalMaintenanceCost: maintenance.TotalCost,
		TotalFuelSpent:       fuel.TotalCost,
		TotalFuelAmount:      fuel.TotalAmount,
		AverageMileage:       fuel.AverageMileage,
	}, nil
}

func (s *recordService) GetSettings(ctx context.Context, userID int64) (*domain.Settings, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.Settings{UserID: userID}, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *recordService) SaveSettings(ctx context.Context, userID int64, theme, currency string, notifications bool) error {
	return s.settings.Upsert(ctx, &domain.Settings{
		UserID:        userID,
		Theme:         strings.TrimSpace(theme),
		Currency:      strings.TrimSpace(currency),
		Notifications: notifications,
	})
}

func parseAmount(field, raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("%s must be a number", field)}
	}
	return value, nil
}
