package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleetpulse/backend/services/stream-processor/internal/models"
)

// TelemetryRepository keeps the per-vehicle sample history, ordered by sample timestamp.
type TelemetryRepository struct {
	db *sql.DB
}

// NewTelemetryRepository returns repository.
func NewTelemetryRepository(db *sql.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// SaveSample appends an enriched sample. A replay of the same (vin, timestamp) is ignored.
func (r *TelemetryRepository) SaveSample(ctx context.Context, s *models.EnrichedSample) error {
	const query = `
		INSERT INTO telemetry (
			vin, timestamp, speed, soc, latitude, longitude,
			altitude, odometer, temperature, voltage, current, heading,
			distance_traveled, charge_rate, power_consumption
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (vin, timestamp) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		s.VIN,
		s.Timestamp,
		s.Speed,
		s.SOC,
		s.Location.Latitude,
		s.Location.Longitude,
		nullFloat(s.Location.Altitude),
		nullFloat(s.Odometer),
		nullFloat(s.Temperature),
		nullFloat(s.Voltage),
		nullFloat(s.Current),
		nullFloat(s.Heading),
		nullFloat(s.DistanceTraveled),
		nullFloat(s.ChargeRate),
		nullFloat(s.PowerConsumption),
	)
	if err != nil {
		return fmt.Errorf("repository: save sample %s: %w", s.VIN, err)
	}
	return nil
}

// GetLatest returns the newest sample for the vehicle stored strictly before the given time,
// or nil when there is none. A redelivered sample never sees itself as its predecessor.
func (r *TelemetryRepository) GetLatest(ctx context.Context, vin string, before time.Time) (*models.EnrichedSample, error) {
	const query = `
		SELECT vin, timestamp, speed, soc, latitude, longitude,
		       altitude, odometer, temperature, voltage, current, heading,
		       distance_traveled, charge_rate, power_consumption
		FROM telemetry
		WHERE vin = $1 AND timestamp < $2
		ORDER BY timestamp DESC
		LIMIT 1
	`
	var (
		s        models.EnrichedSample
		altitude sql.NullFloat64
		odometer sql.NullFloat64
		temp     sql.NullFloat64
		voltage  sql.NullFloat64
		current  sql.NullFloat64
		heading  sql.NullFloat64
		distance sql.NullFloat64
		rate     sql.NullFloat64
		power    sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, vin, before).Scan(
		&s.VIN,
		&s.Timestamp,
		&s.Speed,
		&s.SOC,
		&s.Location.Latitude,
		&s.Location.Longitude,
		&altitude,
		&odometer,
		&temp,
		&voltage,
		&current,
		&heading,
		&distance,
		&rate,
		&power,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: latest sample %s: %w", vin, err)
	}

	s.Location.Altitude = floatPtr(altitude)
	s.Odometer = floatPtr(odometer)
	s.Temperature = floatPtr(temp)
	s.Voltage = floatPtr(voltage)
	s.Current = floatPtr(current)
	s.Heading = floatPtr(heading)
	s.DistanceTraveled = floatPtr(distance)
	s.ChargeRate = floatPtr(rate)
	s.PowerConsumption = floatPtr(power)
	return &s, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
