package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleetpulse/backend/services/stream-processor/internal/models"
)

// ErrVehicleNotFound is returned when a status update targets an unregistered vehicle.
var ErrVehicleNotFound = errors.New("vehicle not found")

// VehicleRepository updates the vehicle registry kept by the fleet API.
type VehicleRepository struct {
	db *sql.DB
}

func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// UpdateStatus records the derived status and when the vehicle was last seen.
func (r *VehicleRepository) UpdateStatus(ctx context.Context, vin string, status models.VehicleStatus, asOf time.Time) error {
	const query = `
		UPDATE vehicles
		SET status = $2,
		    last_seen = $3,
		    updated_at = NOW()
		WHERE vin = $1
	`
	result, err := r.db.ExecContext(ctx, query, vin, string(status), asOf)
	if err != nil {
		return fmt.Errorf("repository: update status %s: %w", vin, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: update status %s: %w", vin, err)
	}
	if affected == 0 {
		return fmt.Errorf("repository: update status %s: %w", vin, ErrVehicleNotFound)
	}
	return nil
}
