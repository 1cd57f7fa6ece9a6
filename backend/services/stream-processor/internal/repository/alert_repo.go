package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fleetpulse/backend/services/stream-processor/internal/models"
)

// AlertRepository appends alerts. Acknowledgement columns are owned by the fleet API.
type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// AppendAlert inserts an unacknowledged alert. The (vin, type, timestamp) key makes replays a no-op;
// on insert the generated id is written back to alert.ID.
func (r *AlertRepository) AppendAlert(ctx context.Context, alert *models.Alert) error {
	const query = `
		INSERT INTO alerts (vin, type, severity, message, timestamp, metadata, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (vin, type, timestamp) DO NOTHING
		RETURNING id
	`
	var metadata sql.NullString
	if len(alert.Metadata) > 0 {
		raw, err := json.Marshal(alert.Metadata)
		if err != nil {
			return fmt.Errorf("repository: encode alert metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		alert.VIN,
		string(alert.Type),
		string(alert.Severity),
		alert.Message,
		alert.Timestamp,
		metadata,
	).Scan(&alert.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// already stored by an earlier delivery
		return nil
	}
	if err != nil {
		return fmt.Errorf("repository: append alert %s/%s: %w", alert.VIN, alert.Type, err)
	}
	return nil
}
