package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleetpulse/backend/libs/bus"
	"fleetpulse/backend/services/stream-processor/internal/alerts"
	"fleetpulse/backend/services/stream-processor/internal/enrichment"
	"fleetpulse/backend/services/stream-processor/internal/metrics"
	"fleetpulse/backend/services/stream-processor/internal/models"
	"fleetpulse/backend/services/stream-processor/internal/repository"
)

// SampleStore holds the per-vehicle sample history.
type SampleStore interface {
	GetLatest(ctx context.Context, vin string, before time.Time) (*models.EnrichedSample, error)
	SaveSample(ctx context.Context, s *models.EnrichedSample) error
}

// VehicleStore receives the derived vehicle status.
type VehicleStore interface {
	UpdateStatus(ctx context.Context, vin string, status models.VehicleStatus, asOf time.Time) error
}

// AlertStore appends raised alerts.
type AlertStore interface {
	AppendAlert(ctx context.Context, alert *models.Alert) error
}

// Processing stages reported on failure.
const (
	StageLoad    = "load"
	StagePersist = "persist"
)

// TelemetryService turns one validated sample into stored state, alerts and notifications.
type TelemetryService struct {
	samples   SampleStore
	vehicles  VehicleStore
	alerts    AlertStore
	engine    *alerts.Engine
	publisher bus.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewTelemetryService returns service instance.
func NewTelemetryService(
	samples SampleStore,
	vehicles VehicleStore,
	alertStore AlertStore,
	engine *alerts.Engine,
	publisher bus.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TelemetryService {
	return &TelemetryService{
		samples:   samples,
		vehicles:  vehicles,
		alerts:    alertStore,
		engine:    engine,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Outcome is what processing derived from a sample.
type Outcome struct {
	Sample models.EnrichedSample
	Result alerts.Result
}

// Process loads history, enriches, evaluates, persists and publishes. A returned error means
// nothing may be acknowledged; publish failures are logged only.
func (s *TelemetryService) Process(ctx context.Context, raw models.RawSample) (Outcome, error) {
	previous, err := s.samples.GetLatest(ctx, raw.VIN, raw.Timestamp)
	if err != nil {
		s.metrics.Failed(StageLoad)
		return Outcome{}, fmt.Errorf("service: load previous: %w", err)
	}

	sample := enrichment.Enrich(raw, previous)
	result := s.engine.Evaluate(sample, previous)

	if err := s.persist(ctx, &sample, &result); err != nil {
		s.metrics.Failed(StagePersist)
		return Outcome{}, err
	}

	s.publish(ctx, sample, result.Alerts)
	return Outcome{Sample: sample, Result: result}, nil
}

func (s *TelemetryService) persist(ctx context.Context, sample *models.EnrichedSample, result *alerts.Result) error {
	if err := s.samples.SaveSample(ctx, sample); err != nil {
		return fmt.Errorf("service: persist sample: %w", err)
	}

	for i := range result.Alerts {
		alert := &result.Alerts[i]
		if err := s.alerts.AppendAlert(ctx, alert); err != nil {
			return fmt.Errorf("service: persist alert: %w", err)
		}
	}

	err := s.vehicles.UpdateStatus(ctx, sample.VIN, result.Status, sample.Timestamp)
	switch {
	case errors.Is(err, repository.ErrVehicleNotFound):
		s.logger.Warn("vehicle not found for status update", zap.String("vin", sample.VIN))
	case err != nil:
		return fmt.Errorf("service: persist status: %w", err)
	}

	for _, alert := range result.Alerts {
		s.metrics.Alert(string(alert.Type), string(alert.Severity))
		s.logger.Info("alert created",
			zap.String("vin", alert.VIN),
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
		)
	}
	return nil
}

func (s *TelemetryService) publish(ctx context.Context, sample models.EnrichedSample, raised []models.Alert) {
	if err := s.publisher.Publish(ctx, bus.EventTelemetryUpdate, sample); err != nil {
		s.metrics.PublishFailed(bus.EventTelemetryUpdate)
		s.logger.Warn("publish telemetry update failed", zap.String("vin", sample.VIN), zap.Error(err))
	}
	for _, alert := range raised {
		if err := s.publisher.Publish(ctx, bus.EventAlertNew, alert); err != nil {
			s.metrics.PublishFailed(bus.EventAlertNew)
			s.logger.Warn("publish alert failed",
				zap.String("vin", alert.VIN),
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
		}
	}
}
