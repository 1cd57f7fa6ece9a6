package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleetpulse/backend/libs/bus"
	"fleetpulse/backend/services/stream-processor/internal/alerts"
	"fleetpulse/backend/services/stream-processor/internal/metrics"
	"fleetpulse/backend/services/stream-processor/internal/models"
	"fleetpulse/backend/services/stream-processor/internal/repository"
)

const testVIN = "1HGBH41JXMN109186"

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// fakeSamples keeps history keyed by (vin, timestamp) like the telemetry table.
type fakeSamples struct {
	saved   []models.EnrichedSample
	loadErr error
	saveErr error
}

func (f *fakeSamples) GetLatest(_ context.Context, vin string, before time.Time) (*models.EnrichedSample, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var latest *models.EnrichedSample
	for i := range f.saved {
		s := &f.saved[i]
		if s.VIN != vin || !s.Timestamp.Before(before) {
			continue
		}
		if latest == nil || s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSamples) SaveSample(_ context.Context, s *models.EnrichedSample) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, existing := range f.saved {
		if existing.VIN == s.VIN && existing.Timestamp.Equal(s.Timestamp) {
			return nil
		}
	}
	f.saved = append(f.saved, *s)
	return nil
}

type fakeVehicles struct {
	statuses map[string]models.VehicleStatus
	err      error
}

func (f *fakeVehicles) UpdateStatus(_ context.Context, vin string, status models.VehicleStatus, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	if f.statuses == nil {
		f.statuses = map[string]models.VehicleStatus{}
	}
	f.statuses[vin] = status
	return nil
}

type fakeAlerts struct {
	stored []models.Alert
	err    error
	// failNext fails a single append, then clears itself.
	failNext error
}

func (f *fakeAlerts) AppendAlert(_ context.Context, a *models.Alert) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	if f.err != nil {
		return f.err
	}
	a.ID = int64(len(f.stored) + 1)
	f.stored = append(f.stored, *a)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []bus.Envelope
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.events = append(f.events, bus.Envelope{Event: event, Data: raw})
	f.mu.Unlock()
	return nil
}

type fixture struct {
	samples   *fakeSamples
	vehicles  *fakeVehicles
	alerts    *fakeAlerts
	publisher *fakePublisher
	svc       *TelemetryService
}

func newFixture() *fixture {
	f := &fixture{
		samples:   &fakeSamples{},
		vehicles:  &fakeVehicles{},
		alerts:    &fakeAlerts{},
		publisher: &fakePublisher{},
	}
	f.svc = NewTelemetryService(f.samples, f.vehicles, f.alerts,
		alerts.NewEngine(alerts.DefaultThresholds()), f.publisher, metrics.New(), zap.NewNop())
	return f
}

func raw(ts time.Time, speed, soc float64) models.RawSample {
	return models.RawSample{
		VIN:         testVIN,
		Timestamp:   ts,
		Speed:       speed,
		SOC:         soc,
		Temperature: models.Float(30),
		Location:    models.Location{Latitude: 37.77, Longitude: -122.41},
	}
}

func TestProcess_ColdStartIdleLowBattery(t *testing.T) {
	f := newFixture()

	out, err := f.svc.Process(context.Background(), raw(t0, 0, 15))
	require.NoError(t, err)

	assert.Equal(t, models.StatusIdle, out.Result.Status)
	require.Len(t, f.samples.saved, 1)
	assert.Nil(t, f.samples.saved[0].DistanceTraveled)
	assert.Nil(t, f.samples.saved[0].ChargeRate)

	require.Len(t, f.alerts.stored, 1)
	assert.Equal(t, models.AlertLowBattery, f.alerts.stored[0].Type)
	assert.Equal(t, models.SeverityWarning, f.alerts.stored[0].Severity)
	assert.False(t, f.alerts.stored[0].Acknowledged)
	assert.Equal(t, models.StatusIdle, f.vehicles.statuses[testVIN])

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, bus.EventTelemetryUpdate, f.publisher.events[0].Event)
	assert.Equal(t, bus.EventAlertNew, f.publisher.events[1].Event)
	assert.Contains(t, string(f.publisher.events[1].Data), `"id":1`)
}

func TestProcess_UsesStoredHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Process(ctx, raw(t0, 0, 15))
	require.NoError(t, err)
	out, err := f.svc.Process(ctx, raw(t0.Add(2*time.Minute), 0, 5))
	require.NoError(t, err)

	require.NotNil(t, out.Sample.ChargeRate)
	assert.InDelta(t, -5.0, *out.Sample.ChargeRate, 1e-9)

	var kinds []models.AlertType
	for _, a := range out.Result.Alerts {
		kinds = append(kinds, a.Type)
	}
	assert.ElementsMatch(t, []models.AlertType{models.AlertLowBattery, models.AlertBatteryAnomaly}, kinds)
}

func TestProcess_RedeliveryAfterPartialPersistKeepsPredecessor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Process(ctx, raw(t0, 0, 15))
	require.NoError(t, err)
	f.alerts.stored = nil

	next := raw(t0.Add(2*time.Minute), 0, 5)
	f.alerts.failNext = errors.New("alerts table down")
	_, err = f.svc.Process(ctx, next)
	require.Error(t, err)
	require.Len(t, f.samples.saved, 2, "sample row written before the alert failed")

	out, err := f.svc.Process(ctx, next)
	require.NoError(t, err)

	require.NotNil(t, out.Sample.DistanceTraveled)
	assert.InDelta(t, 0.0, *out.Sample.DistanceTraveled, 1e-9)
	require.NotNil(t, out.Sample.ChargeRate)
	assert.InDelta(t, -5.0, *out.Sample.ChargeRate, 1e-9)

	var kinds []models.AlertType
	for _, a := range f.alerts.stored {
		kinds = append(kinds, a.Type)
	}
	assert.ElementsMatch(t, []models.AlertType{models.AlertLowBattery, models.AlertBatteryAnomaly}, kinds)
	assert.Len(t, f.samples.saved, 2, "replayed sample is not stored twice")
}

func TestProcess_OutOfOrderSampleUsesEarlierPredecessor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Process(ctx, raw(t0, 0, 80))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, raw(t0.Add(4*time.Minute), 0, 70))
	require.NoError(t, err)

	late, err := f.svc.Process(ctx, raw(t0.Add(2*time.Minute), 0, 76))
	require.NoError(t, err)
	require.NotNil(t, late.Sample.ChargeRate)
	assert.InDelta(t, -2.0, *late.Sample.ChargeRate, 1e-9)
}

func TestProcess_StoreFailuresAreReturned(t *testing.T) {
	boom := errors.New("db down")

	f := newFixture()
	f.samples.loadErr = boom
	_, err := f.svc.Process(context.Background(), raw(t0, 0, 50))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.publisher.events)

	f = newFixture()
	f.samples.saveErr = boom
	_, err = f.svc.Process(context.Background(), raw(t0, 0, 50))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.publisher.events)

	f = newFixture()
	f.alerts.err = boom
	_, err = f.svc.Process(context.Background(), raw(t0, 0, 15))
	assert.ErrorIs(t, err, boom)

	f = newFixture()
	f.vehicles.err = boom
	_, err = f.svc.Process(context.Background(), raw(t0, 0, 50))
	assert.ErrorIs(t, err, boom)
}

func TestProcess_UnknownVehicleIsNotAnError(t *testing.T) {
	f := newFixture()
	f.vehicles.err = repository.ErrVehicleNotFound

	_, err := f.svc.Process(context.Background(), raw(t0, 50, 80))
	require.NoError(t, err)
	assert.Len(t, f.samples.saved, 1)
	assert.Len(t, f.publisher.events, 1)
}

func TestProcess_PublishFailureIsNotAnError(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("bus unavailable")

	_, err := f.svc.Process(context.Background(), raw(t0, 0, 15))
	require.NoError(t, err)
	assert.Len(t, f.samples.saved, 1)
	assert.Len(t, f.alerts.stored, 1)
}
