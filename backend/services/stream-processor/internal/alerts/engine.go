package alerts

import (
	"fmt"
	"strconv"

	"fleetpulse/backend/services/stream-processor/internal/enrichment"
	"fleetpulse/backend/services/stream-processor/internal/models"
)

const (
	criticalBatteryPct     = 10.0
	criticalTemperatureC   = 80.0
	maxDischargePctPerMin  = 1.0
	drivingSpeedKmh        = 5.0
	chargingCurrentAmperes = -1.0
)

// Thresholds holds the configurable rule limits.
type Thresholds struct {
	LowBattery      float64
	Overspeed       float64
	HighTemperature float64
}

// DefaultThresholds mirrors the fleet-wide defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowBattery:      20,
		Overspeed:       120,
		HighTemperature: 60,
	}
}

// Result is the outcome of evaluating one sample.
type Result struct {
	Alerts []models.Alert
	Status models.VehicleStatus
}

// Rule inspects a sample (and optionally the previous one) and returns an alert when violated.
type Rule struct {
	Type     models.AlertType
	Evaluate func(t Thresholds, current models.EnrichedSample, previous *models.EnrichedSample) (*models.Alert, bool)
}

// DefaultRules are evaluated independently, in this order, for every sample.
var DefaultRules = []Rule{
	{Type: models.AlertLowBattery, Evaluate: lowBattery},
	{Type: models.AlertOverspeed, Evaluate: overspeed},
	{Type: models.AlertHighTemperature, Evaluate: highTemperature},
	{Type: models.AlertBatteryAnomaly, Evaluate: batteryAnomaly},
}

// Engine evaluates alert rules and derives vehicle status. It holds no per-vehicle state.
type Engine struct {
	thresholds Thresholds
	rules      []Rule
}

// NewEngine returns an engine with the default rule set.
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds, rules: DefaultRules}
}

// Thresholds returns the active limits.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate runs every rule against current and derives the status.
func (e *Engine) Evaluate(current models.EnrichedSample, previous *models.EnrichedSample) Result {
	result := Result{Status: DeriveStatus(current)}
	for _, rule := range e.rules {
		alert, ok := rule.Evaluate(e.thresholds, current, previous)
		if !ok {
			continue
		}
		result.Alerts = append(result.Alerts, *alert)
	}
	return result
}

// DeriveStatus picks the first matching state: driving, charging, idle, online.
// A stationary vehicle drawing charge current reports charging, not idle.
func DeriveStatus(s models.EnrichedSample) models.VehicleStatus {
	switch {
	case s.Speed > drivingSpeedKmh:
		return models.StatusDriving
	case s.Current != nil && *s.Current < chargingCurrentAmperes:
		return models.StatusCharging
	case s.Speed == 0:
		return models.StatusIdle
	default:
		return models.StatusOnline
	}
}

func lowBattery(t Thresholds, s models.EnrichedSample, _ *models.EnrichedSample) (*models.Alert, bool) {
	if s.SOC > t.LowBattery {
		return nil, false
	}
	severity := models.SeverityWarning
	if s.SOC <= criticalBatteryPct {
		severity = models.SeverityCritical
	}
	return newAlert(s, models.AlertLowBattery, severity,
		fmt.Sprintf("Low battery: %s%%", num(s.SOC)),
		map[string]float64{"soc": s.SOC}), true
}

func overspeed(t Thresholds, s models.EnrichedSample, _ *models.EnrichedSample) (*models.Alert, bool) {
	if s.Speed <= t.Overspeed {
		return nil, false
	}
	return newAlert(s, models.AlertOverspeed, models.SeverityWarning,
		fmt.Sprintf("Overspeed detected: %s km/h", num(s.Speed)),
		map[string]float64{"speed": s.Speed, "limit": t.Overspeed}), true
}

func highTemperature(t Thresholds, s models.EnrichedSample, _ *models.EnrichedSample) (*models.Alert, bool) {
	if s.Temperature == nil || *s.Temperature <= t.HighTemperature {
		return nil, false
	}
	temp := *s.Temperature
	severity := models.SeverityWarning
	if temp > criticalTemperatureC {
		severity = models.SeverityCritical
	}
	return newAlert(s, models.AlertHighTemperature, severity,
		fmt.Sprintf("High temperature: %s°C", num(temp)),
		map[string]float64{"temperature": temp}), true
}

func batteryAnomaly(_ Thresholds, s models.EnrichedSample, previous *models.EnrichedSample) (*models.Alert, bool) {
	if previous == nil || previous.SOC <= s.SOC {
		return nil, false
	}
	elapsed := enrichment.ElapsedMinutes(previous.Timestamp, s.Timestamp)
	if elapsed <= 0 {
		return nil, false
	}
	socDiff := previous.SOC - s.SOC
	rate := socDiff / elapsed
	if rate <= maxDischargePctPerMin {
		return nil, false
	}
	return newAlert(s, models.AlertBatteryAnomaly, models.SeverityWarning,
		fmt.Sprintf("Rapid battery discharge detected: %.2f%% per minute", rate),
		map[string]float64{"dischargeRate": rate, "socDiff": socDiff, "timeDiff": elapsed}), true
}

func newAlert(s models.EnrichedSample, kind models.AlertType, severity models.AlertSeverity, msg string, meta map[string]float64) *models.Alert {
	return &models.Alert{
		VIN:       s.VIN,
		Type:      kind,
		Severity:  severity,
		Message:   msg,
		Timestamp: s.Timestamp,
		Metadata:  meta,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
