package models

import "time"

// AlertType enumerates alert kinds. The pipeline raises the first four; the rest are created by
// other parts of the platform and only share the storage format.
type AlertType string

const (
	AlertLowBattery        AlertType = "low_battery"
	AlertOverspeed         AlertType = "overspeed"
	AlertHighTemperature   AlertType = "high_temperature"
	AlertBatteryAnomaly    AlertType = "battery_anomaly"
	AlertOffline           AlertType = "offline"
	AlertMaintenanceDue    AlertType = "maintenance_due"
	AlertGeofenceViolation AlertType = "geofence_violation"
	AlertCustom            AlertType = "custom"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Acknowledgement is written by the operator-facing API only.
type Acknowledgement struct {
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// Alert is a rule violation raised for a vehicle sample.
type Alert struct {
	ID        int64              `json:"id"`
	VIN       string             `json:"vin"`
	Type      AlertType          `json:"type"`
	Severity  AlertSeverity      `json:"severity"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
	Metadata  map[string]float64 `json:"metadata,omitempty"`
	Acknowledgement
}

// VehicleStatus is the coarse operating state derived from the latest sample.
type VehicleStatus string

const (
	StatusOnline   VehicleStatus = "online"
	StatusOffline  VehicleStatus = "offline"
	StatusIdle     VehicleStatus = "idle"
	StatusCharging VehicleStatus = "charging"
	StatusDriving  VehicleStatus = "driving"
	StatusAlert    VehicleStatus = "alert"
)
