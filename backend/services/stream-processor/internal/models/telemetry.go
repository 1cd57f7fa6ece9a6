package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidSample marks payloads that can never be processed.
var ErrInvalidSample = errors.New("invalid telemetry sample")

var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// Location is a GPS fix.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// RawSample is one vehicle observation as appended to the telemetry stream.
type RawSample struct {
	VIN         string    `json:"vin"`
	Timestamp   time.Time `json:"timestamp"`
	Speed       float64   `json:"speed"`
	SOC         float64   `json:"soc"`
	Location    Location  `json:"location"`
	Odometer    *float64  `json:"odometer,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Voltage     *float64  `json:"voltage,omitempty"`
	Current     *float64  `json:"current,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
}

// EnrichedSample is a RawSample plus metrics derived from the previous sample of the same vehicle.
// Derived fields stay nil when there is not enough history to compute them.
type EnrichedSample struct {
	RawSample
	DistanceTraveled *float64 `json:"distanceTraveled,omitempty"`
	ChargeRate       *float64 `json:"chargeRate,omitempty"`
	PowerConsumption *float64 `json:"powerConsumption,omitempty"`
}

// DecodeRawSample parses and validates a stream payload.
func DecodeRawSample(payload []byte) (RawSample, error) {
	var sample RawSample
	if len(payload) == 0 {
		return sample, fmt.Errorf("%w: empty payload", ErrInvalidSample)
	}
	if err := json.Unmarshal(payload, &sample); err != nil {
		return sample, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if err := sample.Validate(); err != nil {
		return sample, err
	}
	return sample, nil
}

// Validate checks field ranges accepted at the ingestion boundary.
func (s RawSample) Validate() error {
	if !vinPattern.MatchString(s.VIN) {
		return fmt.Errorf("%w: vin %q", ErrInvalidSample, s.VIN)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp missing", ErrInvalidSample)
	}
	checks := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"speed", &s.Speed, 0, 300},
		{"soc", &s.SOC, 0, 100},
		{"latitude", &s.Location.Latitude, -90, 90},
		{"longitude", &s.Location.Longitude, -180, 180},
		{"temperature", s.Temperature, -40, 100},
		{"voltage", s.Voltage, 0, 1000},
		{"current", s.Current, -500, 500},
		{"heading", s.Heading, 0, 360},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if *c.value < c.min || *c.value > c.max {
			return fmt.Errorf("%w: %s %v out of range [%v, %v]", ErrInvalidSample, c.name, *c.value, c.min, c.max)
		}
	}
	if s.Odometer != nil && *s.Odometer < 0 {
		return fmt.Errorf("%w: odometer %v is negative", ErrInvalidSample, *s.Odometer)
	}
	return nil
}

// Float returns a pointer to v, handy for optional readings.
func Float(v float64) *float64 {
	return &v
}
