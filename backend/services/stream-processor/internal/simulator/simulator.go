package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"fleetpulse/backend/services/stream-processor/internal/models"
)

// Route is the fixed San Francisco to San Jose corridor vehicles loop along.
var Route = []models.Location{
	{Latitude: 37.7749, Longitude: -122.4194},
	{Latitude: 37.7549, Longitude: -122.3994},
	{Latitude: 37.7349, Longitude: -122.3794},
	{Latitude: 37.7149, Longitude: -122.3594},
	{Latitude: 37.6949, Longitude: -122.3394},
	{Latitude: 37.6749, Longitude: -122.3194},
	{Latitude: 37.6549, Longitude: -122.2994},
	{Latitude: 37.6349, Longitude: -122.2794},
	{Latitude: 37.6149, Longitude: -122.2594},
	{Latitude: 37.5949, Longitude: -122.2394},
	{Latitude: 37.5749, Longitude: -122.2194},
	{Latitude: 37.5549, Longitude: -122.1994},
	{Latitude: 37.5349, Longitude: -122.1794},
	{Latitude: 37.3382, Longitude: -121.8863},
}

var sampleVINs = []string{
	"1HGBH41JXMN109186",
	"2HGBH41JXMN109187",
	"3HGBH41JXMN109188",
	"4HGBH41JXMN109189",
	"5HGBH41JXMN109190",
	"6HGBH41JXMN109191",
	"7HGBH41JXMN109192",
	"8HGBH41JXMN109193",
	"9HGBH41JXMN109194",
	"AHGBH41JXMN109195",
}

// Sink receives generated samples.
type Sink interface {
	Append(ctx context.Context, v interface{}) (string, error)
}

type vehicle struct {
	vin         string
	routeIndex  int
	speed       float64
	soc         float64
	odometer    float64
	temperature float64
	voltage     float64
	charging    bool
}

// Simulator drives a small synthetic fleet.
type Simulator struct {
	vehicles []*vehicle
	rng      *rand.Rand
	now      func() time.Time
}

// New creates count vehicles with randomized starting state.
func New(count int, seed int64) *Simulator {
	s := &Simulator{rng: rand.New(rand.NewSource(seed)), now: time.Now}
	for _, vin := range VINs(count) {
		s.vehicles = append(s.vehicles, &vehicle{
			vin:         vin,
			routeIndex:  s.rng.Intn(len(Route)),
			speed:       s.rng.Float64()*60 + 20,
			soc:         s.rng.Float64()*40 + 60,
			odometer:    s.rng.Float64()*50000 + 10000,
			temperature: s.rng.Float64()*20 + 20,
			voltage:     400 + s.rng.Float64()*20,
		})
	}
	return s
}

// VINs returns count valid vehicle identifiers, the fixed samples first.
func VINs(count int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if i < len(sampleVINs) {
			out = append(out, sampleVINs[i])
			continue
		}
		out = append(out, fmt.Sprintf("X%016d", i-len(sampleVINs)))
	}
	return out
}

// Tick advances every vehicle one step and returns the resulting samples.
func (s *Simulator) Tick() []models.RawSample {
	ts := s.now().UTC()
	samples := make([]models.RawSample, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		samples = append(samples, s.step(v, ts))
	}
	return samples
}

func (s *Simulator) step(v *vehicle, ts time.Time) models.RawSample {
	if v.charging {
		v.soc = math.Min(100, v.soc+0.5)
		v.speed = 0
		v.temperature = math.Min(45, v.temperature+0.2)
		if v.soc >= 95 {
			v.charging = false
		}
	} else {
		v.speed = clamp(v.speed+(s.rng.Float64()-0.5)*10, 0, 130)
		v.soc = math.Max(0, v.soc-(0.01+v.speed/1000))
		if v.soc < 20 && s.rng.Float64() < 0.3 {
			v.charging = true
		}
		v.temperature = clamp(25+v.speed/10+(s.rng.Float64()-0.5)*5, 15, 60)
		if v.speed > 5 {
			v.routeIndex = (v.routeIndex + 1) % len(Route)
			v.odometer += v.speed / 3600
		}
	}
	v.voltage = clamp(v.voltage+(s.rng.Float64()-0.5)*2, 380, 420)

	current := s.rng.Float64() * 100
	if v.charging {
		current = -50 - s.rng.Float64()*50
	}

	point := Route[v.routeIndex]
	return models.RawSample{
		VIN:       v.vin,
		Timestamp: ts,
		Speed:     round1(v.speed),
		SOC:       round1(v.soc),
		Location: models.Location{
			Latitude:  point.Latitude + (s.rng.Float64()-0.5)*0.001,
			Longitude: point.Longitude + (s.rng.Float64()-0.5)*0.001,
		},
		Odometer:    models.Float(round1(v.odometer)),
		Temperature: models.Float(round1(v.temperature)),
		Voltage:     models.Float(round1(v.voltage)),
		Current:     models.Float(round1(current)),
		Heading:     models.Float(s.rng.Float64() * 360),
	}
}

// Run appends one tick per interval until iterations are done (0 runs until ctx ends).
func (s *Simulator) Run(ctx context.Context, sink Sink, interval time.Duration, iterations int, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, failed int
	for i := 0; iterations == 0 || i < iterations; i++ {
		for _, sample := range s.Tick() {
			if _, err := sink.Append(ctx, sample); err != nil {
				failed++
				logger.Warn("append sample failed", zap.String("vin", sample.VIN), zap.Error(err))
				continue
			}
			sent++
		}
		logger.Debug("tick", zap.Int("iteration", i+1), zap.Int("sent", sent), zap.Int("failed", failed))

		if iterations != 0 && i+1 == iterations {
			break
		}
		select {
		case <-ctx.Done():
			logger.Info("simulation stopped", zap.Int("sent", sent), zap.Int("failed", failed))
			return nil
		case <-ticker.C:
		}
	}
	logger.Info("simulation finished", zap.Int("sent", sent), zap.Int("failed", failed))
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
