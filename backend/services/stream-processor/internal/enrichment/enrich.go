package enrichment

import (
	"math"
	"time"

	"fleetpulse/backend/services/stream-processor/internal/models"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Enrich derives distance, charge rate and power from the current sample and the previous
// stored sample of the same vehicle. With no previous sample nothing is derived.
func Enrich(current models.RawSample, previous *models.EnrichedSample) models.EnrichedSample {
	enriched := models.EnrichedSample{RawSample: current}
	if previous == nil {
		return enriched
	}

	distance := Haversine(previous.Location, current.Location)
	enriched.DistanceTraveled = &distance

	if elapsed := ElapsedMinutes(previous.Timestamp, current.Timestamp); elapsed > 0 {
		rate := (current.SOC - previous.SOC) / elapsed
		enriched.ChargeRate = &rate
	}

	if current.Voltage != nil && current.Current != nil {
		power := *current.Voltage * math.Abs(*current.Current) / 1000
		enriched.PowerConsumption = &power
	}

	return enriched
}

// ElapsedMinutes returns to-from in minutes; negative for out-of-order samples.
func ElapsedMinutes(from, to time.Time) float64 {
	return to.Sub(from).Minutes()
}

// Haversine returns the great-circle distance between two fixes in kilometres.
func Haversine(from, to models.Location) float64 {
	dLat := toRad(to.Latitude - from.Latitude)
	dLon := toRad(to.Longitude - from.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(from.Latitude))*math.Cos(toRad(to.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a just outside [0, 1] for antipodal fixes
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func toRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}
