package trip

import (
	"math"
	"strconv"
)

type Coord struct {
	Lat float64
	Lon float64
}

// String formats the coordinate the way the directions API expects it.
func (c Coord) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// RawTrip is one input row. ID is stable across runs (source ID column, or
// row order when the column is missing).
type RawTrip struct {
	ID          int
	Start       Coord
	End         Coord
	RequestDate string // M/D/YYYY
	RequestTime string // 12-hour clock

	RideshareMinutes *float64 // nil when the input has no rideshare duration
}

// Degenerate reports whether origin and destination are the same point.
func (t RawTrip) Degenerate() bool {
	return t.Start == t.End
}

// NormalizedTrip is a RawTrip with its request time resolved to epoch
// seconds. SourceEpoch is the recorded request time, AlignedEpoch the same
// weekday and time of day inside the target week, used as departure time.
type NormalizedTrip struct {
	RawTrip
	SourceEpoch  int64
	AlignedEpoch int64
}

const milesPerMeter = 1 / 1609.34

// StraightLineMiles is the great-circle distance between origin and destination.
func (t RawTrip) StraightLineMiles() float64 {
	return haversine(t.Start.Lat, t.Start.Lon, t.End.Lat, t.End.Lon) * milesPerMeter
}

// Haversine distance in meters
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
