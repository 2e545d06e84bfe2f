package aggregate

import (
	"math"
	"slices"
)

// HourSplit holds mean split minutes for trips requested in one hour.
type HourSplit struct {
	Hour    int
	Trips   int
	Walking float64
	Bus     float64
	Waiting float64
}

// HourlySplits buckets trips by request hour. The result always has 24
// entries; hours without trips are zero.
func HourlySplits(trips []EnrichedTrip) []HourSplit {
	out := make([]HourSplit, 24)
	for h := range out {
		out[h].Hour = h
	}
	for _, t := range trips {
		s := &out[t.Hour]
		s.Trips++
		s.Walking += float64(t.Splits.Walking)
		s.Bus += float64(t.Splits.Bus)
		s.Waiting += float64(t.Splits.Waiting)
	}
	for h := range out {
		if n := float64(out[h].Trips); n > 0 {
			out[h].Walking /= n
			out[h].Bus /= n
			out[h].Waiting /= n
		}
	}
	return out
}

type Summary struct {
	Trips int

	MeanDuration float64
	MeanWalking  float64
	MeanBus      float64
	MeanWaiting  float64

	// Only over trips with a rideshare duration.
	WithRideshare int
	MeanRideshare float64
	MeanRatio     float64

	MeanStraightLineMiles float64
}

func Summarize(trips []EnrichedTrip) Summary {
	var s Summary
	for _, t := range trips {
		s.Trips++
		s.MeanDuration += float64(t.Reduced.DurationMinutes)
		s.MeanWalking += float64(t.Splits.Walking)
		s.MeanBus += float64(t.Splits.Bus)
		s.MeanWaiting += float64(t.Splits.Waiting)
		s.MeanStraightLineMiles += t.StraightLineMiles
		if t.Ratio != nil {
			s.WithRideshare++
			s.MeanRideshare += *t.RideshareMinutes
			s.MeanRatio += *t.Ratio
		}
	}
	if s.Trips > 0 {
		n := float64(s.Trips)
		s.MeanDuration /= n
		s.MeanWalking /= n
		s.MeanBus /= n
		s.MeanWaiting /= n
		s.MeanStraightLineMiles /= n
	}
	if s.WithRideshare > 0 {
		n := float64(s.WithRideshare)
		s.MeanRideshare /= n
		s.MeanRatio /= n
	}
	return s
}

// Bin is a half-open [Low, High) duration range; the last bin is closed.
type Bin struct {
	Low, High float64
	Trips     int
}

// Histogram counts transit durations in bins of equal width between the
// shortest and longest trip.
func Histogram(trips []EnrichedTrip, bins int) []Bin {
	if bins <= 0 || len(trips) == 0 {
		return nil
	}

	durations := make([]float64, len(trips))
	for i, t := range trips {
		durations[i] = float64(t.Reduced.DurationMinutes)
	}
	lo, hi := slices.Min(durations), slices.Max(durations)
	if lo == hi {
		return []Bin{{Low: lo, High: hi, Trips: len(trips)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Low = lo + float64(i)*width
		out[i].High = lo + float64(i+1)*width
	}
	out[bins-1].High = hi
	for _, d := range durations {
		i := min(int(math.Floor((d-lo)/width)), bins-1)
		out[i].Trips++
	}
	return out
}
