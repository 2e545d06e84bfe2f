package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"transit-replay/internal/trip"
)

var tripColumns = []string{
	trip.ColID,
	trip.ColPickupLat,
	trip.ColPickupLon,
	trip.ColDropOffLat,
	trip.ColDropOffLon,
	"Transit Duration",
	"Hour",
	"Time Spent - Walking",
	"Time Spent - Bus",
	"Time Spent - Waiting",
	"Travel Modes",
	"Duration Source",
	"Rideshare Duration",
	"Ratio",
	"Straight Line Miles",
}

var hourlyColumns = []string{"Hour", "Trips", "Time Spent - Walking", "Time Spent - Bus", "Time Spent - Waiting"}

// WriteCSV writes one row per enriched trip. Rideshare Duration and Ratio are
// empty when the input had no rideshare duration.
func WriteCSV(w io.Writer, trips []EnrichedTrip) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tripColumns); err != nil {
		return fmt.Errorf("aggregate.WriteCSV: %w", err)
	}
	for _, t := range trips {
		modes := make([]string, len(t.Reduced.Modes))
		for i, m := range t.Reduced.Modes {
			modes[i] = string(m)
		}
		rideshare, ratio := "", ""
		if t.RideshareMinutes != nil {
			rideshare = formatFloat(*t.RideshareMinutes, -1)
		}
		if t.Ratio != nil {
			ratio = formatFloat(*t.Ratio, 3)
		}

		row := []string{
			strconv.Itoa(t.ID),
			formatFloat(t.Start.Lat, -1),
			formatFloat(t.Start.Lon, -1),
			formatFloat(t.End.Lat, -1),
			formatFloat(t.End.Lon, -1),
			strconv.Itoa(t.Reduced.DurationMinutes),
			strconv.Itoa(t.Hour),
			strconv.Itoa(t.Splits.Walking),
			strconv.Itoa(t.Splits.Bus),
			strconv.Itoa(t.Splits.Waiting),
			strings.Join(modes, ";"),
			t.Reduced.DurationSource.String(),
			rideshare,
			ratio,
			formatFloat(t.StraightLineMiles, 2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("aggregate.WriteCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("aggregate.WriteCSV: %w", err)
	}
	return nil
}

func WriteHourlyCSV(w io.Writer, splits []HourSplit) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(hourlyColumns); err != nil {
		return fmt.Errorf("aggregate.WriteHourlyCSV: %w", err)
	}
	for _, s := range splits {
		row := []string{
			strconv.Itoa(s.Hour),
			strconv.Itoa(s.Trips),
			formatFloat(s.Walking, 2),
			formatFloat(s.Bus, 2),
			formatFloat(s.Waiting, 2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("aggregate.WriteHourlyCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("aggregate.WriteHourlyCSV: %w", err)
	}
	return nil
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
