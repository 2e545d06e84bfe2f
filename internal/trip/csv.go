package trip

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"transit-replay/internal/timenorm"
)

// Input column names.
const (
	ColID            = "ID"
	ColPickupLat     = "Pickup Latitude"
	ColPickupLon     = "Pickup Longitude"
	ColDropOffLat    = "Drop Off Latitude"
	ColDropOffLon    = "Drop Off Longitude"
	ColRequestDate   = "Request Date"
	ColRequestTime   = "Request Time"
	ColRideshareMins = "Duration (min)"
)

var requiredColumns = []string{ColPickupLat, ColPickupLon, ColDropOffLat, ColDropOffLon, ColRequestDate, ColRequestTime}

type MissingColumnError string

func (c MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", string(c))
}

// RowError ties a parse failure to its input line.
type RowError struct {
	Line int
	ID   int
	Err  error
}

func (e *RowError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("id %d: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("line %d (id %d): %v", e.Line, e.ID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ReadFile reads the trip table at path.
func ReadFile(path string) ([]RawTrip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses a header-keyed trip table. Rows are assigned their row index
// (0-based) as ID when the table has no ID column.
func Read(r io.Reader) ([]RawTrip, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	row, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	header := make(map[string]int, len(row))
	for i, name := range row {
		header[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return nil, MissingColumnError(col)
		}
	}

	var trips []RawTrip
	for index := 0; ; index++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return trips, nil
		} else if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		t, err := parseRow(header, row, index)
		if err != nil {
			return nil, &RowError{Line: line, ID: t.ID, Err: err}
		}
		trips = append(trips, t)
	}
}

func parseRow(header map[string]int, row []string, index int) (RawTrip, error) {
	field := func(name string) (string, bool) {
		i, ok := header[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}
	float := func(name string) (float64, error) {
		v, _ := field(name)
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return f, nil
	}

	t := RawTrip{ID: index}
	if v, ok := field(ColID); ok && v != "" {
		// pandas exports integer IDs as "12.0" once a column holds a NaN.
		id, err := strconv.ParseFloat(v, 64)
		if err != nil || id != float64(int(id)) {
			return t, fmt.Errorf("%s: invalid integer %q", ColID, v)
		}
		t.ID = int(id)
	}

	var err error
	if t.Start.Lat, err = float(ColPickupLat); err != nil {
		return t, err
	}
	if t.Start.Lon, err = float(ColPickupLon); err != nil {
		return t, err
	}
	if t.End.Lat, err = float(ColDropOffLat); err != nil {
		return t, err
	}
	if t.End.Lon, err = float(ColDropOffLon); err != nil {
		return t, err
	}
	t.RequestDate, _ = field(ColRequestDate)
	t.RequestTime, _ = field(ColRequestTime)

	if v, ok := field(ColRideshareMins); ok && v != "" {
		mins, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return t, fmt.Errorf("%s: %w", ColRideshareMins, err)
		}
		t.RideshareMinutes = &mins
	}
	return t, nil
}

// Normalize resolves request times for every trip. Trips with a malformed
// date or time are left out and reported, one RowError each, so a single bad
// row never stops the batch.
func Normalize(raw []RawTrip, n *timenorm.Normalizer, targetWeek int64) ([]NormalizedTrip, []error) {
	out := make([]NormalizedTrip, 0, len(raw))
	var errs []error
	for _, t := range raw {
		epoch, err := n.LocalToEpoch(t.RequestDate, t.RequestTime)
		if err != nil {
			errs = append(errs, &RowError{ID: t.ID, Err: err})
			continue
		}
		out = append(out, NormalizedTrip{
			RawTrip:      t,
			SourceEpoch:  epoch,
			AlignedEpoch: n.AlignToTargetWeek(epoch, targetWeek),
		})
	}
	return out, errs
}
