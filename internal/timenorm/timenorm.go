// Package timenorm converts the local request timestamps recorded with each
// rideshare trip into epoch seconds for the directions API, and remaps them
// onto a single target week the API will accept as a departure time.
package timenorm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid clock time")
)

const (
	dateLayout  = "01/02/2006"
	clockLayout = "03:04:05PM"
)

// Normalizer holds the two fixed UTC offsets the trip data is reconciled
// between. Conversions are anchored to the local offset, every wall-clock value
// coming from the source offset gets shifted by Delta hours first.
type Normalizer struct {
	SourceOffsetHours int
	LocalOffsetHours  int

	loc *time.Location
}

func New(sourceOffsetHours, localOffsetHours int) *Normalizer {
	return &Normalizer{
		SourceOffsetHours: sourceOffsetHours,
		LocalOffsetHours:  localOffsetHours,
		loc:               time.FixedZone(fmt.Sprintf("UTC%+d", localOffsetHours), localOffsetHours*3600),
	}
}

// Delta is the hour correction applied to source wall-clock times.
func (n *Normalizer) Delta() int { return n.LocalOffsetHours - n.SourceOffsetHours }

// Location is the fixed zone all epoch conversions happen in.
func (n *Normalizer) Location() *time.Location { return n.loc }

// LocalToEpoch parses a M/D/YYYY date and a 12-hour clock ("H:MM AM",
// "HH:MMPM", optional seconds) and returns whole epoch seconds.
//
// A corrected hour outside 0..23 wraps around the clock without moving the
// date, so 23:30 with a +1 correction lands on 00:30 of the same day.
func (n *Normalizer) LocalToEpoch(date, clock string) (int64, error) {
	d, err := parseDate(date)
	if err != nil {
		return 0, err
	}
	c, err := parseClock(clock)
	if err != nil {
		return 0, err
	}

	hour := wrapHour(c.Hour() + n.Delta())
	t := time.Date(d.Year(), d.Month(), d.Day(), hour, c.Minute(), c.Second(), 0, n.loc)
	return t.Unix(), nil
}

// AlignToTargetWeek moves source onto the same weekday (Monday=0..Sunday=6)
// inside the week of targetWeek, keeping the source time of day.
func (n *Normalizer) AlignToTargetWeek(source, targetWeek int64) int64 {
	src := time.Unix(source, 0).In(n.loc)
	tgt := time.Unix(targetWeek, 0).In(n.loc)

	day := tgt.AddDate(0, 0, DayOfWeek(src)-DayOfWeek(tgt))
	aligned := time.Date(day.Year(), day.Month(), day.Day(), src.Hour(), src.Minute(), src.Second(), 0, n.loc)
	return aligned.Unix()
}

// EpochToLocalClock renders epoch as "H:MM" in source wall-clock terms. The
// hour is not zero-padded.
func (n *Normalizer) EpochToLocalClock(epoch int64) string {
	h, m := n.clock(epoch)
	return fmt.Sprintf("%d:%02d", h, m)
}

// Hour is the hour bucket (0..23) of EpochToLocalClock.
func (n *Normalizer) Hour(epoch int64) int {
	h, _ := n.clock(epoch)
	return h
}

// DayOfWeek returns the Monday-based weekday of the given epoch in the
// normalizer's zone.
func (n *Normalizer) DayOfWeek(epoch int64) int {
	return DayOfWeek(time.Unix(epoch, 0).In(n.loc))
}

func (n *Normalizer) clock(epoch int64) (hour, minute int) {
	t := time.Unix(epoch, 0).In(n.loc)
	return wrapHour(t.Hour() - n.Delta()), t.Minute()
}

// DayOfWeek maps time.Weekday (Sunday=0) to Monday=0..Sunday=6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func wrapHour(h int) int {
	h %= 24
	if h < 0 {
		h += 24
	}
	return h
}

func parseDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	padded := zeroPad(parts[0], 2) + "/" + zeroPad(parts[1], 2) + "/" + parts[2]
	t, err := time.Parse(dateLayout, padded)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func parseClock(s string) (time.Time, error) {
	raw := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(raw) < 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	marker := raw[len(raw)-2:]
	if marker != "AM" && marker != "PM" {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	parts := strings.Split(raw[:len(raw)-2], ":")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 2 {
		parts = append(parts, "00")
	}
	for i := range parts {
		parts[i] = zeroPad(parts[i], 2)
	}

	t, err := time.Parse(clockLayout, strings.Join(parts, ":")+marker)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t, nil
}

func zeroPad(s string, width int) string {
	s = strings.TrimSpace(s)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ParseDurationText converts directions duration text such as "1 hour 5 mins"
// or "2 days 3 hours" into whole minutes.
func ParseDurationText(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields)%2 != 0 {
		return 0, fmt.Errorf("invalid duration text: %q", s)
	}

	total := 0
	for i := 0; i < len(fields); i += 2 {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid duration text: %q", s)
		}
		switch strings.TrimSuffix(strings.ToLower(fields[i+1]), "s") {
		case "day":
			total += v * 24 * 60
		case "hour":
			total += v * 60
		case "min":
			total += v
		default:
			return 0, fmt.Errorf("invalid duration text: %q", s)
		}
	}
	return total, nil
}
