package timenorm

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Chicago-recorded data converted on an Eastern-anchored clock.
func newCentral() *Normalizer { return New(-6, -5) }

func TestLocalToEpoch(t *testing.T) {
	n := newCentral()
	tests := []struct {
		name  string
		date  string
		clock string
		want  time.Time
	}{
		{
			name:  "padded pm",
			date:  "03/05/2024",
			clock: "01:15 PM",
			want:  time.Date(2024, 3, 5, 13, 15, 0, 0, time.FixedZone("", -6*3600)),
		},
		{
			name:  "unpadded date and hour",
			date:  "3/5/2024",
			clock: "1:15 PM",
			want:  time.Date(2024, 3, 5, 13, 15, 0, 0, time.FixedZone("", -6*3600)),
		},
		{
			name:  "no space before marker",
			date:  "11/9/2023",
			clock: "09:07AM",
			want:  time.Date(2023, 11, 9, 9, 7, 0, 0, time.FixedZone("", -6*3600)),
		},
		{
			name:  "midnight",
			date:  "1/1/2024",
			clock: "12:00 am",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("", -6*3600)),
		},
		{
			name:  "with seconds",
			date:  "1/1/2024",
			clock: "12:00:59 PM",
			want:  time.Date(2024, 1, 1, 12, 0, 59, 0, time.FixedZone("", -6*3600)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.LocalToEpoch(tt.date, tt.clock)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Unix(), got)
		})
	}
}

func TestLocalToEpoch_hourRolloverKeepsDate(t *testing.T) {
	n := newCentral()

	got, err := n.LocalToEpoch("3/5/2024", "11:30 PM")

	require.NoError(t, err)
	// 23:30 + 1h wraps to 00:30 local on the same calendar day.
	want := time.Date(2024, 3, 5, 0, 30, 0, 0, time.FixedZone("", -5*3600))
	assert.Equal(t, want.Unix(), got)
}

func TestLocalToEpoch_invalid(t *testing.T) {
	n := newCentral()
	tests := []struct {
		date, clock string
		want        error
	}{
		{"2024-03-05", "1:15 PM", ErrInvalidDate},
		{"13/5/2024", "1:15 PM", ErrInvalidDate},
		{"3/5/2024", "1:15", ErrInvalidClock},
		{"3/5/2024", "13:15 PM", ErrInvalidClock},
		{"3/5/2024", "", ErrInvalidClock},
		{"3/5/2024", "1:75 PM", ErrInvalidClock},
	}
	for _, tt := range tests {
		t.Run(tt.date+" "+tt.clock, func(t *testing.T) {
			_, err := n.LocalToEpoch(tt.date, tt.clock)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRoundTripClock(t *testing.T) {
	for _, n := range []*Normalizer{newCentral(), New(-5, -5), New(-8, -5)} {
		for hour := 1; hour <= 12; hour++ {
			for _, marker := range []string{"AM", "PM"} {
				for _, minute := range []string{"00", "07", "59"} {
					clock := strconv.Itoa(hour) + ":" + minute + " " + marker
					epoch, err := n.LocalToEpoch("6/14/2024", clock)
					require.NoError(t, err)

					h24 := hour % 12
					if marker == "PM" {
						h24 += 12
					}
					assert.Equal(t, strconv.Itoa(h24)+":"+minute, n.EpochToLocalClock(epoch), clock)
					assert.Equal(t, h24, n.Hour(epoch))
				}
			}
		}
	}
}

func TestEpochToLocalClock_unpaddedHour(t *testing.T) {
	n := newCentral()
	epoch := time.Date(2024, 6, 14, 9, 5, 0, 0, n.Location()).Unix()

	assert.Equal(t, "8:05", n.EpochToLocalClock(epoch))
}

func TestAlignToTargetWeek(t *testing.T) {
	n := newCentral()
	target := time.Date(2024, 11, 20, 12, 0, 0, 0, n.Location()).Unix() // Wednesday

	tests := []struct {
		name   string
		source time.Time
		want   time.Time
	}{
		{
			name:   "monday moves back",
			source: time.Date(2023, 2, 6, 8, 30, 15, 0, n.Location()),
			want:   time.Date(2024, 11, 18, 8, 30, 15, 0, n.Location()),
		},
		{
			name:   "sunday moves forward",
			source: time.Date(2023, 2, 12, 23, 59, 0, 0, n.Location()),
			want:   time.Date(2024, 11, 24, 23, 59, 0, 0, n.Location()),
		},
		{
			name:   "same weekday",
			source: time.Date(2022, 7, 13, 0, 0, 0, 0, n.Location()),
			want:   time.Date(2024, 11, 20, 0, 0, 0, 0, n.Location()),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.Unix(), n.AlignToTargetWeek(tt.source.Unix(), target))
		})
	}
}

func TestAlignToTargetWeek_preservesDayOfWeek(t *testing.T) {
	n := newCentral()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, n.Location()).Unix()
	targets := []int64{
		time.Date(2024, 11, 18, 9, 0, 0, 0, n.Location()).Unix(),
		time.Date(2025, 3, 2, 23, 0, 0, 0, n.Location()).Unix(),
		time.Date(2026, 12, 31, 0, 30, 0, 0, n.Location()).Unix(),
	}

	for _, w := range targets {
		for e := base; e < base+30*86400; e += 3*3600 + 17*60 {
			got := n.AlignToTargetWeek(e, w)
			require.Equal(t, n.DayOfWeek(e), n.DayOfWeek(got))

			src := time.Unix(e, 0).In(n.Location())
			res := time.Unix(got, 0).In(n.Location())
			require.Equal(t, src.Hour(), res.Hour())
			require.Equal(t, src.Minute(), res.Minute())

			// Re-application is a no-op once the weekday already matches.
			require.Equal(t, got, n.AlignToTargetWeek(got, w))
		}
	}
}

func TestDayOfWeek(t *testing.T) {
	assert.Equal(t, 0, DayOfWeek(time.Date(2024, 11, 18, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 6, DayOfWeek(time.Date(2024, 11, 24, 0, 0, 0, 0, time.UTC)))
}

func TestParseDurationText(t *testing.T) {
	tests := map[string]int{
		"1 min":         1,
		"15 mins":       15,
		"1 hour 5 mins": 65,
		"2 hours 1 min": 121,
		"1 day 2 hours": 1560,
		"3 hours":       180,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseDurationText(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, bad := range []string{"", "mins", "five mins", "1 fortnight"} {
		_, err := ParseDurationText(bad)
		assert.Error(t, err, bad)
	}
}
