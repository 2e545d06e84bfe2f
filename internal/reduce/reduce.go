// Package reduce turns an archived directions response into per-trip
// durations and per-mode time/distance totals.
package reduce

import (
	"encoding/json"
	"fmt"
	"slices"

	"transit-replay/internal/directions"
)

const metersPerMile = 1609.34

type Kind uint8

const (
	OK Kind = iota
	Unreducible
	Malformed
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Unreducible:
		return "unreducible"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Reason explains why a response is Unreducible.
type Reason string

const (
	ReasonZeroResults  Reason = "zero results"
	ReasonUnknownError Reason = "unknown error"
	ReasonStatus       Reason = "status"
	ReasonDriving      Reason = "driving directions"
)

// DurationSource records which of the two duration computations produced
// DurationMinutes.
type DurationSource uint8

const (
	// FromArrival is arrival_time minus the requested departure. Used for
	// transit routes so the wait before the first scheduled vehicle counts.
	FromArrival DurationSource = iota + 1
	// FromLegDuration is the leg's own duration field (walking-only routes).
	FromLegDuration
)

func (s DurationSource) String() string {
	switch s {
	case FromArrival:
		return "arrival"
	case FromLegDuration:
		return "leg"
	default:
		return ""
	}
}

type ModeTotals struct {
	DistanceMiles float64
	TimeMinutes   int
}

type Reduced struct {
	ID              int
	DurationMinutes int
	DurationSource  DurationSource
	Modes           []directions.Mode // distinct, sorted
	PerMode         map[directions.Mode]ModeTotals
}

// Minutes spent in mode, 0 when the route does not use it.
func (r Reduced) Minutes(m directions.Mode) int {
	return r.PerMode[m].TimeMinutes
}

func (r Reduced) HasMode(m directions.Mode) bool {
	return slices.Contains(r.Modes, m)
}

// Result is the outcome of reducing one response. Trip is only meaningful
// when Kind is OK; Reason only when Kind is Unreducible.
type Result struct {
	Kind   Kind
	Reason Reason
	Detail string
	Trip   Reduced
}

func (r Result) String() string {
	switch r.Kind {
	case OK:
		return fmt.Sprintf("ok: %d min", r.Trip.DurationMinutes)
	case Unreducible:
		if r.Detail != "" {
			return fmt.Sprintf("unreducible: %s (%s)", r.Reason, r.Detail)
		}
		return "unreducible: " + string(r.Reason)
	default:
		return "malformed: " + r.Detail
	}
}

func unreducible(reason Reason, detail string) Result {
	return Result{Kind: Unreducible, Reason: reason, Detail: detail}
}

func malformed(format string, args ...any) Result {
	return Result{Kind: Malformed, Detail: fmt.Sprintf(format, args...)}
}

// Parse decodes a raw directions response.
func Parse(raw []byte) (*directions.Response, error) {
	var resp directions.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TravelModes returns the distinct modes across the steps of the first leg
// of the first route.
func TravelModes(resp *directions.Response) []directions.Mode {
	leg := resp.FirstLeg()
	if leg == nil {
		return nil
	}
	var modes []directions.Mode
	for _, s := range leg.Steps {
		m := directions.ParseMode(s.TravelMode)
		if !slices.Contains(modes, m) {
			modes = append(modes, m)
		}
	}
	slices.Sort(modes)
	return modes
}

// Reduce parses raw and reduces it against the departure epoch the request
// was issued with.
func Reduce(id int, raw []byte, departure int64) Result {
	resp, err := Parse(raw)
	if err != nil {
		return malformed("decode: %v", err)
	}
	return ReduceResponse(id, resp, departure)
}

func ReduceResponse(id int, resp *directions.Response, departure int64) Result {
	switch resp.Status {
	case directions.StatusOK:
	case directions.StatusZeroResults:
		return unreducible(ReasonZeroResults, "")
	case directions.StatusUnknownError:
		return unreducible(ReasonUnknownError, resp.ErrorMessage)
	case "":
		return malformed("missing status")
	default:
		return unreducible(ReasonStatus, resp.Status)
	}

	leg := resp.FirstLeg()
	if leg == nil {
		return malformed("no route legs")
	}

	modes := TravelModes(resp)
	out := Reduced{ID: id, Modes: modes, PerMode: make(map[directions.Mode]ModeTotals, len(modes))}
	if out.HasMode(directions.ModeDriving) {
		return unreducible(ReasonDriving, "")
	}

	if out.HasMode(directions.ModeTransit) {
		if leg.ArrivalTime == nil {
			return malformed("transit leg without arrival_time")
		}
		// An arrival before the requested departure means the response was
		// fetched for another week.
		if leg.ArrivalTime.Value < departure {
			return malformed("arrival_time %d before departure %d", leg.ArrivalTime.Value, departure)
		}
		out.DurationMinutes = int((leg.ArrivalTime.Value - departure) / 60)
		out.DurationSource = FromArrival
	} else {
		if leg.Duration == nil {
			return malformed("leg without duration")
		}
		out.DurationMinutes = int(leg.Duration.Value / 60)
		out.DurationSource = FromLegDuration
	}

	meters := make(map[directions.Mode]int64, len(modes))
	seconds := make(map[directions.Mode]int64, len(modes))
	for i, s := range leg.Steps {
		if s.Distance == nil || s.Duration == nil {
			return malformed("step %d without distance or duration", i)
		}
		m := directions.ParseMode(s.TravelMode)
		meters[m] += s.Distance.Value
		seconds[m] += s.Duration.Value
	}
	for _, m := range modes {
		out.PerMode[m] = ModeTotals{
			DistanceMiles: float64(meters[m]) / metersPerMile,
			TimeMinutes:   int(seconds[m] / 60),
		}
	}

	return Result{Kind: OK, Trip: out}
}
