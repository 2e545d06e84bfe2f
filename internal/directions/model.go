package directions

import "strings"

// Response statuses returned by the directions API.
const (
	StatusOK           = "OK"
	StatusZeroResults  = "ZERO_RESULTS"
	StatusUnknownError = "UNKNOWN_ERROR"
)

type Mode string

const (
	ModeWalking Mode = "walking"
	ModeTransit Mode = "transit"
	ModeDriving Mode = "driving"
)

// ParseMode normalizes an API travel_mode ("WALKING") to a Mode.
func ParseMode(s string) Mode {
	return Mode(strings.ToLower(strings.TrimSpace(s)))
}

type Response struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Routes       []Route `json:"routes"`
}

type Route struct {
	Summary string `json:"summary,omitempty"`
	Legs    []Leg  `json:"legs"`
}

type Leg struct {
	Distance      *Value     `json:"distance,omitempty"`
	Duration      *Value     `json:"duration,omitempty"`
	ArrivalTime   *TimeValue `json:"arrival_time,omitempty"`
	DepartureTime *TimeValue `json:"departure_time,omitempty"`
	StartAddress  string     `json:"start_address,omitempty"`
	EndAddress    string     `json:"end_address,omitempty"`
	Steps         []Step     `json:"steps"`
}

type Step struct {
	TravelMode     string          `json:"travel_mode"`
	Distance       *Value          `json:"distance,omitempty"`
	Duration       *Value          `json:"duration,omitempty"`
	TransitDetails *TransitDetails `json:"transit_details,omitempty"`
}

type TransitDetails struct {
	NumStops int `json:"num_stops"`
	Line     struct {
		Name      string `json:"name,omitempty"`
		ShortName string `json:"short_name,omitempty"`
		Vehicle   struct {
			Type string `json:"type,omitempty"`
		} `json:"vehicle"`
	} `json:"line"`
}

// Value is the {text, value} pair used for distances (meters) and durations (seconds).
type Value struct {
	Text  string `json:"text"`
	Value int64  `json:"value"`
}

// TimeValue is an absolute time; Value is epoch seconds.
type TimeValue struct {
	Text     string `json:"text"`
	TimeZone string `json:"time_zone"`
	Value    int64  `json:"value"`
}

// FirstLeg returns the first leg of the first route, or nil.
func (r *Response) FirstLeg() *Leg {
	if len(r.Routes) == 0 || len(r.Routes[0].Legs) == 0 {
		return nil
	}
	return &r.Routes[0].Legs[0]
}
