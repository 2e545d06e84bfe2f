package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"transit-replay/internal/aggregate"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-replay"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			slog.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			slog.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			slog.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type TripMessage struct {
	ID                int       `json:"id"`
	RunID             string    `json:"runId,omitempty"`
	Departure         time.Time `json:"departure"`
	Hour              int       `json:"hour"`
	TransitMinutes    int       `json:"transitMinutes"`
	DurationSource    string    `json:"durationSource"`
	WalkingMinutes    int       `json:"walkingMinutes"`
	BusMinutes        int       `json:"busMinutes"`
	WaitingMinutes    int       `json:"waitingMinutes"`
	Modes             []string  `json:"modes"`
	RideshareMinutes  *float64  `json:"rideshareMinutes,omitempty"`
	Ratio             *float64  `json:"ratio,omitempty"`
	StraightLineMiles float64   `json:"straightLineMiles"`
}

func NewTripMessage(runID string, t aggregate.EnrichedTrip) TripMessage {
	modes := make([]string, len(t.Reduced.Modes))
	for i, m := range t.Reduced.Modes {
		modes[i] = string(m)
	}
	return TripMessage{
		ID:                t.ID,
		RunID:             runID,
		Departure:         time.Unix(t.AlignedEpoch, 0).UTC(),
		Hour:              t.Hour,
		TransitMinutes:    t.Reduced.DurationMinutes,
		DurationSource:    t.Reduced.DurationSource.String(),
		WalkingMinutes:    t.Splits.Walking,
		BusMinutes:        t.Splits.Bus,
		WaitingMinutes:    t.Splits.Waiting,
		Modes:             modes,
		RideshareMinutes:  t.RideshareMinutes,
		Ratio:             t.Ratio,
		StraightLineMiles: t.StraightLineMiles,
	}
}

// Subject is <prefix>.<id>.
func (p *NATSPublisher) Subject(id int) string {
	return subject(p.prefix, id)
}

func (p *NATSPublisher) PublishTrip(msg TripMessage) error {
	subject := p.Subject(msg.ID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		slog.Debug("nats publish", "subject", subject)
	}
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// PublishAll publishes every trip and returns the first error, after trying
// all of them.
func (p *NATSPublisher) PublishAll(runID string, trips []aggregate.EnrichedTrip) error {
	var first error
	for _, t := range trips {
		if err := p.PublishTrip(NewTripMessage(runID, t)); err != nil && first == nil {
			first = fmt.Errorf("publisher.PublishAll: trip %d: %w", t.ID, err)
		}
	}
	if err := p.nc.Flush(); err != nil && first == nil {
		first = fmt.Errorf("publisher.PublishAll: %w", err)
	}
	return first
}

func subject(prefix string, id int) string {
	tokens := strings.Split(strings.Trim(prefix, "."), ".")
	for i, t := range tokens {
		tokens[i] = subjectToken(t)
	}
	return strings.Join(append(tokens, strconv.Itoa(id)), ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
