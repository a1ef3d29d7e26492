// Package recorder stores vehicle telemetry ticks: to CSV for analysis, to
// NATS for live consumers and to Redis as the last known state.
package recorder

import (
	"log"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/control"
	"github.com/Fritz179/fhgr-poisson/link"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record is one vehicle tick.
type Record struct {
	Session string    `json:"session"`
	T       time.Time `json:"t"`

	Q                [4]float64 `json:"q"` // w, x, y, z
	Roll, Pitch, Yaw float64    `json:"-"`
	A                [3]float64 `json:"accel"` // G
	G                [3]float64 `json:"gyro"`  // °/s
	Temp             float64    `json:"temp_c"`
	DT               float64    `json:"dt"`

	Target   [4]float64 `json:"target"`
	Throttle float64    `json:"throttle"`
	Law      int        `json:"law"`
	Stale    bool       `json:"stale"`

	Out       control.Output `json:"out"`
	Authority bool           `json:"authority"`
}

// NewRecord builds a record from one tick of the vehicle loop.
func NewRecord(session string, e ahrs.Estimate, c link.Command, stale bool, res control.Result) *Record {
	r := &Record{
		Session:   session,
		T:         e.T,
		Q:         [4]float64{e.Q.W, e.Q.X, e.Q.Y, e.Q.Z},
		A:         [3]float64{e.A1, e.A2, e.A3},
		G:         [3]float64{e.B1, e.B2, e.B3},
		Temp:      e.Temp,
		DT:        e.DT,
		Target:    [4]float64{c.Target.W, c.Target.X, c.Target.Y, c.Target.Z},
		Throttle:  c.Throttle,
		Law:       c.Law,
		Stale:     stale,
		Out:       res.Output,
		Authority: res.Authority,
	}
	r.Roll, r.Pitch, r.Yaw = ahrs.ToEuler(e.Q)
	return r
}

// NewSession returns a fresh session id.
func NewSession() string {
	return uuid.NewString()
}

// Sink stores records.
type Sink interface {
	Write(r *Record) error
	Close() error
}

// Multi writes every record to all of its sinks. A failing sink does not
// stop the others; errors are logged at most once per second.
type Multi struct {
	sinks   []Sink
	lastLog time.Time
	dropped int
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Write returns the first error, if any.
func (m *Multi) Write(r *Record) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Write(r); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		m.dropped++
		if now := time.Now(); now.Sub(m.lastLog) >= time.Second {
			log.Printf("Recorder: %d record(s) not stored, last: %s\n", m.dropped, first)
			m.lastLog = now
			m.dropped = 0
		}
	}
	return first
}

// Close closes every sink.
func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "Recorder: close")
		}
	}
	return first
}
