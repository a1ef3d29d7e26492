package recorder

import (
	"github.com/Fritz179/fhgr-poisson/ahrs"
)

var csvHeader = []string{
	"T", "DT",
	"Roll", "Pitch", "Yaw",
	"Q0", "Q1", "Q2", "Q3",
	"A1", "A2", "A3", "B1", "B2", "B3", "Temp",
	"TargetQ0", "TargetQ1", "TargetQ2", "TargetQ3",
	"Throttle", "Law", "Stale",
	"Left", "Middle", "Right", "ThrottleOut", "Authority",
}

// CSVSink writes one row per record through an AHRSLogger.
type CSVSink struct {
	l *ahrs.AHRSLogger
}

func NewCSVSink(fn string) (*CSVSink, error) {
	l, err := ahrs.NewAHRSLogger(fn, csvHeader...)
	if err != nil {
		return nil, err
	}
	return &CSVSink{l: l}, nil
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (s *CSVSink) Write(r *Record) error {
	return s.l.Log(
		float64(r.T.UnixNano())/1e9, r.DT,
		r.Roll, r.Pitch, r.Yaw,
		r.Q[0], r.Q[1], r.Q[2], r.Q[3],
		r.A[0], r.A[1], r.A[2], r.G[0], r.G[1], r.G[2], r.Temp,
		r.Target[0], r.Target[1], r.Target[2], r.Target[3],
		r.Throttle, float64(r.Law), b2f(r.Stale),
		r.Out.Left, r.Out.Middle, r.Out.Right, r.Out.Throttle, b2f(r.Authority),
	)
}

func (s *CSVSink) Close() error {
	return s.l.Close()
}
