package link

import "time"

const DefaultStateTimeout = 5 * time.Second

// Freshness decides whether the last received value can still be trusted.
type Freshness struct {
	Timeout time.Duration
}

// Fresh reports whether a value received at last is still usable at now.
// A zero last means nothing was ever received.
func (f Freshness) Fresh(last, now time.Time) bool {
	if last.IsZero() {
		return false
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultStateTimeout
	}
	return now.Sub(last) <= timeout
}

// Status summarizes the health of an endpoint.
type Status int

const (
	NotConnected Status = iota
	Connecting
	ConnectedNoData
	Connected
	Stale
)

func (s Status) String() string {
	switch s {
	case NotConnected:
		return "Not connected"
	case Connecting:
		return "Connecting..."
	case ConnectedNoData:
		return "Connected (no data yet)"
	case Connected:
		return "Connected"
	case Stale:
		return "Connected (telemetry stale)"
	}
	return "Unknown"
}

// Status classifies an operator snapshot at time now.
func (f Freshness) Status(s OperatorSnapshot, now time.Time) Status {
	switch {
	case !s.Connected && s.ConnectError != nil:
		return NotConnected
	case !s.Connected:
		return Connecting
	case s.LastReceived.IsZero():
		return ConnectedNoData
	case f.Fresh(s.LastReceived, now):
		return Connected
	}
	return Stale
}
