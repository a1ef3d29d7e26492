package operator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/ahrsweb"
	"github.com/Fritz179/fhgr-poisson/link"
)

const (
	DefaultFramePeriod = time.Second / 60
	frameWindow        = 20 // Frames averaged for the frame time
	fallbackTempStep   = 0.1
)

// Link is the part of link.OperatorLink the station uses.
type Link interface {
	SetCommand(c link.Command)
	Snapshot() link.OperatorSnapshot
}

// Publisher receives every frame; *ahrsweb.Room is one.
type Publisher interface {
	Publish(v interface{}) error
}

// Station runs the operator frame loop: it applies key input to the pilot,
// hands the command to the link and publishes what the operator should see.
type Station struct {
	FramePeriod time.Duration

	pilot     *Pilot
	link      Link
	input     <-chan ahrsweb.KeyEvent
	out       Publisher
	freshness link.Freshness
	now       func() time.Time

	start        time.Time
	prev         time.Time
	display      link.State
	fallbackTemp float64
	frameTimes   []float64
	lastStatus   string
}

// NewStation returns a station reading keys from input. stateTimeout decides
// when telemetry is too old to display.
func NewStation(p *Pilot, l Link, input <-chan ahrsweb.KeyEvent, out Publisher, stateTimeout time.Duration) *Station {
	if stateTimeout <= 0 {
		stateTimeout = link.DefaultStateTimeout
	}
	return &Station{
		FramePeriod: DefaultFramePeriod,
		pilot:       p,
		link:        l,
		input:       input,
		out:         out,
		freshness:   link.Freshness{Timeout: stateTimeout},
		now:         time.Now,
		display:     link.NeutralState(),
	}
}

// Run produces frames until ctx is done.
func (s *Station) Run(ctx context.Context) error {
	s.start = s.now()
	s.prev = s.start
	ticker := time.NewTicker(s.FramePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.input:
			s.Key(ev)
		case <-ticker.C:
			t0 := s.now()
			d := s.Frame(t0)
			if err := s.out.Publish(d); err != nil {
				log.Printf("Operator: %s\n", err)
			}
			s.frameDone(s.now().Sub(t0))
		}
	}
}

// Key passes a key event to the pilot. A level reset keeps the displayed yaw.
func (s *Station) Key(ev ahrsweb.KeyEvent) {
	_, _, yaw := ahrs.ToEuler(s.display.Q)
	s.pilot.Key(ev, yaw)
}

func (s *Station) frameDone(d time.Duration) {
	s.frameTimes = append(s.frameTimes, d.Seconds()*1000)
	if len(s.frameTimes) > frameWindow {
		s.frameTimes = s.frameTimes[1:]
	}
}

// Frame advances the pilot to now, sends the command and builds the frame
// to display.
func (s *Station) Frame(now time.Time) *ahrsweb.AHRSData {
	if s.start.IsZero() {
		s.start, s.prev = now, now
	}
	s.pilot.Step(now.Sub(s.prev).Seconds())
	s.prev = now
	cmd := s.pilot.Command()
	s.link.SetCommand(cmd)

	snap := s.link.Snapshot()
	fresh := s.freshness.Fresh(snap.LastReceived, now)
	if fresh {
		s.display = snap.State
		s.fallbackTemp = snap.State.Temp
	} else {
		// No telemetry: show the target and let the temperature drift
		s.fallbackTemp += fallbackTempStep
		s.display = link.State{Q: cmd.Target, Throttle: cmd.Throttle, Law: cmd.Law, Temp: s.fallbackTemp}
	}

	d := &ahrsweb.AHRSData{
		Source:   "operator",
		A1:       s.display.A1,
		A2:       s.display.A2,
		A3:       s.display.A3,
		B1:       s.display.G1,
		B2:       s.display.G2,
		B3:       s.display.G3,
		Temp:     s.display.Temp,
		Throttle: s.display.Throttle,
		Law:      cmd.Law,
		Gains:    cmd.Gains,
		Status:   strings.Join(s.StatusLines(snap, now), "; "),
		Stale:    !fresh,
	}
	d.SetTime(now)
	d.SetOrientation(s.display.Q)
	d.SetTarget(cmd.Target)
	if len(s.frameTimes) > 0 {
		var sum float64
		for _, ft := range s.frameTimes {
			sum += ft
		}
		d.FrameMS = sum / float64(len(s.frameTimes))
	}

	if d.Status != s.lastStatus {
		log.Printf("Operator: %s\n", d.Status)
		s.lastStatus = d.Status
	}
	return d
}

// StatusLines describes the link for the operator. Until the state timeout
// has passed since start, a link that never delivered reads as connecting.
func (s *Station) StatusLines(snap link.OperatorSnapshot, now time.Time) []string {
	st := s.freshness.Status(snap, now)
	if st == link.NotConnected || st == link.Connecting {
		st = link.NotConnected
		if snap.LastReceived.IsZero() && now.Sub(s.start) < s.freshness.Timeout {
			st = link.Connecting
		}
	}
	lines := []string{st.String()}
	if st != link.Connecting && snap.ConnectError != nil {
		lines = append(lines, snap.ConnectError.Error())
	}
	return lines
}
