// Package vehicle runs the vehicle side: it polls the IMU, estimates the
// attitude, reports it to the operator and drives the actuators from the
// latest command.
package vehicle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Fritz179/fhgr-poisson/actuators"
	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/ahrsweb"
	"github.com/Fritz179/fhgr-poisson/control"
	"github.com/Fritz179/fhgr-poisson/link"
	"github.com/Fritz179/fhgr-poisson/recorder"
	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/pkg/errors"
)

// ErrSensorFailed ends the poll loop after too many consecutive failed reads.
var ErrSensorFailed = errors.New("sensor failed")

const DefaultMaxSensorFailures = 25

// Config holds the poll loop settings.
type Config struct {
	PollPeriod        time.Duration
	StateTimeout      time.Duration // Commands older than this put the vehicle in failsafe
	MaxSensorFailures int
}

// Link is the part of link.VehicleLink the poll loop uses.
type Link interface {
	SendState(e ahrs.Estimate) error
	Latest() link.VehicleSnapshot
}

// Vehicle owns the poll loop. Only Run's goroutine touches the estimator,
// mixer and mapper.
type Vehicle struct {
	cfg       Config
	imu       sensors.IMUReader
	estimator ahrs.AHRSProvider
	link      Link
	mixer     *control.Mixer
	mapper    *actuators.Mapper
	freshness link.Freshness
	now       func() time.Time

	// Optional
	Recorder recorder.Sink
	Session  string
	Monitor  func(d *ahrsweb.AHRSData)

	failures int
	failsafe bool
	lastErr  time.Time

	mu      sync.Mutex
	lastLaw int
}

// New assembles a vehicle. Zero config values take their defaults.
func New(cfg Config, imu sensors.IMUReader, estimator ahrs.AHRSProvider, l Link, mixer *control.Mixer, mapper *actuators.Mapper) *Vehicle {
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 50 * time.Millisecond
	}
	if cfg.StateTimeout <= 0 {
		cfg.StateTimeout = link.DefaultStateTimeout
	}
	if cfg.MaxSensorFailures <= 0 {
		cfg.MaxSensorFailures = DefaultMaxSensorFailures
	}
	return &Vehicle{
		cfg:       cfg,
		imu:       imu,
		estimator: estimator,
		link:      l,
		mixer:     mixer,
		mapper:    mapper,
		freshness: link.Freshness{Timeout: cfg.StateTimeout},
		now:       time.Now,
		failsafe:  true,
		lastLaw:   -1,
	}
}

// OnCommand is registered with the link; it runs on the link's receive goroutine.
func (v *Vehicle) OnCommand(c link.Command) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c.Law != v.lastLaw {
		log.Printf("Vehicle: operator selected law %d (%s)\n", c.Law, control.LawKind(c.Law))
		v.lastLaw = c.Law
	}
}

// Run drives the actuators to neutral, then polls until ctx is done or the
// sensor fails for good. The actuators are left neutral and disabled.
func (v *Vehicle) Run(ctx context.Context) (err error) {
	if err := v.mapper.Enable(); err != nil {
		return errors.Wrap(err, "Vehicle: startup")
	}
	defer func() {
		if cerr := v.mapper.Close(); cerr != nil && err == nil {
			err = cerr
		}
		log.Println("Vehicle: actuators neutral")
	}()

	ticker := time.NewTicker(v.cfg.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := v.Tick(); err != nil {
				log.Printf("Vehicle: %s\n", err)
				return err
			}
		}
	}
}

// Tick runs one iteration of the poll loop. A failed read skips the tick and
// only becomes an error after MaxSensorFailures in a row.
func (v *Vehicle) Tick() error {
	d, err := v.imu.Read()
	if err != nil {
		v.failures++
		if v.failures >= v.cfg.MaxSensorFailures {
			return errors.Wrapf(ErrSensorFailed, "%d consecutive failed reads, last: %v", v.failures, err)
		}
		if now := v.now(); now.Sub(v.lastErr) >= time.Second {
			log.Printf("Vehicle: sensor read failed (%d in a row): %s\n", v.failures, err)
			v.lastErr = now
		}
		return nil
	}
	v.failures = 0

	e := v.estimator.Compute(&ahrs.Measurement{
		A1: d.A1, A2: d.A2, A3: d.A3,
		B1: d.G1, B2: d.G2, B3: d.G3,
		Temp: d.Temp,
		T:    d.T,
	})
	if err := v.link.SendState(e); err != nil {
		log.Printf("Vehicle: %s\n", err)
	}

	snap := v.link.Latest()
	stale := !v.freshness.Fresh(snap.LastReceived, v.now())
	if stale != v.failsafe {
		if stale {
			log.Println("Vehicle: no fresh command, failsafe neutral")
		} else {
			log.Println("Vehicle: commands resumed")
		}
		v.failsafe = stale
	}

	var res control.Result
	if stale {
		res = control.Result{Law: control.LawKind(snap.Command.Law)}
		if err := v.mapper.Neutral(); err != nil {
			log.Printf("Vehicle: %s\n", err)
		}
	} else {
		c := snap.Command
		res, err = v.mixer.Mix(e, control.Setpoint{
			Target:   c.Target,
			Throttle: c.Throttle,
			Law:      control.LawKind(c.Law),
			Gains:    c.Gains,
		})
		if err != nil {
			log.Printf("Vehicle: %s, holding neutral\n", err)
			res = control.Result{Law: control.LawKind(c.Law)}
		}
		if _, err := v.mapper.Apply(res.Output); err != nil {
			log.Printf("Vehicle: %s\n", err)
		}
	}

	v.report(e, snap.Command, stale, res)
	return nil
}

func (v *Vehicle) report(e ahrs.Estimate, c link.Command, stale bool, res control.Result) {
	if v.Recorder != nil {
		// Multi sinks log their own errors
		v.Recorder.Write(recorder.NewRecord(v.Session, e, c, stale, res))
	}
	if v.Monitor == nil {
		return
	}
	d := &ahrsweb.AHRSData{
		Source: "vehicle",
		A1:     e.A1, A2: e.A2, A3: e.A3,
		B1: e.B1, B2: e.B2, B3: e.B3,
		Temp:      e.Temp,
		Throttle:  res.Output.Throttle,
		Law:       c.Law,
		Gains:     c.Gains,
		Stale:     stale,
		Left:      res.Output.Left,
		Middle:    res.Output.Middle,
		Right:     res.Output.Right,
		Authority: res.Authority,
	}
	d.SetTime(e.T)
	d.SetOrientation(e.Q)
	d.SetTarget(c.Target)
	if stale {
		d.Status = "Failsafe"
	} else {
		d.Status = "Commanded"
	}
	v.Monitor(d)
}
