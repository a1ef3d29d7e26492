// Package config loads the operator and vehicle settings from YAML, the
// environment and command-line flags.
package config

import (
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Fritz179/fhgr-poisson/actuators"
	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/control"
	"github.com/Fritz179/fhgr-poisson/link"
	"github.com/Fritz179/fhgr-poisson/operator"
	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is the cause of every validation error.
var ErrInvalid = errors.New("invalid configuration")

const (
	ModeOperator = "operator"
	ModeVehicle  = "vehicle"

	SensorMPU6050 = "mpu6050"
	SensorSim     = "sim"

	PWMRPIO = "rpio"
	PWMEmbd = "embd"
	PWMNull = "null"
)

// AppConfig is the whole configuration of either end.
type AppConfig struct {
	Mode     string         `yaml:"mode"`
	Link     LinkConfig     `yaml:"link"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Operator OperatorConfig `yaml:"operator"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type LinkConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`  // Vehicle binds here
	VehicleAddr  string        `yaml:"vehicle_addr"` // Operator dials here
	SendPeriod   time.Duration `yaml:"send_period"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	StateTimeout time.Duration `yaml:"state_timeout"`
	BackoffMin   time.Duration `yaml:"backoff_min"`
	BackoffHard  time.Duration `yaml:"backoff_hard"`
}

type VehicleConfig struct {
	PollPeriod        time.Duration    `yaml:"poll_period"`
	Alpha             float64          `yaml:"alpha"`
	MaxSensorFailures int              `yaml:"max_sensor_failures"`
	Sensor            string           `yaml:"sensor"`
	I2CBus            byte             `yaml:"i2c_bus"`
	I2CAddress        byte             `yaml:"i2c_address"`
	CalFile           string           `yaml:"cal_file"`
	Mount             [][]float64      `yaml:"mount"`
	PWM               string           `yaml:"pwm"`
	PWMFreq           float64          `yaml:"pwm_freq"`
	Layout            actuators.Layout `yaml:"layout"`
	Mounting          control.Mounting `yaml:"mounting"`
}

type OperatorConfig struct {
	FramePeriod   time.Duration `yaml:"frame_period"`
	InitialLaw    int           `yaml:"initial_law"`
	Gains         [3][3]float64 `yaml:"gains"` // Per law
	ThrottleLimit float64       `yaml:"throttle_limit"`
}

type MonitorConfig struct {
	Addr   string `yaml:"addr"`   // Empty disables the monitor
	Remote string `yaml:"remote"` // Vehicle: also publish frames to this room, ws://host:port/ahrsweb
}

type RecorderConfig struct {
	CSV         string `yaml:"csv"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisKey    string `yaml:"redis_key"`
}

// Default returns the configuration used when nothing else is given.
func Default() *AppConfig {
	return &AppConfig{
		Mode: ModeOperator,
		Link: LinkConfig{
			ListenAddr:   "0.0.0.0:5005",
			VehicleAddr:  "127.0.0.1:5005",
			SendPeriod:   link.DefaultSendPeriod,
			ReadTimeout:  link.DefaultReadTimeout,
			StateTimeout: link.DefaultStateTimeout,
			BackoffMin:   link.DefaultBackoffMin,
			BackoffHard:  link.DefaultBackoffHard,
		},
		Vehicle: VehicleConfig{
			PollPeriod:        50 * time.Millisecond,
			Alpha:             ahrs.DefaultAlpha,
			MaxSensorFailures: 25,
			Sensor:            SensorMPU6050,
			I2CBus:            1,
			I2CAddress:        0x68,
			CalFile:           sensors.DefaultCalDataLocation,
			Mount:             [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			PWM:               PWMNull,
			PWMFreq:           actuators.DefaultFreq,
			Layout:            actuators.DefaultLayout(),
			Mounting:          control.DefaultMounting,
		},
		Operator: OperatorConfig{
			FramePeriod:   time.Second / 60,
			InitialLaw:    int(control.LawProportional),
			Gains:         operator.DefaultGains,
			ThrottleLimit: link.ThrottleLimit,
		},
		Monitor: MonitorConfig{Addr: ":8000"},
		Recorder: RecorderConfig{
			NATSSubject: "poisson.telemetry",
			RedisKey:    "poisson:state",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any, and
// then with POISSON_* environment variables. The result is not validated.
func Load(path string) (*AppConfig, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "Config: couldn't read %s", path)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, errors.Wrapf(err, "Config: couldn't parse %s", path)
		}
	}
	c.ApplyEnv(os.Getenv)
	return c, nil
}

// ApplyEnv overrides settings from environment variables looked up by getenv.
func (c *AppConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv("POISSON_MODE"); v != "" {
		c.Mode = strings.ToLower(v)
	}
	if v := getenv("POISSON_LISTEN_ADDR"); v != "" {
		c.Link.ListenAddr = v
	}
	if v := getenv("POISSON_VEHICLE_ADDR"); v != "" {
		c.Link.VehicleAddr = v
	}
	if v := getenv("POISSON_MONITOR_ADDR"); v != "" {
		c.Monitor.Addr = v
	}
	if v := getenv("POISSON_MONITOR_REMOTE"); v != "" {
		c.Monitor.Remote = v
	}
	if v := getenv("POISSON_SENSOR"); v != "" {
		c.Vehicle.Sensor = strings.ToLower(v)
	}
	if v := getenv("POISSON_NATS_URL"); v != "" {
		c.Recorder.NATSURL = v
	}
	if v := getenv("POISSON_REDIS_ADDR"); v != "" {
		c.Recorder.RedisAddr = v
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

// checkAddr requires host:port with a numeric port in 0..65535.
func checkAddr(key, addr string) error {
	if addr == "" {
		return invalid("%s is empty", key)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return invalid("%s: %s", key, err)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		return invalid("%s: bad port %q", key, port)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks every setting used by the selected mode, and the shared ones.
func (c *AppConfig) Validate() error {
	if c.Mode != ModeOperator && c.Mode != ModeVehicle {
		return invalid("mode %q, want %s or %s", c.Mode, ModeOperator, ModeVehicle)
	}

	l := c.Link
	for name, d := range map[string]time.Duration{
		"link.send_period":   l.SendPeriod,
		"link.read_timeout":  l.ReadTimeout,
		"link.state_timeout": l.StateTimeout,
		"link.backoff_min":   l.BackoffMin,
		"link.backoff_hard":  l.BackoffHard,
	} {
		if d <= 0 {
			return invalid("%s must be positive, got %s", name, d)
		}
	}
	if l.BackoffHard < l.BackoffMin {
		return invalid("link.backoff_hard %s is shorter than link.backoff_min %s", l.BackoffHard, l.BackoffMin)
	}

	switch c.Mode {
	case ModeVehicle:
		return c.Vehicle.validate(l)
	default:
		return c.Operator.validate(l)
	}
}

func (v *VehicleConfig) validate(l LinkConfig) error {
	if err := checkAddr("link.listen_addr", l.ListenAddr); err != nil {
		return err
	}
	if v.PollPeriod <= 0 {
		return invalid("vehicle.poll_period must be positive, got %s", v.PollPeriod)
	}
	if !finite(v.Alpha) || v.Alpha < 0 || v.Alpha > 1 {
		return invalid("vehicle.alpha %f outside [0, 1]", v.Alpha)
	}
	if v.MaxSensorFailures < 1 {
		return invalid("vehicle.max_sensor_failures must be at least 1, got %d", v.MaxSensorFailures)
	}
	if v.Sensor != SensorMPU6050 && v.Sensor != SensorSim {
		return invalid("vehicle.sensor %q, want %s or %s", v.Sensor, SensorMPU6050, SensorSim)
	}
	if v.PWM != PWMRPIO && v.PWM != PWMEmbd && v.PWM != PWMNull {
		return invalid("vehicle.pwm %q, want %s, %s or %s", v.PWM, PWMRPIO, PWMEmbd, PWMNull)
	}
	if v.PWM == PWMRPIO {
		if err := actuators.CheckHardwarePWM(v.Layout); err != nil {
			return invalid("vehicle.layout on %s: %s", PWMRPIO, err)
		}
	}
	if !finite(v.PWMFreq) || v.PWMFreq <= 0 {
		return invalid("vehicle.pwm_freq %f must be positive", v.PWMFreq)
	}
	if _, err := sensors.NewMount(v.Mount); err != nil {
		return invalid("vehicle.mount: %s", err)
	}
	if err := v.Layout.Validate(); err != nil {
		return invalid("vehicle.layout: %s", err)
	}
	return nil
}

func (o *OperatorConfig) validate(l LinkConfig) error {
	if err := checkAddr("link.vehicle_addr", l.VehicleAddr); err != nil {
		return err
	}
	if o.FramePeriod <= 0 {
		return invalid("operator.frame_period must be positive, got %s", o.FramePeriod)
	}
	if o.InitialLaw < 0 || o.InitialLaw >= control.NumLaws {
		return invalid("operator.initial_law %d outside 0..%d", o.InitialLaw, control.NumLaws-1)
	}
	if !finite(o.ThrottleLimit) || o.ThrottleLimit <= 0 || o.ThrottleLimit > link.ThrottleLimit {
		return invalid("operator.throttle_limit %f outside (0, %g]", o.ThrottleLimit, link.ThrottleLimit)
	}
	for i, gs := range o.Gains {
		for j, g := range gs {
			if !finite(g) {
				return invalid("operator.gains[%d][%d] is not finite", i, j)
			}
		}
	}
	return nil
}
