/*
poisson runs either end of the attitude link: the operator station, which turns
key input from the monitor page into commands, or the vehicle, which flies them.
*/

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fritz179/fhgr-poisson/actuators"
	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/Fritz179/fhgr-poisson/ahrsweb"
	"github.com/Fritz179/fhgr-poisson/config"
	"github.com/Fritz179/fhgr-poisson/control"
	"github.com/Fritz179/fhgr-poisson/link"
	"github.com/Fritz179/fhgr-poisson/operator"
	"github.com/Fritz179/fhgr-poisson/recorder"
	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/Fritz179/fhgr-poisson/sensors/mpu6050"
	"github.com/Fritz179/fhgr-poisson/vehicle"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all" // Empty import needed to initialize embd library.
	_ "github.com/kidoman/embd/host/rpi" // Empty import needed to initialize embd library.
	"github.com/pkg/errors"
)

const calSamples = 200

func main() {
	var (
		mode, cfgFile, listenAddr, vehicleAddr, monitorAddr, sensor, pwm, csvFile string
		calibrate                                                                 bool
	)

	const (
		defaultMode        = ""
		modeUsage          = "Role to run: operator or vehicle; overrides the config file"
		defaultCfgFile     = ""
		cfgFileUsage       = "YAML configuration file"
		defaultListenAddr  = ""
		listenAddrUsage    = "Vehicle: UDP address to listen on, host:port"
		defaultVehicleAddr = ""
		vehicleAddrUsage   = "Operator: vehicle address to dial, host:port"
		defaultMonitorAddr = ""
		monitorAddrUsage   = "HTTP address of the monitor page, \"off\" to disable"
		defaultSensor      = ""
		sensorUsage        = "Vehicle: IMU to use, mpu6050 or sim"
		defaultPWM         = ""
		pwmUsage           = "Vehicle: PWM driver, rpio, embd or null"
		defaultCSVFile     = ""
		csvFileUsage       = "Record every tick to this CSV file"
		defaultCalibrate   = false
		calibrateUsage     = "Vehicle: calibrate the IMU, which must be level and still, and save the result"
	)

	flag.StringVar(&mode, "mode", defaultMode, modeUsage)
	flag.StringVar(&cfgFile, "config", defaultCfgFile, cfgFileUsage)
	flag.StringVar(&cfgFile, "c", defaultCfgFile, cfgFileUsage)
	flag.StringVar(&listenAddr, "listen", defaultListenAddr, listenAddrUsage)
	flag.StringVar(&vehicleAddr, "vehicle", defaultVehicleAddr, vehicleAddrUsage)
	flag.StringVar(&monitorAddr, "monitor", defaultMonitorAddr, monitorAddrUsage)
	flag.StringVar(&sensor, "sensor", defaultSensor, sensorUsage)
	flag.StringVar(&pwm, "pwm", defaultPWM, pwmUsage)
	flag.StringVar(&csvFile, "csv", defaultCSVFile, csvFileUsage)
	flag.BoolVar(&calibrate, "calibrate", defaultCalibrate, calibrateUsage)
	flag.Parse()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalln(err)
	}
	for _, o := range []struct {
		v   string
		dst *string
	}{
		{mode, &cfg.Mode},
		{listenAddr, &cfg.Link.ListenAddr},
		{vehicleAddr, &cfg.Link.VehicleAddr},
		{monitorAddr, &cfg.Monitor.Addr},
		{sensor, &cfg.Vehicle.Sensor},
		{pwm, &cfg.Vehicle.PWM},
		{csvFile, &cfg.Recorder.CSV},
	} {
		if o.v != "" {
			*o.dst = o.v
		}
	}
	if cfg.Monitor.Addr == "off" {
		cfg.Monitor.Addr = ""
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalln(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	room := ahrsweb.NewRoom()
	go room.Run(ctx)
	if cfg.Monitor.Addr != "" {
		go serveMonitor(ctx, cfg.Monitor.Addr, room)
	}

	if cfg.Mode == config.ModeVehicle {
		err = runVehicle(ctx, cfg, room, calibrate)
	} else {
		err = runOperator(ctx, cfg, room)
	}
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func serveMonitor(ctx context.Context, addr string, room *ahrsweb.Room) {
	mux := http.NewServeMux()
	ahrsweb.Handle(mux, room)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Println("AHRSWeb: Starting web server on", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("AHRSWeb: ListenAndServe error:", err)
	}
}

func runOperator(ctx context.Context, cfg *config.AppConfig, room *ahrsweb.Room) error {
	l := link.NewOperatorLink(link.OperatorConfig{
		Addr:        cfg.Link.VehicleAddr,
		SendPeriod:  cfg.Link.SendPeriod,
		ReadTimeout: cfg.Link.ReadTimeout,
		BackoffMin:  cfg.Link.BackoffMin,
		BackoffHard: cfg.Link.BackoffHard,
	})
	l.Start(ctx)
	defer l.Close()

	p := operator.NewPilot(cfg.Operator.Gains, cfg.Operator.InitialLaw)
	p.ThrottleLimit = cfg.Operator.ThrottleLimit
	s := operator.NewStation(p, l, room.Input(), room, cfg.Link.StateTimeout)
	s.FramePeriod = cfg.Operator.FramePeriod
	log.Printf("Operator: flying %s\n", cfg.Link.VehicleAddr)
	return s.Run(ctx)
}

func openIMU(vc config.VehicleConfig) (sensors.IMUReader, error) {
	if vc.Sensor == config.SensorSim {
		log.Println("Vehicle: using the simulated IMU")
		return sensors.NewSimIMU(time.Now().UnixNano()), nil
	}
	bus := embd.NewI2CBus(vc.I2CBus)
	mpu, err := mpu6050.NewMPU6050(bus, vc.I2CAddress)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return mpu, nil
}

func openDriver(vc config.VehicleConfig) (actuators.Driver, error) {
	switch vc.PWM {
	case config.PWMRPIO:
		return actuators.NewRPIODriver(int(vc.PWMFreq))
	case config.PWMEmbd:
		return actuators.NewEmbdDriver(int(vc.PWMFreq)), nil
	}
	log.Println("Actuators: no PWM hardware selected, logging duties only")
	d := actuators.NewNullDriver()
	d.Verbose = true
	return d, nil
}

func openRecorder(rc config.RecorderConfig) *recorder.Multi {
	var sinks []recorder.Sink
	if rc.CSV != "" {
		if s, err := recorder.NewCSVSink(rc.CSV); err != nil {
			log.Printf("Recorder: %s\n", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if rc.NATSURL != "" {
		if s, err := recorder.NewNATSSink(rc.NATSURL, rc.NATSSubject); err != nil {
			log.Printf("Recorder: %s\n", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if rc.RedisAddr != "" {
		if s, err := recorder.NewRedisSink(rc.RedisAddr, rc.RedisKey); err != nil {
			log.Printf("Recorder: %s\n", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	return recorder.NewMulti(sinks...)
}

func runVehicle(ctx context.Context, cfg *config.AppConfig, room *ahrsweb.Room, calibrate bool) error {
	vc := cfg.Vehicle

	imu, err := openIMU(vc)
	if err != nil {
		return err
	}
	defer imu.Close()

	cal := new(sensors.IMUCalData)
	if calibrate {
		log.Println("Vehicle: calibrating, keep the vehicle level and still")
		if cal, err = sensors.Calibrate(imu, calSamples, vc.PollPeriod); err != nil {
			return err
		}
		if err := cal.Save(vc.CalFile); err != nil {
			return err
		}
		log.Printf("Vehicle: calibration saved to %s\n", vc.CalFile)
	} else if err := cal.Load(vc.CalFile); err != nil {
		log.Printf("Vehicle: %s, flying uncalibrated\n", err)
		cal.Reset()
	}
	mount, err := sensors.NewMount(vc.Mount)
	if err != nil {
		return err
	}

	driver, err := openDriver(vc)
	if err != nil {
		return err
	}
	if c, ok := driver.(io.Closer); ok {
		defer c.Close()
	}
	mapper, err := actuators.NewMapper(driver, vc.PWMFreq, vc.Layout)
	if err != nil {
		return err
	}

	vl, err := link.Listen(link.VehicleConfig{Addr: cfg.Link.ListenAddr, ReadTimeout: cfg.Link.ReadTimeout})
	if err != nil {
		return err
	}
	defer vl.Close()

	rec := openRecorder(cfg.Recorder)
	defer rec.Close()

	v := vehicle.New(vehicle.Config{
		PollPeriod:        vc.PollPeriod,
		StateTimeout:      cfg.Link.StateTimeout,
		MaxSensorFailures: vc.MaxSensorFailures,
	}, sensors.NewCorrectedReader(imu, *cal, mount), ahrs.NewComplementary(vc.Alpha), vl,
		control.NewMixer(vc.Mounting), mapper)
	if rec.Len() > 0 {
		v.Recorder = rec
		v.Session = recorder.NewSession()
		log.Printf("Vehicle: recording session %s\n", v.Session)
	}
	var remote *ahrsweb.Listener
	if cfg.Monitor.Remote != "" {
		remote = ahrsweb.NewListener(cfg.Monitor.Remote)
		defer remote.Close()
	}
	var lastRemoteErr time.Time
	v.Monitor = func(d *ahrsweb.AHRSData) {
		if err := room.Publish(d); err != nil {
			log.Println(err)
		}
		if remote == nil {
			return
		}
		if err := remote.Send(d); err != nil && time.Since(lastRemoteErr) > 10*time.Second {
			log.Println(err)
			lastRemoteErr = time.Now()
		}
	}
	vl.OnCommand(v.OnCommand)
	vl.Start(ctx)

	if err := v.Run(ctx); err != nil {
		return errors.Wrap(err, "Vehicle: stopped")
	}
	return nil
}
