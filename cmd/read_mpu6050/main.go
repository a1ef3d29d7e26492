package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/Fritz179/fhgr-poisson/sensors/mpu6050"
	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all" // Empty import needed to initialize embd library.
	_ "github.com/kidoman/embd/host/rpi" // Empty import needed to initialize embd library.
)

func main() {
	var (
		bus     int
		period  time.Duration
		calFile string
	)
	const (
		defaultBus     = 1
		busUsage       = "I2C bus number"
		defaultPeriod  = 50 * time.Millisecond
		periodUsage    = "Time between reads"
		defaultCalFile = ""
		calFileUsage   = "Subtract the biases saved in this calibration file"
	)
	flag.IntVar(&bus, "bus", defaultBus, busUsage)
	flag.DurationVar(&period, "period", defaultPeriod, periodUsage)
	flag.StringVar(&calFile, "cal", defaultCalFile, calFileUsage)
	flag.Parse()

	i2cbus := embd.NewI2CBus(byte(bus))
	mpu, err := mpu6050.NewMPU6050(i2cbus, mpu6050.MPU_ADDRESS)
	if err != nil {
		log.Fatalln(err)
	}
	defer mpu.Close()

	var r sensors.IMUReader = mpu
	if calFile != "" {
		cal := new(sensors.IMUCalData)
		if err := cal.Load(calFile); err != nil {
			log.Fatalln(err)
		}
		r = sensors.NewCorrectedReader(mpu, *cal, sensors.IdentityMount())
	}

	t0 := time.Now()
	fmt.Println("t,a1,a2,a3,g1,g2,g3,temp")
	for range time.Tick(period) {
		cur, err := r.Read()
		if err != nil {
			log.Println(err)
			continue
		}
		fmt.Printf("%.3f,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%.2f\n", cur.T.Sub(t0).Seconds(),
			cur.A1, cur.A2, cur.A3, cur.G1, cur.G2, cur.G3, cur.Temp)
	}
}
