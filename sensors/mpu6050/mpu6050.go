// Package mpu6050 reads an InvenSense MPU6050 6DoF chip over I2C.
package mpu6050

import (
	"encoding/binary"
	"time"

	"github.com/Fritz179/fhgr-poisson/sensors"
	"github.com/kidoman/embd"
	"github.com/pkg/errors"
)

const (
	MPU_ADDRESS = 0x68

	MPUREG_SMPLRT_DIV   = 0x19
	MPUREG_CONFIG       = 0x1A
	MPUREG_GYRO_CONFIG  = 0x1B
	MPUREG_ACCEL_CONFIG = 0x1C
	MPUREG_ACCEL_XOUT_H = 0x3B
	MPUREG_PWR_MGMT_1   = 0x6B
	MPUREG_WHO_AM_I     = 0x75

	sampleRateDiv = 7 // 1 kHz / (1+7) with the DLPF enabled
	dlpfConfig    = 6 // 5 Hz bandwidth
	gyroFS250     = 0 // ±250 °/s
	accelFS2      = 0 // ±2 G

	scaleAccel = 1.0 / 16384 // G per LSB at ±2 G
	scaleGyro  = 1.0 / 131   // °/s per LSB at ±250 °/s
	tempScale  = 1.0 / 340
	tempOffset = 36.53

	burstLen = 14 // accel x,y,z, temp, gyro x,y,z; big-endian int16 each
)

// Bus is the part of embd.I2CBus the driver uses.
type Bus interface {
	ReadByteFromReg(addr, reg byte) (byte, error)
	ReadFromReg(addr, reg byte, value []byte) error
	WriteByteToReg(addr, reg, value byte) error
	Close() error
}

var _ Bus = embd.I2CBus(nil)

/*
MPU6050 represents an InvenSense MPU6050 chip. It is polled: every Read does
a single burst transfer of the accelerometer, temperature and gyro registers.
*/
type MPU6050 struct {
	Address byte
	i2cbus  Bus
	buf     [burstLen]byte
	now     func() time.Time
}

// NewMPU6050 wakes the chip at address on the bus and configures ±2 G,
// ±250 °/s, 125 Hz sampling with the 5 Hz low-pass filter.
func NewMPU6050(i2cbus Bus, address byte) (*MPU6050, error) {
	mpu := &MPU6050{Address: address, i2cbus: i2cbus, now: time.Now}

	if _, err := mpu.i2cbus.ReadByteFromReg(address, MPUREG_WHO_AM_I); err != nil {
		return nil, errors.Wrapf(err, "MPU6050 Error: no chip at address %#x", address)
	}
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_1, 0); err != nil {
		return nil, errors.Wrap(err, "MPU6050 Error: couldn't wake chip")
	}
	for _, w := range []struct{ reg, val byte }{
		{MPUREG_SMPLRT_DIV, sampleRateDiv},
		{MPUREG_CONFIG, dlpfConfig},
		{MPUREG_GYRO_CONFIG, gyroFS250},
		{MPUREG_ACCEL_CONFIG, accelFS2},
	} {
		if err := mpu.i2cWrite(w.reg, w.val); err != nil {
			return nil, errors.Wrapf(err, "MPU6050 Error: couldn't set register %#x", w.reg)
		}
	}
	return mpu, nil
}

// Read returns one scaled sample.
func (mpu *MPU6050) Read() (*sensors.IMUData, error) {
	if err := mpu.i2cbus.ReadFromReg(mpu.Address, MPUREG_ACCEL_XOUT_H, mpu.buf[:]); err != nil {
		return nil, errors.Wrap(err, "MPU6050 Warning: error reading gyro/accel")
	}
	t := mpu.now()
	w := func(i int) float64 {
		return float64(int16(binary.BigEndian.Uint16(mpu.buf[2*i:])))
	}
	return &sensors.IMUData{
		A1:   w(0) * scaleAccel,
		A2:   w(1) * scaleAccel,
		A3:   w(2) * scaleAccel,
		Temp: w(3)*tempScale + tempOffset,
		G1:   w(4) * scaleGyro,
		G2:   w(5) * scaleGyro,
		G3:   w(6) * scaleGyro,
		T:    t,
	}, nil
}

// Close puts the chip to sleep and releases the bus.
func (mpu *MPU6050) Close() error {
	if err := mpu.i2cWrite(MPUREG_PWR_MGMT_1, 0x40); err != nil {
		mpu.i2cbus.Close()
		return errors.Wrap(err, "MPU6050 Error: couldn't put chip to sleep")
	}
	return mpu.i2cbus.Close()
}

func (mpu *MPU6050) i2cWrite(register, value byte) error {
	return mpu.i2cbus.WriteByteToReg(mpu.Address, register, value)
}
