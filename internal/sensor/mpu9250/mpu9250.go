// Package mpu9250 implements an MPU-9250 I2C inertial measurement unit
// source, feeding fsnav-go's bus through embd's I2C driver. Readings are
// accumulated between calls to Read and returned as an average over the
// elapsed interval, mirroring how the on-chip FIFO is drained at a lower
// rate than the sensor itself samples.
package mpu9250

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// MPU9250 I2C register map (MPU-9250 product specification rev 1.0).
const (
	mpuAddress = 0x68

	regSMPLRTDiv    = 0x19
	regConfig       = 0x1a
	regGyroConfig   = 0x1b
	regAccelConfig  = 0x1c
	regAccelConfig2 = 0x1d
	regIntEnable    = 0x38
	regAccelXOutH   = 0x3b
	regGyroXOutH    = 0x43
	regTempOutH     = 0x41
	regPwrMgmt1     = 0x6b
	regPwrMgmt2     = 0x6c

	bitHReset = 0x80

	gyroFS2000DPS  = 0x18
	gyroFS1000DPS  = 0x10
	gyroFS500DPS   = 0x08
	gyroFS250DPS   = 0x00
	accelFS16G     = 0x18
	accelFS8G      = 0x10
	accelFS4G      = 0x08
	accelFS2G      = 0x00
	dlpfCfg184Hz   = 0x01
	fifoSize1024   = 0x40
	tempSensitivty = 333.87 // LSB/degC
	tempOffset     = 21.0   // degC at TEMP_OUT == 0
)

// MPU9250 drives an MPU-9250 over I2C, accumulating gyro/accelerometer
// samples between calls to Read.
type MPU9250 struct {
	bus embd.I2CBus

	scaleGyro, scaleAccel float64 // physical units per raw LSB
	sampleRate            int

	mu         sync.Mutex
	n          int64
	g1, g2, g3 int64 // raw gyro accumulators
	a1, a2, a3 int64 // raw accel accumulators
	tSum       int64
	stop       chan struct{}

	g0 [3]float64 // gyro bias, rad/s, from Calibrate
}

// New opens an MPU-9250 on I2C bus 1 at its default address, configures the
// given full-scale ranges (degrees/sec, g) and sample rate (Hz), and starts
// a background goroutine accumulating samples.
func New(sensitivityGyroDPS, sensitivityAccelG, sampleRateHz int) (*MPU9250, error) {
	m := &MPU9250{bus: embd.NewI2CBus(1), sampleRate: sampleRateHz, stop: make(chan struct{})}

	var gyroFS, accelFS byte
	switch {
	case sensitivityGyroDPS > 1000:
		gyroFS, m.scaleGyro = gyroFS2000DPS, 2000.0/math.MaxInt16
	case sensitivityGyroDPS > 500:
		gyroFS, m.scaleGyro = gyroFS1000DPS, 1000.0/math.MaxInt16
	case sensitivityGyroDPS > 250:
		gyroFS, m.scaleGyro = gyroFS500DPS, 500.0/math.MaxInt16
	default:
		gyroFS, m.scaleGyro = gyroFS250DPS, 250.0/math.MaxInt16
	}
	switch {
	case sensitivityAccelG > 8:
		accelFS, m.scaleAccel = accelFS16G, 16.0/math.MaxInt16
	case sensitivityAccelG > 4:
		accelFS, m.scaleAccel = accelFS8G, 8.0/math.MaxInt16
	case sensitivityAccelG > 2:
		accelFS, m.scaleAccel = accelFS4G, 4.0/math.MaxInt16
	default:
		accelFS, m.scaleAccel = accelFS2G, 2.0/math.MaxInt16
	}

	if err := m.writeReg(regPwrMgmt1, bitHReset); err != nil {
		return nil, fmt.Errorf("mpu9250: reset: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := m.writeReg(regPwrMgmt1, 0x00); err != nil {
		return nil, fmt.Errorf("mpu9250: wake: %w", err)
	}
	if err := m.writeReg(regAccelConfig2, fifoSize1024|dlpfCfg184Hz); err != nil {
		return nil, fmt.Errorf("mpu9250: accel config: %w", err)
	}
	if err := m.writeReg(regGyroConfig, gyroFS); err != nil {
		return nil, fmt.Errorf("mpu9250: gyro sensitivity: %w", err)
	}
	if err := m.writeReg(regAccelConfig, accelFS); err != nil {
		return nil, fmt.Errorf("mpu9250: accel sensitivity: %w", err)
	}
	if err := m.writeReg(regConfig, dlpfCfg184Hz); err != nil {
		return nil, fmt.Errorf("mpu9250: lpf: %w", err)
	}
	div := byte(0)
	if sampleRateHz > 0 && sampleRateHz < 1000 {
		div = byte(1000/sampleRateHz - 1)
	}
	if err := m.writeReg(regSMPLRTDiv, div); err != nil {
		return nil, fmt.Errorf("mpu9250: sample rate: %w", err)
	}
	if err := m.writeReg(regIntEnable, 0x00); err != nil {
		return nil, fmt.Errorf("mpu9250: interrupt config: %w", err)
	}
	if err := m.writeReg(regPwrMgmt2, 0x00); err != nil {
		return nil, fmt.Errorf("mpu9250: enable sensors: %w", err)
	}

	go m.poll()
	time.Sleep(100 * time.Millisecond)
	return m, nil
}

func (m *MPU9250) poll() {
	period := time.Duration(1000.0/float64(m.sampleRate)+0.5) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			g1, err1 := m.readWord(regGyroXOutH)
			g2, err2 := m.readWord(regGyroXOutH + 2)
			g3, err3 := m.readWord(regGyroXOutH + 4)
			a1, err4 := m.readWord(regAccelXOutH)
			a2, err5 := m.readWord(regAccelXOutH + 2)
			a3, err6 := m.readWord(regAccelXOutH + 4)
			t, err7 := m.readWord(regTempOutH)
			if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil || err7 != nil {
				continue
			}
			m.mu.Lock()
			m.g1 += int64(g1)
			m.g2 += int64(g2)
			m.g3 += int64(g3)
			m.a1 += int64(a1)
			m.a2 += int64(a2)
			m.a3 += int64(a3)
			m.tSum += int64(t)
			m.n++
			m.mu.Unlock()
		}
	}
}

// Read returns the gyro reading (rad/s, gyro bias already removed if
// Calibrate was run), accelerometer reading (m/s^2) and chip temperature
// (degrees C) averaged over every sample accumulated since the previous
// call, then resets the accumulators. ok is false if no samples have been
// accumulated yet.
func (m *MPU9250) Read() (w, f [3]float64, temp float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.n == 0 {
		return w, f, 0, false
	}
	n := float64(m.n)
	w = [3]float64{
		float64(m.g1) / n * m.scaleGyro * math.Pi / 180,
		float64(m.g2) / n * m.scaleGyro * math.Pi / 180,
		float64(m.g3) / n * m.scaleGyro * math.Pi / 180,
	}
	for i := range w {
		w[i] -= m.g0[i]
	}
	const g0 = 9.80665
	f = [3]float64{
		float64(m.a1) / n * m.scaleAccel * g0,
		float64(m.a2) / n * m.scaleAccel * g0,
		float64(m.a3) / n * m.scaleAccel * g0,
	}
	temp = float64(m.tSum)/n/tempSensitivty + tempOffset
	m.n, m.g1, m.g2, m.g3, m.a1, m.a2, m.a3, m.tSum = 0, 0, 0, 0, 0, 0, 0, 0
	return w, f, temp, true
}

// Calibrate samples the gyroscope for dur at the configured sample rate
// while the unit is assumed stationary, and stores the observed mean as a
// bias subtracted from every subsequent Read.
func (m *MPU9250) Calibrate(dur time.Duration) error {
	n := int(dur.Seconds() * float64(m.sampleRate))
	if n <= 0 {
		return errors.New("mpu9250: calibration duration too short")
	}
	period := time.Duration(1000.0/float64(m.sampleRate)+0.5) * time.Millisecond
	var sum [3]int64
	for i := 0; i < n; i++ {
		time.Sleep(period)
		g1, err1 := m.readWord(regGyroXOutH)
		g2, err2 := m.readWord(regGyroXOutH + 2)
		g3, err3 := m.readWord(regGyroXOutH + 4)
		if err1 != nil || err2 != nil || err3 != nil {
			return errors.New("mpu9250: sensor error during calibration")
		}
		sum[0] += int64(g1)
		sum[1] += int64(g2)
		sum[2] += int64(g3)
	}
	for i := range m.g0 {
		m.g0[i] = float64(sum[i]) / float64(n) * m.scaleGyro * math.Pi / 180
	}
	return nil
}

// Close stops the background polling goroutine.
func (m *MPU9250) Close() {
	close(m.stop)
}

func (m *MPU9250) writeReg(register byte, value byte) error {
	if err := m.bus.WriteByteToReg(mpuAddress, register, value); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	return nil
}

func (m *MPU9250) readWord(register byte) (int16, error) {
	v, err := m.bus.ReadWordFromReg(mpuAddress, register)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// Plugin returns a bus plugin driving bus.IMU.W/F/Tw/Tf from a live MPU-9250
// over I2C, in place of the log/text-file RawInput source. Calibrate is run
// at init, before the first step, for the number of seconds given by the
// calibrate parameter when it is positive.
//
// cfg parameters (within the imu group):
//
//	gyro_fs    - gyroscope full-scale range, deg/s, one of 250/500/1000/2000, default 500
//	accel_fs   - accelerometer full-scale range, g, one of 2/4/8/16, default 4
//	calibrate  - stationary gyro calibration duration, seconds, default 0 (skip)
func Plugin() busrt.Func {
	var dev *MPU9250

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			gyroFS := cfgInt("gyro_fs", bus.IMU.Cfg, 500)
			accelFS := cfgInt("accel_fs", bus.IMU.Cfg, 4)
			freq := cfgInt("freq", bus.IMU.Cfg, 100)
			d, err := New(gyroFS, accelFS, freq)
			if err != nil {
				bus.Log.Error().Err(err).Msg("couldn't open MPU-9250")
				dev = nil
				return
			}
			if sec := cfgInt("calibrate", bus.IMU.Cfg, 0); sec > 0 {
				if err := d.Calibrate(time.Duration(sec) * time.Second); err != nil {
					bus.Log.Warn().Err(err).Msg("MPU-9250 gyro calibration failed")
				}
			}
			dev = d

		case bus.Mode < 0:
			if dev != nil {
				dev.Close()
			}

		default:
			if dev == nil {
				return
			}
			w, f, temp, ok := dev.Read()
			if !ok {
				return
			}
			bus.IMU.W, bus.IMU.WValid = w, true
			bus.IMU.F, bus.IMU.FValid = f, true
			bus.IMU.Tw, bus.IMU.TwValid = [3]float64{temp, temp, temp}, true
			bus.IMU.Tf, bus.IMU.TfValid = [3]float64{temp, temp, temp}, true
		}
	}
}

func cfgInt(key, cfg string, def int) int {
	v, ok := cfgtok.Value(key, cfg)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}
