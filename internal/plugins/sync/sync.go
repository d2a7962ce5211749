// Package sync implements the time-step driver: it advances the inertial
// clock by a fixed dt derived from the configured sampling frequency and
// enforces an optional step-count limit, requesting bus termination once
// reached.
package sync

import (
	"math"
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// Step returns a plugin driving fsnav-go's time step. Every tick it
// invalidates the previous accelerometer/gyroscope readings (so downstream
// plugins can tell a missed read from a stale one) and advances bus.IMU.T by
// a fixed dt = 1/freq.
//
// cfg parameters (within the imu group):
//
//	freq - sampling frequency, Hz, range 50-3200, default 100
//
// cfg parameters (top level):
//
//	step_limit - maximum number of steps before termination, default unlimited
//	time_limit - maximum elapsed time, seconds, before termination, default unlimited
func Step() busrt.Func {
	dt := 0.01
	var i uint64
	var limit uint64 = ^uint64(0)
	timeLimit := math.Inf(1)

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			bus.T = 0
			i = 0
			dt = 1.0 / 100.0
			if v, ok := cfgtok.Value("freq", bus.IMU.Cfg); ok {
				if freq, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && freq >= 50 && freq <= 3200 {
					dt = 1.0 / freq
				}
			}
			limit = ^uint64(0)
			if v, ok := cfgtok.Value("step_limit", bus.Cfg); ok {
				if parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
					limit = parsed
				}
			}
			timeLimit = math.Inf(1)
			if v, ok := cfgtok.Value("time_limit", bus.Cfg); ok {
				if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && parsed > 0 {
					timeLimit = parsed
				}
			}

		case bus.Mode < 0:
			// nothing to clean up

		default:
			bus.IMU.WValid = false
			bus.IMU.FValid = false
			i++
			bus.IMU.T = float64(i) * dt
			bus.T = bus.IMU.T
			if i > limit || bus.IMU.T > timeLimit {
				bus.RequestTermination()
			}
		}
	}
}
