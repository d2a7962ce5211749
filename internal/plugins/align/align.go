// Package align implements static initial-attitude estimation: gyrocompass
// alignment (fusing averaged specific force and angular rate), accelerometer
// leveling (roll/pitch only, yaw left at zero), and a constant attitude
// preset taken directly from configuration.
package align

import (
	"math"
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
	"github.com/FastSense/fsnav-go/internal/linal"
)

// Gyrocompass returns a plugin that determines initial attitude by
// averaging specific force and angular rate over an alignment window, then
// deriving roll/pitch from gravity and yaw from the horizontal component of
// Earth rotation sensed by the gyroscopes (true-heading gyrocompassing).
// Recommended for navigation-grade systems at rest, with gyroscopes
// sensitive enough to observe Earth rotation.
//
// cfg parameters (within the imu group):
//
//	alignment - alignment duration, seconds, default 300
func Gyrocompass() busrt.Func {
	var (
		fAvg, wAvg [3]float64
		n          int64
		alignment  = 300.0
		done       bool
	)

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			fAvg, wAvg = [3]float64{}, [3]float64{}
			n = 0
			done = false
			alignment = parseRanged("alignment", bus.IMU.Cfg, 0, math.Inf(1), 300)
			bus.IMU.Sol.RPYValid = false
			bus.IMU.Sol.LValid = false
			bus.IMU.Sol.QValid = false

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if done || bus.IMU.T > alignment {
				if !done {
					finishGyrocompass(bus, fAvg, wAvg)
					done = true
				}
				return
			}
			if !bus.IMU.FValid || !bus.IMU.WValid {
				return
			}
			n++
			n1n := float64(n-1) / float64(n)
			for i := 0; i < 3; i++ {
				fAvg[i] = fAvg[i]*n1n + bus.IMU.F[i]/float64(n)
				wAvg[i] = wAvg[i]*n1n + bus.IMU.W[i]/float64(n)
			}
		}
	}
}

func finishGyrocompass(bus *busrt.Bus, f, w [3]float64) {
	if linal.VNorm(f[:]) < 1e-9 {
		return
	}
	roll := math.Atan2(-f[2], f[1])
	pitch := math.Atan2(f[0], math.Hypot(f[1], f[2]))

	// level the gyro-rate vector into the horizontal plane using the same
	// roll/pitch, then read heading off its horizontal components: in the
	// northern hemisphere Earth rotation points toward the pole, so its
	// horizontal projection points north.
	L := linal.RPY2Mat([3]float64{roll, pitch, 0})
	wLevel := linal.MMul(L[:], w[:], 3, 3, 1)
	yaw := math.Atan2(-wLevel[0], wLevel[1])

	rpy := [3]float64{roll, pitch, yaw}
	bus.IMU.Sol.RPY = rpy
	bus.IMU.Sol.RPYValid = true
	bus.IMU.Sol.L = linal.RPY2Mat(rpy)
	bus.IMU.Sol.LValid = true
	bus.IMU.Sol.Q = linal.Mat2Quat(bus.IMU.Sol.L)
	bus.IMU.Sol.QValid = true
}

// Leveling returns a plugin that derives roll and pitch from the averaged
// specific force vector alone and leaves yaw at zero. Recommended when no
// heading reference (magnetometer, gyrocompassing, external fix) is
// available.
//
// cfg parameters (within the imu group):
//
//	alignment - alignment duration, seconds, default 300
func Leveling() busrt.Func {
	var fAvg [3]float64
	var n int64
	alignment := 300.0
	done := false

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			fAvg = [3]float64{}
			n = 0
			done = false
			alignment = parseRanged("alignment", bus.IMU.Cfg, 0, math.Inf(1), 300)
			bus.IMU.Sol.RPYValid = false

		case bus.Mode < 0:

		default:
			if done || bus.IMU.T > alignment {
				if !done {
					if linal.VNorm(fAvg[:]) > 1e-9 {
						roll := math.Atan2(-fAvg[2], fAvg[1])
						pitch := math.Atan2(fAvg[0], math.Hypot(fAvg[1], fAvg[2]))
						rpy := [3]float64{roll, pitch, 0}
						bus.IMU.Sol.RPY = rpy
						bus.IMU.Sol.RPYValid = true
						bus.IMU.Sol.L = linal.RPY2Mat(rpy)
						bus.IMU.Sol.LValid = true
						bus.IMU.Sol.Q = linal.Mat2Quat(bus.IMU.Sol.L)
						bus.IMU.Sol.QValid = true
					}
					done = true
				}
				return
			}
			if !bus.IMU.FValid {
				return
			}
			n++
			n1n := float64(n-1) / float64(n)
			for i := 0; i < 3; i++ {
				fAvg[i] = fAvg[i]*n1n + bus.IMU.F[i]/float64(n)
			}
		}
	}
}

// ConstantPreset returns a plugin that sets the initial attitude to a fixed
// roll/pitch/yaw given directly in configuration, useful for simulation and
// bench testing where the true initial attitude is known a priori.
//
// cfg parameters (within the imu group):
//
//	roll0, pitch0, yaw0 - initial attitude angles, degrees, default 0
func ConstantPreset() busrt.Func {
	return func(bus *busrt.Bus) {
		if bus.IMU == nil || bus.Mode != busrt.ModeInit {
			return
		}
		rpy := [3]float64{
			parseRanged("roll0", bus.IMU.Cfg, -180, 180, 0) / bus.IMUConst.Rad2Deg,
			parseRanged("pitch0", bus.IMU.Cfg, -90, 90, 0) / bus.IMUConst.Rad2Deg,
			parseRanged("yaw0", bus.IMU.Cfg, -180, 180, 0) / bus.IMUConst.Rad2Deg,
		}
		bus.IMU.Sol.RPY = rpy
		bus.IMU.Sol.RPYValid = true
		bus.IMU.Sol.L = linal.RPY2Mat(rpy)
		bus.IMU.Sol.LValid = true
		bus.IMU.Sol.Q = linal.Mat2Quat(bus.IMU.Sol.L)
		bus.IMU.Sol.QValid = true
	}
}

// ZeroYaw returns a plugin that overrides an already-valid yaw with zero,
// leaving roll and pitch untouched. It acts only in the init pass, on an
// attitude that is valid at that point (such as one set by ConstantPreset
// registered before it); it does not change the attitude that Gyrocompass
// or Leveling publish during later step passes.
func ZeroYaw() busrt.Func {
	return func(bus *busrt.Bus) {
		if bus.IMU == nil || bus.Mode != busrt.ModeInit || !bus.IMU.Sol.RPYValid {
			return
		}
		bus.IMU.Sol.RPY[2] = 0
		bus.IMU.Sol.L = linal.RPY2Mat(bus.IMU.Sol.RPY)
		bus.IMU.Sol.Q = linal.Mat2Quat(bus.IMU.Sol.L)
	}
}

func parseRanged(token, cfg string, lo, hi, def float64) float64 {
	v, ok := cfgtok.Value(token, cfg)
	if !ok {
		return def
	}
	f, err := parseFloat(v)
	if err != nil || f < lo || f > hi {
		return def
	}
	return f
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
