// Package drift implements static gyro-drift (bias) compensation: during
// the alignment window the gyroscope readings are averaged (the vehicle is
// assumed stationary, so the average is pure bias plus Earth rate), and
// afterward that average is subtracted from every subsequent reading.
package drift

import (
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// Compensate returns a plugin performing static gyro-drift compensation.
//
// cfg parameters (within the imu group):
//
//	alignment - alignment/bias-estimation duration, seconds, default 300
func Compensate() busrt.Func {
	var bias [3]float64
	var n int64
	alignment := 300.0

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			bias = [3]float64{}
			n = 0
			alignment = 300
			if v, ok := cfgtok.Value("alignment", bus.IMU.Cfg); ok {
				if parsed, err := parseFloat(v); err == nil && parsed > 0 {
					alignment = parsed
				}
			}

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if !bus.IMU.WValid {
				return
			}
			if bus.IMU.T <= alignment {
				n++
				n1n := float64(n-1) / float64(n)
				for i := 0; i < 3; i++ {
					bias[i] = bias[i]*n1n + bus.IMU.W[i]/float64(n)
				}
				return
			}
			if n == 0 {
				return
			}
			for i := 0; i < 3; i++ {
				bus.IMU.W[i] -= bias[i]
			}
		}
	}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
