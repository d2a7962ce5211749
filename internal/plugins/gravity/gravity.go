// Package gravity implements the two gravity models a navigation run can be
// configured with: a constant model derived from the averaged specific
// force during alignment, and the GRS-80 normal-gravity model.
package gravity

import (
	"math"
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// Constant returns a plugin that takes the magnitude of the average
// accelerometer output vector during the initial alignment window and
// publishes it as a constant vertical gravity component. Recommended for
// low-grade systems, especially with no reference coordinates available.
//
// cfg parameters (within the imu group):
//
//	alignment - alignment duration, seconds, default 60
func Constant() busrt.Func {
	var (
		f         [3]float64
		g3        float64
		n         int64
		alignment = 60.0
	)

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			n = 0
			f = [3]float64{}
			alignment = 60
			if v, ok := cfgtok.Value("alignment", bus.IMU.Cfg); ok {
				if parsed, err := parseFloat(v); err == nil && parsed > 0 {
					alignment = parsed
				}
			}
		case bus.Mode < 0:
			// nothing to clean up
		default:
			bus.IMU.GValid = false
			if bus.IMU.T <= alignment && bus.IMU.FValid {
				n++
				n1n := float64(n-1) / float64(n)
				for i := 0; i < 3; i++ {
					f[i] = f[i]*n1n + bus.IMU.F[i]/float64(n)
				}
				g3 = -math.Sqrt(f[0]*f[0] + f[1]*f[1] + f[2]*f[2])
			}
			bus.IMU.G[0] = 0
			bus.IMU.G[1] = 0
			bus.IMU.G[2] = g3
			bus.IMU.GValid = true
		}
	}
}

// Normal returns a plugin computing the GRS-80 normal gravity model, taking
// Earth model constants from bus.IMUConst, accounting for latitude,
// altitude and plumb-line curvature above the ellipsoid. Recommended for
// conventional navigation-grade systems.
//
// cfg parameters: none.
func Normal() busrt.Func {
	var f, m, f44 float64

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		c := bus.IMUConst
		switch {
		case bus.Mode == busrt.ModeInit:
			bA := math.Sqrt(1 - c.E2)
			f = 1 - bA
			k := (f+c.FG)/(c.U*c.U*c.A*bA)*c.GE - 1
			mm := 1 / ((c.FG+1)/bA - 1)
			m = 1 / (k*(mm+1.0/3) + mm + 1)
			f44 = f / 8 * (5*m - f)
		case bus.Mode < 0:
			// nothing to clean up
		default:
			bus.IMU.GValid = false
			var lat, h float64
			switch {
			case bus.IMU.Sol.LLHValid:
				lat, h = bus.IMU.Sol.LLH[1], bus.IMU.Sol.LLH[2]
			case bus.Sol.LLHValid:
				lat, h = bus.Sol.LLH[1], bus.Sol.LLH[2]
			default:
				lat, h = c.Pi/4, 0
			}
			sinlat := math.Sin(lat)
			sin2lat := math.Sin(2 * lat)
			cos2lat := math.Cos(2 * lat)
			hA := h / c.A
			bus.IMU.G[0] = 0
			bus.IMU.G[1] = -c.FG * sin2lat * hA
			bus.IMU.G[2] = -c.GE *
				(1 + c.FG*sinlat*sinlat - f44*sin2lat*sin2lat) *
				(1 - 2*(1+f*cos2lat+m)*hA)
			bus.IMU.GValid = true
		}
	}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
