// Package motion implements position/velocity integration over the Earth
// reference ellipsoid and the vertical-channel damping filter that restrains
// the inertial vertical error's characteristic exponential growth.
package motion

import (
	"math"
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
	"github.com/FastSense/fsnav-go/internal/linal"
	"github.com/FastSense/fsnav-go/internal/navdata"
)

// poleGuard is the cosine-of-latitude threshold below which the curvature
// radii blow up; 2^-8, a guaranteed nonzero value in IEEE754 half precision.
const poleGuard = 1.0 / 256

// Euler returns a plugin that numerically integrates Newton's second law in
// the local-level navigation frame using modified Euler's method (with a
// midpoint attitude matrix) over the Earth reference ellipsoid:
//
//	V(t+dt)   = V(t) + dt*(V(t) x (W + 2u) + L^T(t+dt/2)*f + g)
//	lon(t+dt) = lon(t) + dt*Ve(t+dt)/((Re+alt(t))*cos(lat(t)))
//	lat(t+dt) = lat(t) + dt*Vn(t+dt)/(Rn+alt(t))
//	alt(t+dt) = alt(t) + dt*Vu(t+dt)
//
// Not suitable near the Earth's poles, at outer-space altitudes, or at
// over-Mach velocities.
//
// cfg parameters (within the imu group):
//
//	lon - starting longitude, degrees, range -180..+180, default 0
//	lat - starting latitude, degrees, range -90..+90, default 0
//	alt - starting altitude, meters, range -20000..+50000, default 0
func Euler() busrt.Func {
	t0 := -1.0

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			bus.IMU.Sol.VValid = false
			bus.IMU.Sol.LLHValid = false
			bus.IMU.Sol.LLH[0] = parseRanged("lon", bus.IMU.Cfg, -180, 180, 0) / bus.IMUConst.Rad2Deg
			bus.IMU.Sol.LLH[1] = parseRanged("lat", bus.IMU.Cfg, -90, 90, 0) / bus.IMUConst.Rad2Deg
			bus.IMU.Sol.LLH[2] = parseRanged("alt", bus.IMU.Cfg, -20e3, 50e3, 0)
			bus.IMU.Sol.LLHValid = true
			bus.IMU.Sol.V = [3]float64{}
			bus.IMU.Sol.VValid = true
			t0 = -1

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if !bus.IMU.Sol.VValid || !bus.IMU.Sol.LLHValid || !bus.IMU.Sol.LValid ||
				!bus.IMU.FValid || !bus.IMU.GValid {
				return
			}
			if t0 < 0 {
				t0 = bus.IMU.T
				return
			}
			dt := bus.IMU.T - t0
			t0 = bus.IMU.T

			c := bus.IMUConst
			lat := bus.IMU.Sol.LLH[1]
			sphi, cphi := math.Sincos(lat)
			e2s2 := c.E2 * sphi * sphi
			e4s4 := e2s2 * e2s2
			ReH := c.A * (1 + e2s2/2 + 3*e4s4/8)
			RnH := ReH*(1-c.E2)*(1+e2s2+e4s4+e2s2*e4s4) + bus.IMU.Sol.LLH[2]
			ReH += bus.IMU.Sol.LLH[2]

			bus.IMU.W2Valid = false
			bus.IMU.Sol.LLHValid = false
			bus.IMU.Sol.VValid = false

			var w2 [3]float64
			w2[0] = -bus.IMU.Sol.V[1] / RnH
			w2[1] = bus.IMU.Sol.V[0] / ReH
			polar := cphi < poleGuard
			if polar {
				w2[2] = 0
			} else {
				w2[2] = bus.IMU.Sol.V[0] / ReH * sphi / cphi
				bus.IMU.W2Valid = true
			}
			bus.IMU.W2 = w2

			var dvrel [3]float64
			dvrel[0] = w2[0]
			dvrel[1] = w2[1] + 2*c.U*cphi
			dvrel[2] = w2[2] + 2*c.U*sphi
			dvcor := linal.Cross3(bus.IMU.Sol.V, dvrel)

			var proper [3]float64
			if bus.IMU.WValid {
				var mid [3]float64
				for i := 0; i < 3; i++ {
					mid[i] = bus.IMU.W[i] * dt / 2
				}
				C2 := linal.Eul2Mat(mid)
				cf := linal.MMul(C2[:], bus.IMU.F[:], 3, 3, 1)
				p := linal.MMul1T(bus.IMU.Sol.L[:], cf, 3, 3, 1)
				copy(proper[:], p)
			} else {
				p := linal.MMul1T(bus.IMU.Sol.L[:], bus.IMU.F[:], 3, 3, 1)
				copy(proper[:], p)
			}

			for i := 0; i < 3; i++ {
				bus.IMU.Sol.V[i] += (dvcor[i] + proper[i] + bus.IMU.G[i]) * dt
			}
			bus.IMU.Sol.VValid = true

			if polar {
				bus.IMU.Sol.LLH[2] += bus.IMU.Sol.V[2] * dt
				bus.IMU.Sol.LLHValid = false
				return
			}
			bus.IMU.Sol.LLH[0] += bus.IMU.Sol.V[0] / (ReH * cphi) * dt
			bus.IMU.Sol.LLH[1] += bus.IMU.Sol.V[1] / RnH * dt
			bus.IMU.Sol.LLH[2] += bus.IMU.Sol.V[2] * dt

			if bus.IMU.Sol.LLH[1] < -c.Pi/2 {
				bus.IMU.Sol.LLH[1] = -c.Pi - bus.IMU.Sol.LLH[1]
				flipOverPole(&bus.IMU.Sol, c.Pi)
			}
			if bus.IMU.Sol.LLH[1] > c.Pi/2 {
				bus.IMU.Sol.LLH[1] = c.Pi - bus.IMU.Sol.LLH[1]
				flipOverPole(&bus.IMU.Sol, c.Pi)
			}
			for bus.IMU.Sol.LLH[0] < -c.Pi {
				bus.IMU.Sol.LLH[0] += 2 * c.Pi
			}
			for bus.IMU.Sol.LLH[0] > c.Pi {
				bus.IMU.Sol.LLH[0] -= 2 * c.Pi
			}
			bus.IMU.Sol.LLHValid = true
		}
	}
}

func flipOverPole(sol *navdata.Solution, pi float64) {
	sol.LLH[0] += pi
	sol.V[0] = -sol.V[0]
	sol.V[1] = -sol.V[1]
	for i := 0; i < 3; i++ {
		sol.L[i*3+0] = -sol.L[i*3+0]
		sol.L[i*3+1] = -sol.L[i*3+1]
	}
	sol.Q = linal.Mat2Quat(sol.L)
	sol.RPY = linal.Mat2RPY(sol.L)
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
