package motion

import (
	"math"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
	"github.com/FastSense/fsnav-go/internal/linal"
)

// verticalDampingStdevDefault is 2^20, effectively disabling damping unless
// overridden or air data forces a tighter update.
const verticalDampingStdevDefault = 1 << 20

// residualGateSigma is the k_sigma multiplier used to gate each
// pseudo-measurement against CheckMeasurementResidual before it is allowed
// to update the filter: an innovation more than 5 predicted standard
// deviations from zero is treated as a numeric/outlier degeneracy and the
// update is skipped, same as a failed Cholesky re-factorization.
const residualGateSigma = 5.0

// update runs one gated square-root Kalman update: it checks the residual
// against the predicted covariance level first (spec.md §4.1's required
// residual-gate service), then performs the update itself, skipping it —
// leaving y and S untouched (K is left untouched only by a gate rejection)
// — if either the gate rejects the
// measurement or the update's internal Cholesky re-factorization fails
// (the numeric-degeneracy handling spec.md §7 requires of every Kalman
// consumer).
func update(y, S, K []float64, z float64, h []float64, sigma float64) {
	if !linal.CheckMeasurementResidual(y, S, z, h, sigma, residualGateSigma, 2) {
		return
	}
	_, _ = linal.KalmanUpdate(y, S, K, z, h, sigma, 2)
}

// VerticalDamping returns a plugin that restrains the inertial vertical
// channel's characteristic exponential error growth, by fusing one or more
// pseudo-measurements into a 2-state (altitude, vertical velocity)
// square-root Kalman filter each tick:
//
//   - zero vertical velocity (always, weighted by vertical_damping_stdev)
//   - barometric altitude and its rate of change, decorrelated (if air data present)
//   - air-data vertical velocity (if present)
//
// Each pseudo-measurement is checked against CheckMeasurementResidual
// before it is applied, and skipped (state left unchanged) if the update
// itself reports a numeric degeneracy, per spec.md §4.1/§7.
//
// Recommended whenever using the normal gravity model and/or over long
// navigation timeframes.
//
// cfg parameters (within the imu group):
//
//	vertical_damping_stdev - vertical velocity stdev, m/s, default 2^20 (no
//	  damping); set to 0 to force zero vertical velocity.
func VerticalDamping() busrt.Func {
	t0 := -1.0
	vvs := 0.0
	airAltLast := 0.0

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			t0 = -1
			vvs = verticalDampingStdevDefault
			if v, ok := cfgtok.Value("vertical_damping_stdev", bus.IMU.Cfg); ok {
				if parsed, err := parseFloat(v); err == nil && parsed >= 0 {
					vvs = parsed
				}
			}

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if t0 < 0 {
				t0 = bus.IMU.T
				if bus.Air != nil && bus.Air.AltValid {
					airAltLast = bus.Air.Alt
				}
				return
			}
			dt := bus.IMU.T - t0
			t0 = bus.IMU.T
			if dt <= 0 {
				return
			}

			var x, v float64
			if bus.IMU.Sol.LLHValid {
				x = bus.IMU.Sol.LLH[2]
			}
			if bus.IMU.Sol.VValid {
				v = bus.IMU.Sol.V[2]
			}
			y := []float64{x, v}
			S := []float64{verticalDampingStdevDefault * dt, 0, 1}
			K := make([]float64, 2)

			if bus.IMU.Sol.VValid {
				h := []float64{0, 1}
				update(y, S, K, 0, h, vvs)
			}

			if bus.Air != nil {
				if bus.Air.AltValid && bus.IMU.Sol.LLHValid {
					s := vvs
					if bus.Air.AltStd > 0 {
						s = bus.Air.AltStd
					}
					s *= math.Sqrt2

					z := bus.Air.Alt + airAltLast
					h := []float64{2, -dt}
					update(y, S, K, z, h, s)

					z = bus.Air.Alt - airAltLast
					h = []float64{0, dt}
					update(y, S, K, z, h, s)

					airAltLast = bus.Air.Alt
				}
				if bus.Air.VVValid && bus.IMU.Sol.VValid {
					z := bus.Air.VV - bus.IMU.Sol.V[2]
					s := vvs
					if bus.Air.VVStd > 0 {
						s = bus.Air.VVStd
					}
					h := []float64{0, 1}
					update(y, S, K, z, h, s)
				}
			}

			s := math.Sqrt(S[0]*S[0] + S[1]*S[1])
			w := s + S[2]*dt
			if bus.IMU.Sol.LLHValid {
				bus.IMU.Sol.LLH[2] = y[0]
			}
			if bus.IMU.Sol.VValid {
				bus.IMU.Sol.LLH[2] += 2 * s / w * (y[1] - v) * dt
				bus.IMU.Sol.V[2] = y[1]
			}
			if bus.IMU.Sol.LLHValid {
				bus.IMU.Sol.V[2] += 2 * S[2] * dt / w * (y[0] - x) / dt
			}
		}
	}
}
