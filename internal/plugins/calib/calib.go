// Package calib implements inertial sensor calibration: a constant-coefficient
// bias/scale-factor model, and a temperature-dependent model that fits bias
// and scale factor as quadratic polynomials in sensor temperature.
package calib

import (
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// Static returns a plugin applying constant bias and scale-factor corrections
// to accelerometer and gyroscope readings:
//
//	f_i := (f_i - df0_i) / (1 + Gamma_ii)
//	w_i := (w_i - nu0_i) / (1 + Theta_ii)
//
// cfg parameters (within the imu group), all default 0:
//
//	df01, df02, df03 - accelerometer zero offsets
//	ga11, ga22, ga33 - accelerometer scale factors
//	nu01, nu02, nu03 - gyroscope zero offsets, degrees/hour
//	th11, th22, th33 - gyroscope scale factors
func Static() busrt.Func {
	var nu0, theta, df0, gamma [3]float64

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			df0 = [3]float64{
				cfgFloat("df01", bus.IMU.Cfg, 0),
				cfgFloat("df02", bus.IMU.Cfg, 0),
				cfgFloat("df03", bus.IMU.Cfg, 0),
			}
			gamma = [3]float64{
				cfgFloat("ga11", bus.IMU.Cfg, 0),
				cfgFloat("ga22", bus.IMU.Cfg, 0),
				cfgFloat("ga33", bus.IMU.Cfg, 0),
			}
			nu0 = [3]float64{
				cfgFloat("nu01", bus.IMU.Cfg, 0),
				cfgFloat("nu02", bus.IMU.Cfg, 0),
				cfgFloat("nu03", bus.IMU.Cfg, 0),
			}
			theta = [3]float64{
				cfgFloat("th11", bus.IMU.Cfg, 0),
				cfgFloat("th22", bus.IMU.Cfg, 0),
				cfgFloat("th33", bus.IMU.Cfg, 0),
			}
			for i := range nu0 {
				nu0[i] /= bus.IMUConst.Rad2Deg
				nu0[i] /= 3600.0
			}

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if bus.IMU.FValid {
				for i := 0; i < 3; i++ {
					bus.IMU.F[i] -= df0[i]
					bus.IMU.F[i] /= 1 + gamma[i]
				}
			}
			if bus.IMU.WValid {
				for i := 0; i < 3; i++ {
					bus.IMU.W[i] -= nu0[i]
					bus.IMU.W[i] /= 1 + theta[i]
				}
			}
		}
	}
}

// Temperature returns a plugin calibrating accelerometer and gyroscope
// readings with bias and scale factor fit as quadratic polynomials of sensor
// temperature. Gyroscope bias is additionally re-centered on the average
// reading observed over a stationary alignment window, since the fitted
// polynomial alone rarely nails the absolute offset of an individual unit:
//
//	nu0_i  = w0_i - (a1_i*Tw0_i + a2_i*Tw0_i^2) + (a1_i*Tw_i + a2_i*Tw_i^2)
//	df0_i  = a0_i + a1_i*Tf_i + a2_i*Tf_i^2
//	Gamma_i = a0_i + a1_i*Tf_i + a2_i*Tf_i^2
//
// cfg parameters (within the imu group):
//
//	alignment - gyro bias averaging window, seconds, default 300
//	nu0i_a1, nu0i_a2 (i = 1,2,3) - gyroscope bias vs. temperature, degrees/hour per degC and degC^2
//	df0i_a0, df0i_a1, df0i_a2 (i = 1,2,3) - accelerometer bias polynomial coefficients
//	gaii_a0, gaii_a1, gaii_a2 (i = 1,2,3) - accelerometer scale-factor polynomial coefficients
func Temperature() busrt.Func {
	var (
		w0, tw0      [3]float64
		n            int64
		alignment    = 300.0
		nu0App       [6]float64
		df0App       [9]float64
		gammaApp     [9]float64
		nu0, df0, ga [3]float64
	)

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			w0, tw0 = [3]float64{}, [3]float64{}
			n = 0
			alignment = cfgFloatPositive("alignment", bus.IMU.Cfg, 300)

			df0App = [9]float64{
				cfgFloat("df01_a0", bus.IMU.Cfg, 0), cfgFloat("df01_a1", bus.IMU.Cfg, 0), cfgFloat("df01_a2", bus.IMU.Cfg, 0),
				cfgFloat("df02_a0", bus.IMU.Cfg, 0), cfgFloat("df02_a1", bus.IMU.Cfg, 0), cfgFloat("df02_a2", bus.IMU.Cfg, 0),
				cfgFloat("df03_a0", bus.IMU.Cfg, 0), cfgFloat("df03_a1", bus.IMU.Cfg, 0), cfgFloat("df03_a2", bus.IMU.Cfg, 0),
			}
			gammaApp = [9]float64{
				cfgFloat("ga11_a0", bus.IMU.Cfg, 0), cfgFloat("ga11_a1", bus.IMU.Cfg, 0), cfgFloat("ga11_a2", bus.IMU.Cfg, 0),
				cfgFloat("ga22_a0", bus.IMU.Cfg, 0), cfgFloat("ga22_a1", bus.IMU.Cfg, 0), cfgFloat("ga22_a2", bus.IMU.Cfg, 0),
				cfgFloat("ga33_a0", bus.IMU.Cfg, 0), cfgFloat("ga33_a1", bus.IMU.Cfg, 0), cfgFloat("ga33_a2", bus.IMU.Cfg, 0),
			}
			nu0App = [6]float64{
				cfgFloat("nu01_a1", bus.IMU.Cfg, 0), cfgFloat("nu01_a2", bus.IMU.Cfg, 0),
				cfgFloat("nu02_a1", bus.IMU.Cfg, 0), cfgFloat("nu02_a2", bus.IMU.Cfg, 0),
				cfgFloat("nu03_a1", bus.IMU.Cfg, 0), cfgFloat("nu03_a2", bus.IMU.Cfg, 0),
			}
			for i := range nu0App {
				nu0App[i] /= bus.IMUConst.Rad2Deg
				nu0App[i] /= 3600.0
			}

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if !bus.IMU.WValid {
				return
			}

			if bus.IMU.T < alignment {
				n++
				n1n := float64(n-1) / float64(n)
				for i := 0; i < 3; i++ {
					w0[i] = w0[i]*n1n + bus.IMU.W[i]/float64(n)
					tw0[i] = tw0[i]*n1n + bus.IMU.Tw[i]/float64(n)
				}
			} else {
				for i := 0; i < 3; i++ {
					nu0[i] = w0[i] - nu0App[2*i]*tw0[i] - nu0App[2*i+1]*tw0[i]*tw0[i]
					nu0[i] += nu0App[2*i]*bus.IMU.Tw[i] + nu0App[2*i+1]*bus.IMU.Tw[i]*bus.IMU.Tw[i]
					bus.IMU.W[i] -= nu0[i]
				}
			}

			for i := 0; i < 3; i++ {
				df0[i] = df0App[3*i] + df0App[3*i+1]*bus.IMU.Tf[i] + df0App[3*i+2]*bus.IMU.Tf[i]*bus.IMU.Tf[i]
				ga[i] = gammaApp[3*i] + gammaApp[3*i+1]*bus.IMU.Tf[i] + gammaApp[3*i+2]*bus.IMU.Tf[i]*bus.IMU.Tf[i]
				if bus.IMU.FValid {
					bus.IMU.F[i] -= df0[i]
					bus.IMU.F[i] /= 1 + ga[i]
				}
			}
		}
	}
}

func cfgFloat(token, cfg string, def float64) float64 {
	v, ok := cfgtok.Value(token, cfg)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func cfgFloatPositive(token, cfg string, def float64) float64 {
	f := cfgFloat(token, cfg, def)
	if f <= 0 {
		return def
	}
	return f
}
