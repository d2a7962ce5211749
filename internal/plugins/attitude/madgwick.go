package attitude

import (
	"math"
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
	"github.com/FastSense/fsnav-go/internal/linal"
)

// gravityRef is the reference "up" direction the accelerometer correction
// is measured against, expressed in the local-level frame: (0,0,1), i.e.
// ENU up. At rest the accelerometer senses a specific-force reaction along
// +Z, consistent with the bus's gravity plugins publishing g[2] < 0.
var gravityRef = [3]float64{0, 0, 1}

// Madgwick returns a plugin implementing a Madgwick-style complementary
// filter: quaternion propagation from gyroscope integration (body rotation
// composed with the navigation-frame transport/Earth-rate rotation, exactly
// as Rodrigues composes its attitude matrix) followed by a gradient-descent
// correction pulling the quaternion's sensed "up" direction toward the
// normalized accelerometer reading. Suited to consumer/MEMS grade IMUs,
// where Rodrigues' pure-integration drift needs continuous correction.
//
// cfg parameters (within the imu group):
//
//	madgwick_feedback_rate - gradient-descent correction gain, default 0.1: the
//	  quaternion steps this far along the normalized gradient once per tick
//	  (the step is not scaled by the tick interval)
func Madgwick() busrt.Func {
	t0 := -1.0
	beta := 0.1
	var q [4]float64

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			bus.IMU.Sol.QValid = false
			bus.IMU.Sol.LValid = false
			bus.IMU.Sol.RPYValid = false
			q = [4]float64{1, 0, 0, 0}
			bus.IMU.Sol.Q = q
			bus.IMU.Sol.QValid = true
			bus.IMU.Sol.L = linal.Quat2Mat(q)
			bus.IMU.Sol.LValid = true
			bus.IMU.Sol.RPY = linal.Mat2RPY(bus.IMU.Sol.L)
			bus.IMU.Sol.RPYValid = true
			beta = 0.1
			if v, ok := cfgtok.Value("madgwick_feedback_rate", bus.IMU.Cfg); ok {
				if parsed, err := parseFloat(v); err == nil && parsed >= 0 {
					beta = parsed
				}
			}
			t0 = -1

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if !bus.IMU.Sol.QValid || !bus.IMU.WValid {
				return
			}
			if t0 < 0 {
				t0 = bus.IMU.T
				return
			}
			dt := bus.IMU.T - t0
			t0 = bus.IMU.T

			var a [3]float64
			for i := 0; i < 3; i++ {
				a[i] = bus.IMU.W[i] * dt
			}
			qA := axisAngleToQuat(a)

			var c [3]float64
			if bus.IMU.W2Valid {
				c = bus.IMU.W2
			}
			if bus.IMU.Sol.LLHValid {
				c[1] += bus.IMUConst.U * math.Cos(bus.IMU.Sol.LLH[1])
				c[2] += bus.IMUConst.U * math.Sin(bus.IMU.Sol.LLH[1])
			}
			for i := 0; i < 3; i++ {
				c[i] *= dt
			}
			qC := axisAngleToQuat(c)

			q = linal.QMul(qA, q)
			q = linal.QMul(q, conj(qC))
			q = normalizeQ(q)

			if bus.IMU.FValid {
				norm := linal.VNorm(bus.IMU.F[:])
				if norm > 1e-9 {
					ax, ay, az := bus.IMU.F[0]/norm, bus.IMU.F[1]/norm, bus.IMU.F[2]/norm
					s := madgwickGradient(q, ax, ay, az)
					sn := linal.VNorm(s[:])
					if sn > 1e-12 {
						for i := range s {
							s[i] /= sn
						}
						for i := range q {
							q[i] -= beta * s[i]
						}
						q = normalizeQ(q)
					}
				}
			}

			bus.IMU.Sol.Q = q
			bus.IMU.Sol.QValid = true
			bus.IMU.Sol.L = linal.Quat2Mat(q)
			bus.IMU.Sol.LValid = true
			bus.IMU.Sol.RPY = linal.Mat2RPY(bus.IMU.Sol.L)
			bus.IMU.Sol.RPYValid = true
		}
	}
}

// madgwickGradient returns the (unnormalized) objective-function gradient
// J^T*F for reference direction gravityRef = (0,0,1), the closed-form
// expression from Madgwick's gradient-descent algorithm.
func madgwickGradient(q [4]float64, ax, ay, az float64) [4]float64 {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]
	_2q0 := 2 * q0
	_2q1 := 2 * q1
	_2q2 := 2 * q2
	_2q3 := 2 * q3
	_4q0 := 4 * q0
	_4q1 := 4 * q1
	_4q2 := 4 * q2
	_8q1 := 8 * q1
	_8q2 := 8 * q2
	q0q0 := q0 * q0
	q1q1 := q1 * q1
	q2q2 := q2 * q2
	q3q3 := q3 * q3

	s0 := _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay
	s1 := _4q1*q3q3 - _2q3*ax + 4*q0q0*q1 - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az
	s2 := 4*q0q0*q2 + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az
	s3 := 4*q1q1*q3 - _2q1*ax + 4*q2q2*q3 - _2q2*ay
	return [4]float64{s0, s1, s2, s3}
}

func axisAngleToQuat(e [3]float64) [4]float64 {
	n := linal.VNorm(e[:])
	if n < linal.TaylorThreshold {
		return normalizeQ([4]float64{1 - n*n/8, e[0] / 2, e[1] / 2, e[2] / 2})
	}
	half := n / 2
	k := math.Sin(half) / n
	return [4]float64{math.Cos(half), e[0] * k, e[1] * k, e[2] * k}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func conj(q [4]float64) [4]float64 {
	return [4]float64{q[0], -q[1], -q[2], -q[3]}
}

func normalizeQ(q [4]float64) [4]float64 {
	n := linal.VNorm(q[:])
	if n < 1e-15 {
		return [4]float64{1, 0, 0, 0}
	}
	for i := range q {
		q[i] /= n
	}
	return q
}
