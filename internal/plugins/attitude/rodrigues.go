// Package attitude implements angular-rate integration plugins: Rodrigues'
// rotation formula (navigation/tactical grade) and a Madgwick complementary
// filter (consumer/MEMS grade, fusing gyroscope integration with an
// accelerometer-derived gravity correction).
package attitude

import (
	"math"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/linal"
)

// Rodrigues returns a plugin that combines angular rate components into
// Euler rotation vectors for both the instrumental and navigation frames,
// applies Rodrigues' rotation formula to each, and derives the transition
// (attitude) matrix between them:
//
//	L(t+dt) = A * L(t) * C^T
//	A = eul2mat(w*dt)                         (instrumental-frame rotation)
//	C = eul2mat((W + u)*dt)                   (navigation-frame transport rotation)
//
// Quaternion and roll/pitch/yaw are re-derived from L on every tick.
// Recommended for navigation/tactical grade systems.
//
// cfg parameters: none.
func Rodrigues() busrt.Func {
	t0 := -1.0

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			bus.IMU.Sol.QValid = false
			bus.IMU.Sol.LValid = false
			bus.IMU.Sol.RPYValid = false
			bus.IMU.Sol.Q = [4]float64{1, 0, 0, 0}
			bus.IMU.Sol.QValid = true
			bus.IMU.Sol.L = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
			bus.IMU.Sol.LValid = true
			bus.IMU.Sol.RPY = [3]float64{-bus.IMUConst.Pi / 2, 0, bus.IMUConst.Pi / 2}
			bus.IMU.Sol.RPYValid = true
			t0 = -1

		case bus.Mode < 0:
			// nothing to clean up

		default:
			if !bus.IMU.Sol.LValid || !bus.IMU.WValid {
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
			A := linal.Eul2Mat(a)
			L := bus.IMU.Sol.L
			L = matmul3(A, L)

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
			C := linal.Eul2Mat(c)
			L = matmul3T2(L, C)

			bus.IMU.Sol.L = L
			bus.IMU.Sol.Q = linal.Mat2Quat(L)
			bus.IMU.Sol.QValid = true
			bus.IMU.Sol.RPY = linal.Mat2RPY(L)
			bus.IMU.Sol.RPYValid = true
		}
	}
}

func matmul3(a, b [9]float64) [9]float64 {
	var r [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i*3+k] * b[k*3+j]
			}
			r[i*3+j] = s
		}
	}
	return r
}

// matmul3T2 computes a * b^T for two 3x3 matrices.
func matmul3T2(a, b [9]float64) [9]float64 {
	var r [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i*3+k] * b[j*3+k]
			}
			r[i*3+j] = s
		}
	}
	return r
}
