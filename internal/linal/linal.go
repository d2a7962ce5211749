// Package linal implements the numeric kernel shared by every plugin in the
// navigation bus: vector/matrix arithmetic, quaternion/matrix/Euler-angle
// conversions, upper-triangular (square-root) matrix storage, and the
// square-root Kalman filter primitives used by the estimation plugins.
//
// Matrices are stored row-major in flat []float64 slices, mirroring the
// original fsnav numeric core. Upper-triangular m x m matrices are lined up
// in a single array of m(m+1)/2 elements via UIJ2K/UK2IJ.
package linal

import "math"

// TaylorThreshold is the rotation-vector magnitude below which Eul2Mat and
// related routines switch from closed-form trigonometric coefficients to
// their second-order Taylor expansions, to avoid cancellation as |e| -> 0.
const TaylorThreshold = 1.0 / 256 // 2^-8

// Dot returns the dot product of two m-vectors.
func Dot(u, v []float64) float64 {
	var s float64
	for i := range u {
		s += u[i] * v[i]
	}
	return s
}

// VNorm returns the l2 norm of an m-vector.
func VNorm(u []float64) float64 {
	return math.Sqrt(Dot(u, u))
}

// Cross3 returns the cross product of two 3-vectors.
func Cross3(u, v [3]float64) [3]float64 {
	return [3]float64{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
}

// MMul multiplies two matrices: res = a*b, where a is n x n1, b is n1 x m.
func MMul(a, b []float64, n, n1, m int) []float64 {
	res := make([]float64, n*m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			var s float64
			for k := 0; k < n1; k++ {
				s += a[i*n1+k] * b[k*m+j]
			}
			res[i*m+j] = s
		}
	}
	return res
}

// MMul1T multiplies two matrices with the first transposed: res = a^T*b,
// where a is n x m, b is n x n1, res is m x n1.
func MMul1T(a, b []float64, n, m, n1 int) []float64 {
	res := make([]float64, m*n1)
	for i := 0; i < m; i++ {
		for j := 0; j < n1; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += a[k*m+i] * b[k*n1+j]
			}
			res[i*n1+j] = s
		}
	}
	return res
}

// MMul2T multiplies two matrices with the second transposed: res = a*b^T,
// where a is n x m, b is n1 x m, res is n x n1.
func MMul2T(a, b []float64, n, m, n1 int) []float64 {
	res := make([]float64, n*n1)
	for i := 0; i < n; i++ {
		for j := 0; j < n1; j++ {
			var s float64
			for k := 0; k < m; k++ {
				s += a[i*m+k] * b[j*m+k]
			}
			res[i*n1+j] = s
		}
	}
	return res
}

// QMul multiplies two quaternions (q0/r0 scalar parts): res = q x r.
func QMul(q, r [4]float64) [4]float64 {
	return [4]float64{
		q[0]*r[0] - q[1]*r[1] - q[2]*r[2] - q[3]*r[3],
		q[0]*r[1] + q[1]*r[0] + q[2]*r[3] - q[3]*r[2],
		q[0]*r[2] - q[1]*r[3] + q[2]*r[0] + q[3]*r[1],
		q[0]*r[3] + q[1]*r[2] - q[2]*r[1] + q[3]*r[0],
	}
}

// Mat2Quat calculates the quaternion (q0 scalar part) corresponding to a 3x3
// attitude matrix R (row-major, 9 elements).
func Mat2Quat(R [9]float64) [4]float64 {
	tr := R[0] + R[4] + R[8]
	var q [4]float64
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q[0] = 0.25 * s
		q[1] = (R[7] - R[5]) / s
		q[2] = (R[2] - R[6]) / s
		q[3] = (R[3] - R[1]) / s
	case R[0] > R[4] && R[0] > R[8]:
		s := math.Sqrt(1+R[0]-R[4]-R[8]) * 2
		q[0] = (R[7] - R[5]) / s
		q[1] = 0.25 * s
		q[2] = (R[1] + R[3]) / s
		q[3] = (R[2] + R[6]) / s
	case R[4] > R[8]:
		s := math.Sqrt(1+R[4]-R[0]-R[8]) * 2
		q[0] = (R[2] - R[6]) / s
		q[1] = (R[1] + R[3]) / s
		q[2] = 0.25 * s
		q[3] = (R[5] + R[7]) / s
	default:
		s := math.Sqrt(1+R[8]-R[0]-R[4]) * 2
		q[0] = (R[3] - R[1]) / s
		q[1] = (R[2] + R[6]) / s
		q[2] = (R[5] + R[7]) / s
		q[3] = 0.25 * s
	}
	n := VNorm(q[:])
	for i := range q {
		q[i] /= n
	}
	return q
}

// Quat2Mat calculates the 3x3 attitude matrix corresponding to a quaternion
// (q0 scalar part).
func Quat2Mat(q [4]float64) [9]float64 {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]
	return [9]float64{
		q0*q0 + q1*q1 - q2*q2 - q3*q3, 2 * (q1*q2 - q0*q3), 2 * (q1*q3 + q0*q2),
		2 * (q1*q2 + q0*q3), q0*q0 - q1*q1 + q2*q2 - q3*q3, 2 * (q2*q3 - q0*q1),
		2 * (q1*q3 - q0*q2), 2 * (q2*q3 + q0*q1), q0*q0 - q1*q1 - q2*q2 + q3*q3,
	}
}

// RPY2Mat calculates the 3x3 attitude matrix corresponding to roll, pitch
// and yaw (radians), in the airborne frame used throughout the bus: X
// longitudinal, Y up, Z right-wing; roll about X, pitch about Z (right
// wing), yaw about Y (true heading, positive East). The composition is
// Ry(yaw-pi/2)*Rz(pitch)*Rx(roll+pi/2), chosen so that the identity matrix
// corresponds to rpy = (-pi/2, 0, +pi/2), per the bus convention.
func RPY2Mat(rpy [3]float64) [9]float64 {
	sr, cr := math.Sincos(rpy[0])
	sp, cp := math.Sincos(rpy[1])
	sy, cy := math.Sincos(rpy[2])
	return [9]float64{
		sy * cp, sy*sp*sr - cy*cr, sy*sp*cr + cy*sr,
		sp, -cp * sr, -cp * cr,
		cy * cp, cy*sp*sr + sy*cr, cy*sp*cr - sy*sr,
	}
}

// Mat2RPY calculates roll, pitch and yaw (radians, airborne frame) from a
// 3x3 attitude matrix R, inverting RPY2Mat's composition.
func Mat2RPY(R [9]float64) [3]float64 {
	pitch := math.Asin(clamp(R[3], -1, 1))
	cp := math.Cos(pitch)
	var roll, yaw float64
	if math.Abs(cp) > 1e-9 {
		roll = math.Atan2(-R[4], -R[5])
		yaw = math.Atan2(R[0], R[6])
	} else {
		// gimbal lock at pitch = +-pi/2: roll and yaw are not separately
		// observable, attribute the rotation entirely to yaw.
		sp := math.Sin(pitch)
		roll = 0
		yaw = math.Atan2(sp*R[2], -R[1])
	}
	return [3]float64{roll, pitch, yaw}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Eul2Mat calculates the 3x3 rotation matrix R for a 3x1 Euler rotation
// vector e via Rodrigues' formula:
//
//	R = E + sin|e|/|e| * [e,] + (1-cos|e|)/|e|^2 * [e,]^2
//
// Uses second-order Taylor expansions for the two coefficients when
// |e| < TaylorThreshold to avoid numerical cancellation.
func Eul2Mat(e [3]float64) [9]float64 {
	n := VNorm(e[:])
	var k1, k2 float64 // k1 = sin|e|/|e|, k2 = (1-cos|e|)/|e|^2
	if n < TaylorThreshold {
		n2 := n * n
		k1 = 1 - n2/6
		k2 = 0.5 - n2/24
	} else {
		k1 = math.Sin(n) / n
		k2 = (1 - math.Cos(n)) / (n * n)
	}
	skew := [9]float64{
		0, -e[2], e[1],
		e[2], 0, -e[0],
		-e[1], e[0], 0,
	}
	skew2 := matmul3(skew, skew)
	var R [9]float64
	for i := 0; i < 9; i++ {
		diag := 0.0
		if i%4 == 0 {
			diag = 1
		}
		R[i] = diag + k1*skew[i] + k2*skew2[i]
	}
	return R
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

// UIJ2K converts (i,j) indices of an m x m upper-triangular matrix (i <= j)
// lined up column-wise into a single-dimension array into the flat index k.
func UIJ2K(i, j, m int) int {
	return j*(j+1)/2 + i
}

// UK2IJ converts a flat index k back into (i,j) indices of an m x m
// upper-triangular matrix.
func UK2IJ(k, m int) (i, j int) {
	j = 0
	for (j+1)*(j+2)/2 <= k {
		j++
	}
	i = k - j*(j+1)/2
	return
}

// UMul multiplies an m x m upper-triangular matrix (flat, m(m+1)/2 elems) by
// an m x n regular matrix v: res = U*v, res is m x n.
func UMul(u []float64, v []float64, m, n int) []float64 {
	res := make([]float64, m*n)
	for col := 0; col < n; col++ {
		for i := 0; i < m; i++ {
			var s float64
			for j := i; j < m; j++ {
				s += u[UIJ2K(i, j, m)] * v[j*n+col]
			}
			res[i*n+col] = s
		}
	}
	return res
}

// UTMulV multiplies the transpose of an m x m upper-triangular matrix (flat)
// by a vector v of length m: res = U^T*v.
func UTMulV(u []float64, v []float64, m int) []float64 {
	res := make([]float64, m)
	for i := 0; i < m; i++ {
		var s float64
		for j := 0; j <= i; j++ {
			s += u[UIJ2K(j, i, m)] * v[j]
		}
		res[i] = s
	}
	return res
}

// UInv inverts an m x m upper-triangular matrix (flat): res = U^-1.
func UInv(u []float64, m int) []float64 {
	res := make([]float64, len(u))
	for j := 0; j < m; j++ {
		res[UIJ2K(j, j, m)] = 1 / u[UIJ2K(j, j, m)]
		for i := j - 1; i >= 0; i-- {
			var s float64
			for k := i + 1; k <= j; k++ {
				s += u[UIJ2K(i, k, m)] * res[UIJ2K(k, j, m)]
			}
			res[UIJ2K(i, j, m)] = -s / u[UIJ2K(i, i, m)]
		}
	}
	return res
}

// UUT calculates the square (with transposition) of an m x m
// upper-triangular matrix (flat): res = U*U^T, returned as a full m x m
// row-major matrix.
func UUT(u []float64, m int) []float64 {
	res := make([]float64, m*m)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			lo := i
			if j > lo {
				lo = j
			}
			var s float64
			for k := lo; k < m; k++ {
				s += u[UIJ2K(i, k, m)] * u[UIJ2K(j, k, m)]
			}
			res[i*m+j] = s
		}
	}
	return res
}

// Chol calculates the Cholesky upper-triangular factorization P = S*S^T of a
// symmetric positive-definite m x m matrix P (row-major), returning S in
// flat upper-triangular storage. Reports ok = false, leaving S's contents
// unspecified, if P is not positive definite (any pivot non-positive) at
// the given tolerance — callers must not use S when ok is false.
func Chol(P []float64, m int) (S []float64, ok bool) {
	return chol(P, m, false)
}

// chol factors P = S*S^T as Chol does; when semi is true a pivot within tol of
// zero leaves that diagonal and the column above it zero instead of failing,
// so positive semi-definite P factors too.
func chol(P []float64, m int, semi bool) (S []float64, ok bool) {
	const tol = 1e-12
	S = make([]float64, m*(m+1)/2)
	for j := m - 1; j >= 0; j-- {
		var d float64
		for k := j + 1; k < m; k++ {
			v := S[UIJ2K(j, k, m)]
			d += v * v
		}
		pivot := P[j*m+j] - d
		if semi && math.Abs(pivot) <= tol {
			continue
		}
		if pivot <= tol {
			return S, false
		}
		S[UIJ2K(j, j, m)] = math.Sqrt(pivot)
		for i := 0; i < j; i++ {
			var s float64
			for k := j + 1; k < m; k++ {
				s += S[UIJ2K(i, k, m)] * S[UIJ2K(j, k, m)]
			}
			S[UIJ2K(i, j, m)] = (P[i*m+j] - s) / S[UIJ2K(j, j, m)]
		}
	}
	return S, true
}

// CheckMeasurementResidual checks a measurement residual magnitude against
// the predicted covariance level: |z - h^T*x| <= k_sigma * sqrt(h^T*S*S^T*h + sigma^2).
func CheckMeasurementResidual(x, S []float64, z float64, h []float64, sigma, kSigma float64, n int) bool {
	pred := Dot(h, x)
	hs := UTMulV(S, h, n)
	var var_ float64
	for _, v := range hs {
		var_ += v * v
	}
	var_ += sigma * sigma
	return math.Abs(z-pred) <= kSigma*math.Sqrt(var_)
}

// KalmanUpdate performs a square-root Kalman filter update phase for a
// scalar measurement z = h^T*x + noise(sigma), updating x and S (flat
// upper-triangular, n(n+1)/2 elems) in place, and writing the Kalman gain
// into K (length n). Returns the innovation variance and ok = true on
// success. If the covariance downdate fails to re-factor (P - Sf*Sf^T/var
// is not positive semi-definite — a numeric degeneracy), x and S are left
// untouched and ok is false: the caller must treat this update as
// cancelled, per the residual-gate/degeneracy handling the vertical
// channel and other Kalman consumers rely on.
func KalmanUpdate(x, S, K []float64, z float64, h []float64, sigma float64, n int) (variance float64, ok bool) {
	f := UTMulV(S, h, n) // f = S^T*h
	for _, v := range f {
		variance += v * v
	}
	variance += sigma * sigma
	if variance <= 0 {
		return variance, false
	}

	Sf := UMul(S, f, n, 1) // Sf = S*f, the (unnormalized) Kalman gain column
	for i := 0; i < n; i++ {
		K[i] = Sf[i] / variance
	}

	// Covariance-form downdate P <- P - Sf*Sf^T/variance, then re-factor to
	// restore upper-triangular square-root form.
	P := UUT(S, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			P[i*n+j] -= Sf[i] * Sf[j] / variance
		}
	}
	newS, factored := chol(P, n, true)
	if !factored {
		return variance, false
	}
	copy(S, newS)

	innov := z - Dot(h, x)
	for i := 0; i < n; i++ {
		x[i] += K[i] * innov
	}
	return variance, true
}

// KalmanPredictIqI performs a square-root Kalman prediction phase with
// identity state transition and a scalar process noise covariance q2*I,
// applied to all n components.
func KalmanPredictIqI(S []float64, q2 float64, n int) {
	KalmanPredictIDiag(S, repeat(q2, n), n, n)
}

// KalmanPredictIqIr performs prediction with identity state transition and a
// scalar process noise covariance q2*I applied only to the last m (reduced)
// components of an n-state square root S.
func KalmanPredictIqIr(S []float64, q2 float64, n, m int) {
	q2vec := make([]float64, m)
	for i := range q2vec {
		q2vec[i] = q2
	}
	KalmanPredictIDiag(S, q2vec, n, m)
}

// KalmanPredictIDiag performs prediction with identity state transition and
// a diagonal process noise covariance (q2 has length m, applied to the last
// m of the n state components).
func KalmanPredictIDiag(S []float64, q2 []float64, n, m int) {
	P := UUT(S, n)
	off := n - m
	for k := 0; k < m; k++ {
		P[(off+k)*n+off+k] += q2[k]
	}
	if newS, ok := Chol(P, n); ok {
		copy(S, newS)
	}
}

// KalmanPredictI performs prediction with identity state transition and a
// full m x m process noise covariance matrix Q added to the last m of the n
// state components.
func KalmanPredictI(S []float64, Q []float64, n, m int) {
	P := UUT(S, n)
	off := n - m
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			P[(off+i)*n+off+j] += Q[i*m+j]
		}
	}
	if newS, ok := Chol(P, n); ok {
		copy(S, newS)
	}
}

// KalmanPredictUDiag performs prediction with an upper-triangular state
// transition matrix U (flat, n x n) applied to state x and square root S,
// plus a diagonal process noise covariance q2 (length m) added to the last m
// components.
func KalmanPredictUDiag(x, S, U []float64, q2 []float64, n, m int) {
	Ufull := expandUpper(U, n)
	newX := MMul(Ufull, x, n, n, 1)
	copy(x, newX)

	P := UUT(S, n)
	UP := MMul(Ufull, P, n, n, n)
	UPUt := MMul2T(UP, Ufull, n, n, n)
	off := n - m
	for k := 0; k < m; k++ {
		UPUt[(off+k)*n+off+k] += q2[k]
	}
	if newS, ok := Chol(UPUt, n); ok {
		copy(S, newS)
	}
}

// KalmanPredictU performs prediction with an upper-triangular state
// transition matrix U (flat, n x n) and a full m x m process noise
// covariance Q added to the last m components.
func KalmanPredictU(x, S, U []float64, Q []float64, n, m int) {
	Ufull := expandUpper(U, n)
	newX := MMul(Ufull, x, n, n, 1)
	copy(x, newX)

	P := UUT(S, n)
	UP := MMul(Ufull, P, n, n, n)
	UPUt := MMul2T(UP, Ufull, n, n, n)
	off := n - m
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			UPUt[(off+i)*n+off+j] += Q[i*m+j]
		}
	}
	if newS, ok := Chol(UPUt, n); ok {
		copy(S, newS)
	}
}

func expandUpper(u []float64, m int) []float64 {
	full := make([]float64, m*m)
	for j := 0; j < m; j++ {
		for i := 0; i <= j; i++ {
			full[i*m+j] = u[UIJ2K(i, j, m)]
		}
	}
	return full
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
