// Package navdata defines the shared navigation data structures passed
// between bus plugins: the navigation solution, IMU state and constants, and
// the minimal GNSS/air-data/reference attachment points.
package navdata

// Solution holds a navigation solution: position, velocity and attitude, in
// several equivalent representations, each independently tagged valid.
type Solution struct {
	X      [3]float64 // cartesian coordinates, meters
	XValid bool
	XStd   float64 // coordinate RMS deviation estimate, meters

	LLH      [3]float64 // longitude (rad), latitude (rad), height (m)
	LLHValid bool

	V      [3]float64 // local-level ENU velocity, m/s
	VValid bool
	VStd   float64

	Q      [4]float64 // attitude quaternion (q0 scalar part)
	QValid bool

	L      [9]float64 // attitude matrix, row-major
	LValid bool

	RPY      [3]float64 // roll, pitch, yaw, rad
	RPYValid bool

	Dt      float64 // clock bias
	DtValid bool

	Metrics []float64 // application-specific solution metrics
}

// IMUConst holds Earth/inertial constants, independent of any particular IMU
// instance, per GRS-80 (H. Moritz, Journal of Geodesy (2000) 74(1): 128-162).
type IMUConst struct {
	Pi      float64
	Rad2Deg float64
	U       float64 // Earth rotation rate, rad/s
	A       float64 // Earth ellipsoid semi-major axis, m
	E2      float64 // Earth ellipsoid first eccentricity squared
	GE      float64 // normal gravity at the equator, m/s^2
	FG      float64 // normal gravity flattening
}

// DefaultIMUConst returns the GRS-80 constant set used throughout the bus.
func DefaultIMUConst() IMUConst {
	return IMUConst{
		Pi:      3.14159265358979323846,
		Rad2Deg: 180 / 3.14159265358979323846,
		U:       7.2921151467e-5,
		A:       6378137.0,
		E2:      6.69438002290e-3,
		GE:      9.7803253359,
		FG:      0.00344280402779893,
	}
}

// IMU holds the current state of one inertial measurement unit: raw sensor
// readings, derived rates, and the running solution it feeds.
type IMU struct {
	Cfg string // this IMU's configuration substring

	T float64 // measurement update time, per the IMU's own clock

	W      [3]float64 // gyroscope measurements, rad/s
	WValid bool

	F      [3]float64 // accelerometer measurements, m/s^2
	FValid bool

	Tw      [3]float64 // gyroscope temperature
	TwValid bool

	Tf      [3]float64 // accelerometer temperature
	TfValid bool

	W2      [3]float64 // angular velocity of the local-level frame (transport rate)
	W2Valid bool

	G      [3]float64 // current gravity acceleration vector
	GValid bool

	Sol Solution
}

// GNSS holds the bus-level attachment point for a GNSS receiver. Constellation
// ephemeris/observable decoding is out of scope for this bus: a receiver
// hook only appends raw bytes for an external decoder to consume.
type GNSS struct {
	Cfg string

	Epoch        Epoch
	LeapSec      int
	LeapSecValid bool

	RawInbox []byte // raw undecoded bytes appended by an attached receiver hook

	Sol Solution
}

// Epoch mirrors navtime.Epoch's fields without importing navtime, so
// navdata stays a leaf package.
type Epoch struct {
	Y, M, D, H, Min int
	S               float64
}

// Air holds air-data-computer readings: barometric altitude, vertical speed
// and airspeed.
type Air struct {
	Cfg string

	T float64

	Alt      float64
	AltStd   float64
	AltValid bool

	VV      float64
	VVStd   float64
	VVValid bool

	Speed      float64
	SpeedStd   float64
	SpeedValid bool
}

// Ref holds externally supplied reference data (e.g. for simulation or
// post-processing validation against a reference trajectory).
type Ref struct {
	Cfg string

	T float64

	G      [3]float64
	GValid bool

	Sol Solution
}
