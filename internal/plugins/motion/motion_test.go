package motion

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/linal"
)

func newTestBus(t *testing.T) *busrt.Bus {
	t.Helper()
	b := busrt.New("{imu:}", zerolog.Nop())
	require.NoError(t, b.Init())
	return b
}

// levelAttitude returns the bus's level (roll=pitch=yaw=0) attitude matrix.
func levelAttitude() [9]float64 {
	return linal.RPY2Mat([3]float64{0, 0, 0})
}

func TestRestStabilityAtEquator(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.AddPlugin("motion", Euler()))
	require.NoError(t, b.Init())

	b.IMU.Sol.L = levelAttitude()
	b.IMU.Sol.LValid = true
	ge := b.IMUConst.GE
	b.IMU.G = [3]float64{0, 0, -ge}
	b.IMU.GValid = true
	// specific force exactly cancelling normal gravity in body frame, per
	// L^T*f = -g at the level attitude.
	b.IMU.F = [3]float64{0, -ge, 0}
	b.IMU.FValid = true
	b.IMU.WValid = false

	const dt = 0.01
	for tick := 1; tick <= 5000; tick++ {
		b.IMU.T = float64(tick) * dt
		require.NoError(t, b.Step(tick))
	}

	assert.InDelta(t, 0, b.IMU.Sol.V[0], 1e-6)
	assert.InDelta(t, 0, b.IMU.Sol.V[1], 1e-6)
	assert.InDelta(t, 0, b.IMU.Sol.V[2], 1e-6)
	assert.InDelta(t, 0, b.IMU.Sol.LLH[0], 1e-9)
	assert.InDelta(t, 0, b.IMU.Sol.LLH[1], 1e-9)
	assert.InDelta(t, 0, b.IMU.Sol.LLH[2], 1e-6)
}

func runOneStepAtLatitude(t *testing.T, lat float64) *busrt.Bus {
	t.Helper()
	b := newTestBus(t)
	require.NoError(t, b.AddPlugin("motion", Euler()))
	require.NoError(t, b.Init())

	b.IMU.Sol.LLH = [3]float64{0, lat, 0}
	b.IMU.Sol.LLHValid = true
	b.IMU.Sol.L = levelAttitude()
	b.IMU.Sol.LValid = true
	b.IMU.G = [3]float64{0, 0, -b.IMUConst.GE}
	b.IMU.GValid = true
	b.IMU.F = [3]float64{0, -b.IMUConst.GE, 0}
	b.IMU.FValid = true
	b.IMU.Sol.V = [3]float64{5, 0, 0}
	b.IMU.Sol.VValid = true
	b.IMU.WValid = false

	require.NoError(t, b.Step(1))
	b.IMU.T = 0.01
	require.NoError(t, b.Step(2))
	return b
}

func TestPoleGuardSelectsBranchOnEitherSideOfThreshold(t *testing.T) {
	// just above the guard: cos(lat) > poleGuard, the non-polar branch runs
	// and publishes a transport-rate yaw component.
	latNonPolar := math.Acos(poleGuard * 1.5)
	b := runOneStepAtLatitude(t, latNonPolar)
	assert.True(t, b.IMU.W2Valid)

	// just below the guard: cos(lat) < poleGuard, the polar branch runs and
	// leaves the transport-rate yaw component unset.
	latPolar := math.Acos(poleGuard * 0.5)
	b2 := runOneStepAtLatitude(t, latPolar)
	assert.False(t, b2.IMU.W2Valid)
}

func TestFlipOverPoleNegatesFirstTwoColumns(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.AddPlugin("motion", Euler()))
	require.NoError(t, b.Init())

	// start just outside the pole guard cone, close enough to pi/2 that a
	// large northward velocity crosses the pole in one step.
	lat0 := math.Acos(poleGuard * 1.01)
	b.IMU.Sol.LLH = [3]float64{0, lat0, 0}
	b.IMU.Sol.LLHValid = true
	b.IMU.Sol.L = levelAttitude()
	b.IMU.Sol.LValid = true
	b.IMU.G = [3]float64{0, 0, -b.IMUConst.GE}
	b.IMU.GValid = true
	b.IMU.F = [3]float64{0, -b.IMUConst.GE, 0}
	b.IMU.FValid = true
	b.IMU.Sol.V = [3]float64{0, 2000, 0}
	b.IMU.Sol.VValid = true
	b.IMU.WValid = false

	require.NoError(t, b.Step(1))
	b.IMU.T = 50
	require.NoError(t, b.Step(2))

	assert.LessOrEqual(t, b.IMU.Sol.LLH[1], math.Pi/2)
	assert.GreaterOrEqual(t, b.IMU.Sol.LLH[1], -math.Pi/2)
	// the Coriolis term first gives the northbound vehicle an eastward
	// velocity of 2*Vn*u*sin(lat)*dt, which moves longitude east during the
	// step; the pole crossing then adds pi to longitude (wrapped into
	// -pi..pi) and negates the northward velocity
	c := b.IMUConst
	sphi, cphi := math.Sincos(lat0)
	e2s2 := c.E2 * sphi * sphi
	re := c.A * (1 + e2s2/2 + 3*e2s2*e2s2/8)
	ve := 2000 * 2 * c.U * sphi * 50
	wantLon := ve/(re*cphi)*50 + math.Pi - 2*math.Pi
	assert.InDelta(t, wantLon, b.IMU.Sol.LLH[0], 1e-6)
	assert.Less(t, b.IMU.Sol.V[1], 0.0)
}
