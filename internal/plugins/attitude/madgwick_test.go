package attitude

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMadgwickSeedsIdentityQuaternionOnInit(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.AddPlugin("attitude", Madgwick()))
	require.NoError(t, b.Init())

	require.True(t, b.IMU.Sol.QValid)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, b.IMU.Sol.Q)
}

func TestMadgwickGradientCorrectionConvergesSensedGravity(t *testing.T) {
	b := newTestBus(t)
	b.IMU.Cfg = "madgwick_feedback_rate = 1.0"
	require.NoError(t, b.AddPlugin("attitude", Madgwick()))
	require.NoError(t, b.Init())

	// a specific-force reading not aligned with the filter's reference "up":
	// pure gyro integration would never correct this, but the gradient term
	// should pull the quaternion until the residual vanishes.
	ax, ay, az := 0.0, 1.0, 0.0

	b.IMU.W = [3]float64{0, 0, 0}
	b.IMU.WValid = true
	b.IMU.F = [3]float64{ax, ay, az}
	b.IMU.FValid = true

	b.IMU.T = 0
	require.NoError(t, b.Step(1))
	for tick := 2; tick <= 400; tick++ {
		b.IMU.T = float64(tick) * 0.01
		require.NoError(t, b.Step(tick))
	}

	s := madgwickGradient(b.IMU.Sol.Q, ax, ay, az)
	mag := math.Sqrt(s[0]*s[0] + s[1]*s[1] + s[2]*s[2] + s[3]*s[3])
	assert.Less(t, mag, 1e-2, "gradient should have driven the quaternion to a near-stationary point")
}

func TestMadgwickDefaultBetaAppliesSomeCorrection(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.AddPlugin("attitude", Madgwick()))
	require.NoError(t, b.Init())

	b.IMU.W = [3]float64{0, 0, 0}
	b.IMU.WValid = true
	b.IMU.F = [3]float64{0, 1, 0}
	b.IMU.FValid = true

	b.IMU.T = 0
	require.NoError(t, b.Step(1))
	b.IMU.T = 0.01
	require.NoError(t, b.Step(2))

	assert.NotEqual(t, [4]float64{1, 0, 0, 0}, b.IMU.Sol.Q, "default beta is nonzero, so the quaternion must move")
}
