package calib

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FastSense/fsnav-go/internal/busrt"
)

func TestStaticAppliesBiasAndScaleFactor(t *testing.T) {
	b := busrt.New("{imu: df01 = 0.1, ga22 = 0.1, nu01 = 3600}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("calib", Static()))
	require.NoError(t, b.Init())

	b.IMU.F = [3]float64{1, 1, 1}
	b.IMU.FValid = true
	b.IMU.W = [3]float64{1, 0, 0}
	b.IMU.WValid = true
	require.NoError(t, b.Step(1))

	assert.InDelta(t, 0.9, b.IMU.F[0], 1e-9)
	assert.InDelta(t, 1.0/1.1, b.IMU.F[1], 1e-9)
	assert.InDelta(t, 1.0, b.IMU.F[2], 1e-9)

	// nu01 = 3600 deg/hour = 1 deg/sec = 1/Rad2Deg rad/sec
	wantBias := 1.0 / b.IMUConst.Rad2Deg
	assert.InDelta(t, 1-wantBias, b.IMU.W[0], 1e-9)
}

func TestStaticDefaultsToNoCorrection(t *testing.T) {
	b := busrt.New("{imu:}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("calib", Static()))
	require.NoError(t, b.Init())

	b.IMU.F = [3]float64{1, 2, 3}
	b.IMU.FValid = true
	require.NoError(t, b.Step(1))
	assert.Equal(t, [3]float64{1, 2, 3}, b.IMU.F)
}

func TestTemperatureFitsBiasDuringAlignmentThenCorrects(t *testing.T) {
	b := busrt.New("{imu: alignment = 3, df01_a0 = 0.2}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("calib", Temperature()))
	require.NoError(t, b.Init())

	for tick := 1; tick <= 2; tick++ {
		b.IMU.T = float64(tick)
		b.IMU.W = [3]float64{0.5, 0.5, 0.5}
		b.IMU.WValid = true
		b.IMU.Tw = [3]float64{20, 20, 20}
		b.IMU.F = [3]float64{1, 1, 1}
		b.IMU.FValid = true
		b.IMU.Tf = [3]float64{20, 20, 20}
		require.NoError(t, b.Step(tick))
		// accel correction (constant coefficient, no temperature dependence set
		// beyond a0) applies even during the gyro alignment window
		assert.InDelta(t, 0.8, b.IMU.F[0], 1e-9)
	}

	b.IMU.T = 3
	b.IMU.W = [3]float64{1, 1, 1}
	b.IMU.WValid = true
	b.IMU.Tw = [3]float64{20, 20, 20}
	require.NoError(t, b.Step(3))
	// with no temperature-dependent gyro coefficients configured, the fitted
	// bias reduces to the plain average observed during alignment.
	assert.InDelta(t, 1-0.5, b.IMU.W[0], 1e-9)
}
