package sync

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FastSense/fsnav-go/internal/busrt"
)

func TestStepAdvancesTimeByConfiguredFrequency(t *testing.T) {
	b := busrt.New("{imu: freq = 50}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("sync", Step()))
	require.NoError(t, b.Init())

	require.NoError(t, b.Step(1))
	assert.InDelta(t, 1.0/50.0, b.IMU.T, 1e-12)
	require.NoError(t, b.Step(2))
	assert.InDelta(t, 2.0/50.0, b.IMU.T, 1e-12)
}

func TestStepDefaultsTo100Hz(t *testing.T) {
	b := busrt.New("{imu:}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("sync", Step()))
	require.NoError(t, b.Init())

	require.NoError(t, b.Step(1))
	assert.InDelta(t, 0.01, b.IMU.T, 1e-12)
}

func TestStepIgnoresFrequencyOutOfRange(t *testing.T) {
	b := busrt.New("{imu: freq = 10000}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("sync", Step()))
	require.NoError(t, b.Init())

	require.NoError(t, b.Step(1))
	assert.InDelta(t, 0.01, b.IMU.T, 1e-12, "out-of-range freq falls back to the default dt")
}

func TestStepLimitRequestsTermination(t *testing.T) {
	b := busrt.New("{imu: freq = 100} step_limit = 3", zerolog.Nop())
	require.NoError(t, b.AddPlugin("sync", Step()))
	require.NoError(t, b.Init())

	for tick := 1; tick <= 3; tick++ {
		require.NoError(t, b.Step(tick))
		assert.False(t, b.Terminating(), "termination should not fire before the limit is exceeded")
	}
	require.NoError(t, b.Step(4))
	assert.True(t, b.Terminating())
}

func TestTimeLimitRequestsTermination(t *testing.T) {
	b := busrt.New("{imu: freq = 100} time_limit = 0.025", zerolog.Nop())
	require.NoError(t, b.AddPlugin("sync", Step()))
	require.NoError(t, b.Init())

	require.NoError(t, b.Step(1)) // t = 0.01
	assert.False(t, b.Terminating())
	require.NoError(t, b.Step(2)) // t = 0.02
	assert.False(t, b.Terminating())
	require.NoError(t, b.Step(3)) // t = 0.03 > 0.025
	assert.True(t, b.Terminating())
}

func TestStepInvalidatesStaleSensorReadings(t *testing.T) {
	b := busrt.New("{imu:}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("sync", Step()))
	require.NoError(t, b.Init())

	b.IMU.WValid = true
	b.IMU.FValid = true
	require.NoError(t, b.Step(1))
	assert.False(t, b.IMU.WValid)
	assert.False(t, b.IMU.FValid)
}
