package align

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FastSense/fsnav-go/internal/busrt"
)

func newTestBus(t *testing.T, cfg string) *busrt.Bus {
	t.Helper()
	return busrt.New(cfg, zerolog.Nop())
}

func TestLevelingRecoversRollPitch(t *testing.T) {
	b := newTestBus(t, "{imu: alignment = 1}")
	require.NoError(t, b.AddPlugin("level", Leveling()))
	require.NoError(t, b.Init())

	// 10 degrees of pitch, no roll: f = g*(sin(pitch), cos(pitch), 0) in the
	// bus's X-forward/Y-up/Z-right frame.
	const g = 9.80665
	pitch := 10.0 * math.Pi / 180
	f := [3]float64{g * math.Sin(pitch), g * math.Cos(pitch), 0}

	for tick := 1; tick <= 50; tick++ {
		b.IMU.T = float64(tick) * 0.01
		b.IMU.F = f
		b.IMU.FValid = true
		require.NoError(t, b.Step(tick))
	}
	// one more tick past the 1s alignment window finalizes the estimate.
	b.IMU.T = 2
	require.NoError(t, b.Step(51))

	require.True(t, b.IMU.Sol.RPYValid)
	assert.InDelta(t, 0, b.IMU.Sol.RPY[0], 1e-6, "roll")
	assert.InDelta(t, pitch, b.IMU.Sol.RPY[1], 1e-6, "pitch")
	assert.Equal(t, 0.0, b.IMU.Sol.RPY[2], "leveling leaves yaw at zero")
}

func TestLevelingDegenerateSpecificForceLeavesAttitudeInvalid(t *testing.T) {
	b := newTestBus(t, "{imu: alignment = 0.01}")
	require.NoError(t, b.AddPlugin("level", Leveling()))
	require.NoError(t, b.Init())

	b.IMU.T = 1
	b.IMU.F = [3]float64{0, 0, 0}
	b.IMU.FValid = true
	require.NoError(t, b.Step(1))

	assert.False(t, b.IMU.Sol.RPYValid)
}

func TestConstantPresetAppliesConfiguredAngles(t *testing.T) {
	b := newTestBus(t, "{imu: roll0 = 5, pitch0 = -3, yaw0 = 90}")
	require.NoError(t, b.AddPlugin("preset", ConstantPreset()))
	require.NoError(t, b.Init())

	require.True(t, b.IMU.Sol.RPYValid)
	assert.InDelta(t, 5.0/b.IMUConst.Rad2Deg, b.IMU.Sol.RPY[0], 1e-9)
	assert.InDelta(t, -3.0/b.IMUConst.Rad2Deg, b.IMU.Sol.RPY[1], 1e-9)
	assert.InDelta(t, 90.0/b.IMUConst.Rad2Deg, b.IMU.Sol.RPY[2], 1e-9)
}

func TestZeroYawOverridesYawOnly(t *testing.T) {
	b := newTestBus(t, "{imu: roll0 = 5, pitch0 = -3, yaw0 = 90}")
	require.NoError(t, b.AddPlugin("preset", ConstantPreset()))
	require.NoError(t, b.AddPlugin("zero_yaw", ZeroYaw()))
	require.NoError(t, b.Init())

	assert.Equal(t, 0.0, b.IMU.Sol.RPY[2])
	assert.InDelta(t, 5.0/b.IMUConst.Rad2Deg, b.IMU.Sol.RPY[0], 1e-9)
}
