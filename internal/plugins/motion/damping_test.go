package motion

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FastSense/fsnav-go/internal/busrt"
)

func TestVerticalDampingPullsVerticalVelocityToZero(t *testing.T) {
	b := busrt.New("{imu: vertical_damping_stdev = 0.05}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("damping", VerticalDamping()))
	require.NoError(t, b.Init())

	b.IMU.Sol.LLH = [3]float64{0, 0, 100}
	b.IMU.Sol.LLHValid = true
	b.IMU.Sol.V = [3]float64{0, 0, 5}
	b.IMU.Sol.VValid = true

	for tick := 1; tick <= 200; tick++ {
		b.IMU.T = float64(tick) * 0.1
		require.NoError(t, b.Step(tick))
	}

	assert.Less(t, b.IMU.Sol.V[2], 1.0, "vertical velocity should have been damped toward zero")
}

func TestVerticalDampingDisabledByDefault(t *testing.T) {
	b := busrt.New("{imu:}", zerolog.Nop())
	require.NoError(t, b.AddPlugin("damping", VerticalDamping()))
	require.NoError(t, b.Init())

	b.IMU.Sol.LLH = [3]float64{0, 0, 100}
	b.IMU.Sol.LLHValid = true
	b.IMU.Sol.V = [3]float64{0, 0, 5}
	b.IMU.Sol.VValid = true

	for tick := 1; tick <= 10; tick++ {
		b.IMU.T = float64(tick) * 0.1
		require.NoError(t, b.Step(tick))
	}

	assert.InDelta(t, 5, b.IMU.Sol.V[2], 0.5, "default damping stdev is effectively disabled")
}
