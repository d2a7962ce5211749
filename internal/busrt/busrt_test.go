package busrt

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(cfg string) *Bus {
	return New(cfg, zerolog.Nop())
}

func TestInitParsesSubsystemGroups(t *testing.T) {
	cfg := "{imu: freq = 100}{air: alt = 1}{ref: x = 2}{gnss: port = /dev/ttyUSB0}{gnss: port = /dev/ttyUSB1}"
	b := newTestBus(cfg)
	require.NoError(t, b.Init())

	require.NotNil(t, b.IMU)
	assert.Equal(t, "freq = 100", b.IMU.Cfg)
	require.NotNil(t, b.Air)
	assert.Equal(t, "alt = 1", b.Air.Cfg)
	require.NotNil(t, b.Ref)
	assert.Equal(t, "x = 2", b.Ref.Cfg)
	require.Len(t, b.GNSS, 2)
	assert.Equal(t, "port = /dev/ttyUSB0", b.GNSS[0].Cfg)
	assert.Equal(t, "port = /dev/ttyUSB1", b.GNSS[1].Cfg)
}

func TestInitLeavesMissingGroupsNil(t *testing.T) {
	b := newTestBus("{imu: freq = 100}")
	require.NoError(t, b.Init())
	assert.NotNil(t, b.IMU)
	assert.Nil(t, b.Air)
	assert.Nil(t, b.Ref)
	assert.Nil(t, b.GNSS)
}

func TestInitRunsPluginsOnceInRegistrationOrder(t *testing.T) {
	b := newTestBus("{imu: freq = 100}")
	var order []string
	require.NoError(t, b.AddPlugin("a", func(bus *Bus) {
		if bus.Mode == ModeInit {
			order = append(order, "a")
		}
	}))
	require.NoError(t, b.AddPlugin("b", func(bus *Bus) {
		if bus.Mode == ModeInit {
			order = append(order, "b")
		}
	}))
	require.NoError(t, b.Init())
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestScheduleCadence(t *testing.T) {
	// a plugin scheduled with cycle=3, shift=1 should fire on ticks where
	// (tick-1) mod 3 == 1, i.e. ticks 2, 5, 8, ...
	b := newTestBus("")
	var fires []int
	require.NoError(t, b.SchedulePlugin("p", func(bus *Bus) {
		if bus.Mode > 0 {
			fires = append(fires, bus.Mode)
		}
	}, 3, 1))
	require.NoError(t, b.Init())
	for tick := 1; tick <= 9; tick++ {
		require.NoError(t, b.Step(tick))
	}
	assert.Equal(t, []int{2, 5, 8}, fires)
}

func TestSuspendResume(t *testing.T) {
	b := newTestBus("")
	n := 0
	require.NoError(t, b.AddPlugin("p", func(bus *Bus) {
		if bus.Mode > 0 {
			n++
		}
	}))
	require.NoError(t, b.Init())
	require.NoError(t, b.Step(1))
	assert.Equal(t, 1, n)

	assert.True(t, b.SuspendPlugin("p"))
	require.NoError(t, b.Step(2))
	assert.Equal(t, 1, n, "suspended plugin must not run")

	assert.True(t, b.ResumePlugin("p"))
	require.NoError(t, b.Step(3))
	assert.Equal(t, 2, n)
}

func TestRequestTerminationStopsRemainingPluginsThatTick(t *testing.T) {
	b := newTestBus("")
	var ran []string
	require.NoError(t, b.AddPlugin("first", func(bus *Bus) {
		if bus.Mode > 0 {
			ran = append(ran, "first")
			bus.RequestTermination()
		}
	}))
	require.NoError(t, b.AddPlugin("second", func(bus *Bus) {
		if bus.Mode > 0 {
			ran = append(ran, "second")
		}
	}))
	require.NoError(t, b.Init())
	require.NoError(t, b.Step(1))

	assert.Equal(t, []string{"first"}, ran)
	assert.True(t, b.Terminating())
	assert.Equal(t, "first", b.ExitPluginName())
}

func TestReplacePlugin(t *testing.T) {
	b := newTestBus("")
	require.NoError(t, b.AddPlugin("p", func(bus *Bus) {}))
	called := false
	assert.True(t, b.ReplacePlugin("p", "q", func(bus *Bus) { called = true }))
	require.NoError(t, b.Init())
	require.NoError(t, b.Step(1))
	assert.True(t, called)
	assert.Equal(t, "", b.ExitPluginName())
}

func TestInvalidScheduleRejected(t *testing.T) {
	b := newTestBus("")
	assert.Error(t, b.SchedulePlugin("p", func(bus *Bus) {}, 0, 0))
	assert.Error(t, b.SchedulePlugin("p", func(bus *Bus) {}, 2, 2))
}
