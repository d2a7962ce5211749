// Package busrt implements the cooperative, single-threaded plugin bus and
// scheduler at the core of the navigation runtime: a fixed list of plugin
// functions executed in order once per tick, each plugin free to inspect or
// mutate the shared navigation state, with per-plugin cycle/shift scheduling
// and a shared termination signal.
package busrt

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/FastSense/fsnav-go/internal/cfgtok"
	"github.com/FastSense/fsnav-go/internal/navdata"
)

// Mode values carried in Bus.Mode.
const (
	ModeInit      = 0 // plugins run their one-time initialization
	ModeTerminate = -1 // plugins run their one-time cleanup; any mode < 0 does
)

// Func is a plugin step function. It receives the bus so it can read and
// mutate shared navigation state; it inspects bus.Mode to tell init
// (mode == 0), step (mode > 0) and terminate (mode < 0) apart.
type Func func(bus *Bus)

// entry is one scheduled occurrence of a plugin in the execution list.
type entry struct {
	name      string
	fn        Func
	cycle     int // tick period; 1 means every tick
	shift     int // tick-within-cycle offset to run at
	tick      int // non-suspended Step passes since this entry was added or rescheduled
	suspended bool
}

// Bus is the shared navigation core: scheduler state plus the navigation
// data structures every plugin operates on.
type Bus struct {
	Ver int // bus version, bumped whenever the plugin-facing contract changes

	Cfg string // full configuration string

	IMUConst navdata.IMUConst
	IMU      *navdata.IMU
	GNSS     []*navdata.GNSS
	Air      *navdata.Air
	Ref      *navdata.Ref

	T    float64 // system time
	Mode int     // 0 init, <0 terminate, >0 step
	Sol  navdata.Solution

	Log zerolog.Logger

	plugins         []*entry
	currentPluginID int
	exitPluginID    int // index of the plugin that requested termination, -1 if none
	hostTerminated  bool
}

// BusVersion is the current contract version exposed to plugins.
const BusVersion = 11

// New creates a bus with the given configuration string and logger.
func New(cfg string, log zerolog.Logger) *Bus {
	return &Bus{
		Ver:          BusVersion,
		Cfg:          cfg,
		IMUConst:     navdata.DefaultIMUConst(),
		Log:          log,
		exitPluginID: -1,
	}
}

// AddPlugin appends fn to the execution list, run once every tick.
func (b *Bus) AddPlugin(name string, fn Func) error {
	return b.SchedulePlugin(name, fn, 1, 0)
}

// SchedulePlugin appends fn to the execution list, to run every cycle ticks,
// offset by shift within the cycle.
func (b *Bus) SchedulePlugin(name string, fn Func, cycle, shift int) error {
	if cycle <= 0 {
		return fmt.Errorf("busrt: plugin %q: cycle must be positive, got %d", name, cycle)
	}
	if shift < 0 || shift >= cycle {
		return fmt.Errorf("busrt: plugin %q: shift %d out of range [0,%d)", name, shift, cycle)
	}
	b.plugins = append(b.plugins, &entry{name: name, fn: fn, cycle: cycle, shift: shift})
	return nil
}

// RemovePlugin removes every scheduled occurrence of the named plugin.
func (b *Bus) RemovePlugin(name string) bool {
	found := false
	kept := b.plugins[:0]
	for _, e := range b.plugins {
		if e.name == name {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	b.plugins = kept
	return found
}

// ReplacePlugin substitutes newFn (and optionally a new name) for every
// occurrence of oldName, preserving each occurrence's schedule.
func (b *Bus) ReplacePlugin(oldName, newName string, newFn Func) bool {
	found := false
	for _, e := range b.plugins {
		if e.name == oldName {
			e.name = newName
			e.fn = newFn
			found = true
		}
	}
	return found
}

// ReschedulePlugin updates cycle/shift for every occurrence of name.
func (b *Bus) ReschedulePlugin(name string, cycle, shift int) bool {
	found := false
	for _, e := range b.plugins {
		if e.name == name {
			e.cycle = cycle
			e.shift = shift
			e.tick = 0
			found = true
		}
	}
	return found
}

// SuspendPlugin marks every occurrence of name as suspended: it stays in the
// execution list (preserving ordering for when it's resumed) but is skipped.
func (b *Bus) SuspendPlugin(name string) bool {
	found := false
	for _, e := range b.plugins {
		if e.name == name {
			e.suspended = true
			found = true
		}
	}
	return found
}

// ResumePlugin un-suspends every occurrence of name.
func (b *Bus) ResumePlugin(name string) bool {
	found := false
	for _, e := range b.plugins {
		if e.name == name {
			e.suspended = false
			found = true
		}
	}
	return found
}

// parseSubsystems parses b.Cfg into its brace-delimited subsystem groups,
// creating IMU/GNSS/air/ref structures when the corresponding sections are
// present. GNSS may be declared more than once, one group per receiver.
func (b *Bus) parseSubsystems() {
	if body, ok := cfgtok.Group("imu", b.Cfg); ok {
		b.IMU = &navdata.IMU{Cfg: body}
	}
	if body, ok := cfgtok.Group("air", b.Cfg); ok {
		b.Air = &navdata.Air{Cfg: body}
	}
	if body, ok := cfgtok.Group("ref", b.Cfg); ok {
		b.Ref = &navdata.Ref{Cfg: body}
	}
	for _, body := range cfgtok.GroupAll("gnss", b.Cfg) {
		b.GNSS = append(b.GNSS, &navdata.GNSS{Cfg: body})
	}
}

// Init parses the bus configuration into its subsystem groups, then runs
// every plugin once in mode 0 (initialization order == registration order).
func (b *Bus) Init() error {
	b.parseSubsystems()
	b.Mode = ModeInit
	for i, e := range b.plugins {
		b.currentPluginID = i
		e.fn(b)
	}
	return nil
}

// Step advances the bus by one tick: mode is set to the current tick count
// (starting at 1) and every plugin whose cycle/shift matches this tick, and
// which is not suspended, is executed in registration order. Any plugin may
// request termination by calling RequestTermination mid-step; once requested, no
// further plugins run for that tick.
func (b *Bus) Step(tick int) error {
	if b.hostTerminated {
		return fmt.Errorf("busrt: step called after termination")
	}
	b.Mode = tick
	for i, e := range b.plugins {
		if b.exitPluginID >= 0 {
			break
		}
		if e.suspended {
			continue
		}
		if e.tick%e.cycle != e.shift {
			e.tick++
			continue
		}
		e.tick++
		b.currentPluginID = i
		e.fn(b)
	}
	return nil
}

// RequestTermination is called by a plugin (from within its own Func) to
// signal the scheduler that the run should end. The bus records which
// plugin asked, then Terminate drives the mode < 0 cleanup pass.
func (b *Bus) RequestTermination() {
	if b.exitPluginID < 0 {
		b.exitPluginID = b.currentPluginID
	}
}

// ExitPluginName returns the name of the plugin that requested termination,
// or "" if termination was host-initiated or hasn't happened yet.
func (b *Bus) ExitPluginName() string {
	if b.exitPluginID < 0 || b.exitPluginID >= len(b.plugins) {
		return ""
	}
	return b.plugins[b.exitPluginID].name
}

// Terminate marks the bus as terminated when hostInitiated is true, then runs
// every plugin once in a negative mode (registration order).
func (b *Bus) Terminate(hostInitiated bool) error {
	b.hostTerminated = hostInitiated
	b.Mode = ModeTerminate
	for i, e := range b.plugins {
		b.currentPluginID = i
		e.fn(b)
	}
	return nil
}

// Terminating reports whether termination has been requested by a plugin or
// the host.
func (b *Bus) Terminating() bool {
	return b.exitPluginID >= 0 || b.hostTerminated
}
