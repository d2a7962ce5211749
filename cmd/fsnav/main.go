// Command fsnav runs the strapdown INS bus end to end: it loads a
// brace-delimited configuration file, wires the default plugin roster, and
// drives the bus from init through termination.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
	"github.com/FastSense/fsnav-go/internal/plugins/align"
	"github.com/FastSense/fsnav-go/internal/plugins/attitude"
	"github.com/FastSense/fsnav-go/internal/plugins/calib"
	"github.com/FastSense/fsnav-go/internal/plugins/drift"
	"github.com/FastSense/fsnav-go/internal/plugins/gravity"
	"github.com/FastSense/fsnav-go/internal/plugins/ioport"
	"github.com/FastSense/fsnav-go/internal/plugins/motion"
	"github.com/FastSense/fsnav-go/internal/plugins/sync"
	"github.com/FastSense/fsnav-go/internal/sensor/gnsshook"
	"github.com/FastSense/fsnav-go/internal/sensor/mpu9250"
)

// runOpts holds the command-line-level settings, validated separately from
// the bus's own brace-delimited configuration string.
type runOpts struct {
	ConfigPath string `validate:"required"`
	LogLevel   string `validate:"omitempty,oneof=debug info warn error"`
}

func main() {
	app := &cli.App{
		Name:      "fsnav",
		Version:   fmt.Sprintf("bus-v%d", busrt.BusVersion),
		Compiled:  time.Now(),
		Usage:     "strapdown inertial navigation runtime",
		HelpName:  "fsnav",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "fsnav_ins.cfg",
				Usage:   "path to the brace-delimited bus configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn or error",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fsnav:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	opts := runOpts{ConfigPath: c.String("config"), LogLevel: c.String("log-level")}
	if err := validator.New().Struct(opts); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	raw, err := os.ReadFile(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("reading config %q: %w", opts.ConfigPath, err)
	}
	cfg := string(raw)

	bus := busrt.New(cfg, log)

	imuBody, _ := cfgtok.Group("imu", cfg)
	if err := registerDefaultRoster(bus, imuBody); err != nil {
		return err
	}

	if err := bus.Init(); err != nil {
		return fmt.Errorf("bus init: %w", err)
	}

	tick := 0
	for !bus.Terminating() {
		tick++
		if err := bus.Step(tick); err != nil {
			return fmt.Errorf("bus step %d: %w", tick, err)
		}
	}
	if err := bus.Terminate(false); err != nil {
		return fmt.Errorf("bus terminate: %w", err)
	}

	if name := bus.ExitPluginName(); name != "" {
		log.Info().Str("plugin", name).Int("ticks", tick).Msg("run terminated")
	} else {
		log.Info().Int("ticks", tick).Msg("run terminated by host")
	}
	return nil
}

// registerDefaultRoster wires the canonical sync -> source -> calibration ->
// drift -> alignment -> gravity -> attitude -> motion -> damping -> I/O
// pipeline, per spec.md's data-flow description. sync is registered before
// the sensor source so it clears the previous tick's WValid/FValid before
// the reader raises them fresh, and drift runs immediately after
// calibration so the bias subtraction reaches IMU.W before attitude/motion
// consume it. The sensor source is selected by the top-level sensors_in
// setting; alignment method and attitude integrator by the imu group's
// configuration.
func registerDefaultRoster(bus *busrt.Bus, imuBody string) error {
	add := bus.AddPlugin

	if err := add("sync", sync.Step()); err != nil {
		return err
	}

	source, _ := cfgtok.Value("sensors_in", bus.Cfg)
	switch source {
	case "hw:i2c":
		if err := add("mpu9250", mpu9250.Plugin()); err != nil {
			return err
		}
	default:
		if _, ok := cfgtok.Value("sensors_in_temp", bus.Cfg); ok {
			if err := add("raw_input", ioport.RawInputTemp()); err != nil {
				return err
			}
		} else if err := add("raw_input", ioport.RawInput()); err != nil {
			return err
		}
	}

	if v, ok := cfgtok.Value("switch_axes", imuBody); ok && (v == "1" || v == "true") {
		if err := add("switch_axes", ioport.SwitchAxes()); err != nil {
			return err
		}
	}

	if v, ok := cfgtok.Value("calibration", imuBody); ok && v == "temperature" {
		if err := add("calib", calib.Temperature()); err != nil {
			return err
		}
	} else if err := add("calib", calib.Static()); err != nil {
		return err
	}

	if err := add("drift", drift.Compensate()); err != nil {
		return err
	}

	switch alignment, _ := cfgtok.Value("alignment_method", imuBody); alignment {
	case "leveling":
		if err := add("align", align.Leveling()); err != nil {
			return err
		}
	case "preset":
		if err := add("align", align.ConstantPreset()); err != nil {
			return err
		}
	default:
		if err := add("align", align.Gyrocompass()); err != nil {
			return err
		}
	}

	if v, ok := cfgtok.Value("gravity_model", imuBody); ok && v == "constant" {
		if err := add("gravity", gravity.Constant()); err != nil {
			return err
		}
	} else if err := add("gravity", gravity.Normal()); err != nil {
		return err
	}

	madgwickRate, _ := cfgtok.Value("madgwick_feedback_rate", imuBody)
	if rate, err := strconv.ParseFloat(strings.TrimSpace(madgwickRate), 64); err == nil && rate != 0 {
		if err := add("attitude", attitude.Madgwick()); err != nil {
			return err
		}
	} else if err := add("attitude", attitude.Rodrigues()); err != nil {
		return err
	}

	if err := add("motion", motion.Euler()); err != nil {
		return err
	}
	if err := add("damping", motion.VerticalDamping()); err != nil {
		return err
	}

	for i := range cfgtok.GroupAll("gnss", bus.Cfg) {
		if err := add(fmt.Sprintf("gnss_hook_%d", i), gnsshook.Plugin(i)); err != nil {
			return err
		}
	}

	if _, ok := cfgtok.Value("sensors_out", imuBody); ok {
		if err := add("sensors_out", ioport.SensorsWriter()); err != nil {
			return err
		}
	}
	if _, ok := cfgtok.Value("nav_out", imuBody); ok {
		if err := add("nav_out", ioport.SolutionWriter()); err != nil {
			return err
		}
	}

	return nil
}
