// Package ioport implements the text-file sensor/solution I/O plugins: a
// reader for raw IMU measurement logs (with or without a temperature
// column), writers for calibrated sensor readings and the navigation
// solution, and an axis-relabeling step for sensor packages mounted off the
// platform's native longitudinal/vertical/right-wing frame.
package ioport

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// Raw ADIS16505-class scale factors applied to integer sensor counts.
const (
	gyroScale  = 0.00625  // degrees/sec per LSB
	accelScale = 0.002447 // m/s^2 per LSB
	tempScale  = 0.1      // degrees C per LSB
)

func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' })
}

// RawInput returns a plugin that reads gyroscope and accelerometer counts
// from a comma/semicolon-delimited text log (one header line, then one
// record per line: a leading status field followed by X/Y/Z gyro and X/Y/Z
// accelerometer counts), converting them into rad/s and m/s^2.
//
// cfg parameters (top level):
//
//	sensors_in - input file path
func RawInput() busrt.Func {
	var f *os.File
	var scanner *bufio.Scanner

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			path, _ := cfgtok.Value("sensors_in", bus.Cfg)
			var err error
			f, err = os.Open(strings.TrimSpace(path))
			if err != nil {
				bus.Log.Error().Err(err).Str("file", path).Msg("couldn't open raw sensor input file")
				bus.RequestTermination()
				return
			}
			scanner = bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 4096), 1<<20)
			scanner.Scan() // discard header

		case bus.Mode < 0:
			if f != nil {
				f.Close()
			}

		default:
			bus.IMU.WValid = false
			bus.IMU.FValid = false
			if !scanner.Scan() {
				bus.RequestTermination()
				return
			}
			fields := splitFields(scanner.Text())
			if len(fields) < 7 {
				return
			}
			var wRaw, fRaw [3]int
			for i := 0; i < 3; i++ {
				wRaw[i], _ = strconv.Atoi(strings.TrimSpace(fields[1+i]))
				fRaw[i], _ = strconv.Atoi(strings.TrimSpace(fields[4+i]))
			}
			for i := 0; i < 3; i++ {
				bus.IMU.W[i] = float64(wRaw[i]) * gyroScale / bus.IMUConst.Rad2Deg
				bus.IMU.F[i] = float64(fRaw[i]) * accelScale
			}
			bus.IMU.WValid = true
			bus.IMU.FValid = true
		}
	}
}

// RawInputTemp is RawInput with an eighth field: sensor package temperature,
// applied identically to the gyroscope and accelerometer temperature
// channels.
//
// cfg parameters (top level):
//
//	sensors_in - input file path
func RawInputTemp() busrt.Func {
	var f *os.File
	var scanner *bufio.Scanner

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			path, _ := cfgtok.Value("sensors_in", bus.Cfg)
			var err error
			f, err = os.Open(strings.TrimSpace(path))
			if err != nil {
				bus.Log.Error().Err(err).Str("file", path).Msg("couldn't open raw sensor input file")
				bus.RequestTermination()
				return
			}
			scanner = bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 4096), 1<<20)
			scanner.Scan() // discard header

		case bus.Mode < 0:
			if f != nil {
				f.Close()
			}

		default:
			bus.IMU.WValid = false
			bus.IMU.FValid = false
			if !scanner.Scan() {
				bus.RequestTermination()
				return
			}
			fields := splitFields(scanner.Text())
			if len(fields) < 8 {
				return
			}
			var wRaw, fRaw [3]int
			for i := 0; i < 3; i++ {
				wRaw[i], _ = strconv.Atoi(strings.TrimSpace(fields[1+i]))
				fRaw[i], _ = strconv.Atoi(strings.TrimSpace(fields[4+i]))
			}
			tRaw, _ := strconv.Atoi(strings.TrimSpace(fields[7]))
			t := float64(tRaw) * tempScale
			for i := 0; i < 3; i++ {
				bus.IMU.W[i] = float64(wRaw[i]) * gyroScale / bus.IMUConst.Rad2Deg
				bus.IMU.F[i] = float64(fRaw[i]) * accelScale
				bus.IMU.Tw[i] = t
				bus.IMU.Tf[i] = t
			}
			bus.IMU.WValid = true
			bus.IMU.FValid = true
			bus.IMU.TwValid = true
			bus.IMU.TfValid = true
		}
	}
}

// SwitchAxes returns a plugin that remaps gyroscope and accelerometer
// readings from a sensor package's native axes onto the platform's
// longitudinal/vertical/right-wing frame: (x,y,z) -> (x,z,-y).
func SwitchAxes() busrt.Func {
	return func(bus *busrt.Bus) {
		if bus.IMU == nil || bus.Mode <= 0 {
			return
		}
		bus.IMU.W[1], bus.IMU.W[2] = bus.IMU.W[2], -bus.IMU.W[1]
		bus.IMU.F[1], bus.IMU.F[2] = bus.IMU.F[2], -bus.IMU.F[1]
	}
}

// SensorsWriter returns a plugin that logs calibrated gyroscope (deg/s) and
// accelerometer (m/s^2) readings to a text file, one line per tick.
//
// cfg parameters (within the imu group):
//
//	sensors_out - output file path
func SensorsWriter() busrt.Func {
	var f *os.File
	var w *bufio.Writer

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			path, _ := cfgtok.Value("sensors_out", bus.IMU.Cfg)
			var err error
			f, err = os.Create(strings.TrimSpace(path))
			if err != nil {
				bus.Log.Error().Err(err).Str("file", path).Msg("couldn't open sensor output file")
				bus.RequestTermination()
				return
			}
			w = bufio.NewWriter(f)
			fmt.Fprintf(w, " %-12s %-12s %-12s %-12s %-12s %-12s\n",
				"w1[d/s]", "w2[d/s]", "w3[d/s]", "f1[m/s^2]", "f2[m/s^2]", "f3[m/s^2]")

		case bus.Mode < 0:
			if w != nil {
				w.Flush()
			}
			if f != nil {
				f.Close()
			}

		default:
			fmt.Fprintf(w, "%- 12.6f %- 12.6f %- 12.6f %- 12.6f %- 12.6f %- 12.6f\n",
				bus.IMU.W[0]*bus.IMUConst.Rad2Deg, bus.IMU.W[1]*bus.IMUConst.Rad2Deg, bus.IMU.W[2]*bus.IMUConst.Rad2Deg,
				bus.IMU.F[0], bus.IMU.F[1], bus.IMU.F[2])
		}
	}
}

// SolutionWriter returns a plugin that logs the navigation solution (time,
// geodetic position, ENU velocity, attitude in degrees) to a text file, one
// line per tick.
//
// cfg parameters (within the imu group):
//
//	nav_out - output file path
func SolutionWriter() busrt.Func {
	var f *os.File
	var w *bufio.Writer

	return func(bus *busrt.Bus) {
		if bus.IMU == nil {
			return
		}
		switch {
		case bus.Mode == busrt.ModeInit:
			path, _ := cfgtok.Value("nav_out", bus.IMU.Cfg)
			var err error
			f, err = os.Create(strings.TrimSpace(path))
			if err != nil {
				bus.Log.Error().Err(err).Str("file", path).Msg("couldn't open navigation output file")
				bus.RequestTermination()
				return
			}
			w = bufio.NewWriter(f)
			fmt.Fprintf(w, " %-11s %-15s %-15s %-10s %-10s %-10s %-10s %-13s %-12s %-13s\n",
				"time[s]", "lon[d]", "lat[d]", "hei[m]", "Ve[m/s]", "Vn[m/s]", "Vu[m/s]",
				"roll[d]", "pitch[d]", "heading[d]")

		case bus.Mode < 0:
			if w != nil {
				w.Flush()
			}
			if f != nil {
				f.Close()
			}

		default:
			sol := bus.IMU.Sol
			fmt.Fprintf(w, "%- 11.5f %- 15.8f %- 15.8f %- 10.3f %- 10.4f %- 10.4f %- 10.4f %- 13.8f %- 12.8f %- 13.8f\n",
				bus.IMU.T,
				sol.LLH[0]*bus.IMUConst.Rad2Deg, sol.LLH[1]*bus.IMUConst.Rad2Deg, sol.LLH[2],
				sol.V[0], sol.V[1], sol.V[2],
				sol.RPY[0]*bus.IMUConst.Rad2Deg, sol.RPY[1]*bus.IMUConst.Rad2Deg, sol.RPY[2]*bus.IMUConst.Rad2Deg)
		}
	}
}
