// Package gnsshook attaches a serial-connected GNSS receiver to the bus: it
// only appends raw undecoded bytes to navdata.GNSS.RawInbox, leaving
// constellation-specific message decoding to an external consumer, per the
// bus's minimal GNSS attachment point.
package gnsshook

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/tarm/goserial"

	"github.com/FastSense/fsnav-go/internal/busrt"
	"github.com/FastSense/fsnav-go/internal/cfgtok"
)

// Hook reads raw bytes from a serial port in the background and buffers
// them for the owning plugin to drain into navdata.GNSS.RawInbox.
type Hook struct {
	port io.ReadWriteCloser

	mu  sync.Mutex
	buf []byte
	err error

	stop chan struct{}
}

// Open opens the named serial port at baud and starts a background reader.
func Open(name string, baud int) (*Hook, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud, ReadTimeout: 200 * time.Millisecond})
	if err != nil {
		return nil, err
	}
	h := &Hook{port: port, stop: make(chan struct{})}
	go h.read()
	return h, nil
}

func (h *Hook) read() {
	chunk := make([]byte, 512)
	for {
		select {
		case <-h.stop:
			return
		default:
		}
		n, err := h.port.Read(chunk)
		if n > 0 {
			h.mu.Lock()
			h.buf = append(h.buf, chunk[:n]...)
			h.mu.Unlock()
		}
		if err != nil && err != io.EOF {
			h.mu.Lock()
			h.err = err
			h.mu.Unlock()
		}
	}
}

// Drain returns every byte buffered since the last call and clears the
// buffer, along with the most recent read error (if any, non-fatal: a
// serial read timeout is expected whenever the receiver has nothing new to
// report).
func (h *Hook) Drain() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := h.buf
	h.buf = nil
	err := h.err
	h.err = nil
	return b, err
}

// Close stops the background reader and closes the serial port.
func (h *Hook) Close() error {
	close(h.stop)
	return h.port.Close()
}

// Plugin returns a bus plugin appending every byte received on the serial
// port named by the gnss group's "port" cfg token (baud rate via "baud",
// default 9600) to bus.GNSS[index].RawInbox, once per tick.
//
// cfg parameters (within the gnss group):
//
//	port - serial device path, e.g. /dev/ttyUSB0
//	baud - baud rate, default 9600
func Plugin(index int) busrt.Func {
	var h *Hook

	return func(bus *busrt.Bus) {
		if index >= len(bus.GNSS) {
			return
		}
		g := bus.GNSS[index]
		switch {
		case bus.Mode == busrt.ModeInit:
			port, _ := cfgtok.Value("port", g.Cfg)
			baud := 9600
			if v, ok := cfgtok.Value("baud", g.Cfg); ok {
				if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
					baud = parsed
				}
			}
			var err error
			h, err = Open(strings.TrimSpace(port), baud)
			if err != nil {
				bus.Log.Error().Err(err).Str("port", port).Msg("couldn't open GNSS serial port")
				h = nil
				return
			}

		case bus.Mode < 0:
			if h != nil {
				h.Close()
			}

		default:
			if h == nil {
				return
			}
			b, err := h.Drain()
			if err != nil {
				bus.Log.Warn().Err(err).Msg("GNSS serial read error")
			}
			if len(b) > 0 {
				g.RawInbox = append(g.RawInbox, b...)
			}
		}
	}
}
