package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3"

	"github.com/Nowaterisenough/EmbeddedTemplate/config"
	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
)

// Serial is a real host serial port ByteSource, wrapping
// github.com/tarm/serial for the I/O and satisfying conn.Resource so it
// composes with the rest of the periph ecosystem's lifecycle conventions
// (String, Halt) the way a periph driver for a UART-attached peripheral
// would. Stands in for the board's UART+DMA peripheral in cmd/fwsim's
// hosted demo.
type Serial struct {
	port    *serial.Port
	name    string
	bufSize int
}

var _ conn.Resource = (*Serial)(nil)
var _ ByteSource = (*Serial)(nil)

// OpenSerial opens device at baud and wraps it as a ByteSource. The read
// chunk size is cfg.MaxPayloadBytes — the one place that knob governs a
// deployment choice rather than a wire-format fact (SPEC_FULL.md §6).
func OpenSerial(device string, baud int, cfg config.Config) (*Serial, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("transport: open serial %s: %w", device, err)
	}
	bufSize := cfg.MaxPayloadBytes
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Serial{port: port, name: device, bufSize: bufSize}, nil
}

// String satisfies conn.Resource.
func (s *Serial) String() string { return fmt.Sprintf("serial(%s)", s.name) }

// Halt satisfies conn.Resource; it is a synonym for Close, since a serial
// port has no distinct "stop but keep open" state.
func (s *Serial) Halt() error { return s.Close() }

// Close closes the underlying serial port.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

// Run reads from the serial port in a loop, feeding every chunk to p,
// until ctx is canceled or the port returns an error (typically because
// Close was called concurrently).
func (s *Serial) Run(ctx context.Context, p *hylink.Parser) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.port.Close()
		case <-done:
		}
	}()

	buf := make([]byte, s.bufSize)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			p.Feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("transport: serial read: %w", err)
		}
	}
}
