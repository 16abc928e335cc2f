// Package transport supplies byte sources that feed a hylink.Parser
// (spec.md §6 "any transport with parser-input semantics"): an in-memory
// loopback for tests and cmd/fwsim's --loopback demo mode, and a real
// host serial port for talking to actual UART-to-USB hardware.
package transport

import (
	"context"

	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
)

// ByteSource reads raw bytes until ctx is canceled or the underlying
// source is exhausted/closed, handing every chunk it reads to p.Feed. It
// is the single-producer contract hylink.Parser.Feed requires (spec.md
// §5): exactly one goroutine per ByteSource ever calls p.Feed.
type ByteSource interface {
	Run(ctx context.Context, p *hylink.Parser) error
	Close() error
}
