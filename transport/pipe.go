package transport

import (
	"context"
	"io"
	"sync"

	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
)

// Pipe is an in-memory, single-producer loopback ByteSource: bytes
// written via Write are delivered to the next Run call's parser. Used by
// tests and by cmd/fwsim's --loopback mode in place of real hardware.
type Pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

// NewPipe constructs an empty, open Pipe.
func NewPipe() *Pipe {
	p := &Pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write appends data to the pipe's internal buffer, waking any blocked
// Run call. Never returns an error unless the pipe is closed.
func (p *Pipe) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.buf = append(p.buf, data...)
	p.cond.Broadcast()
	return len(data), nil
}

// Run reads bytes as they are written and feeds them to p until ctx is
// canceled or the Pipe is closed.
func (pi *Pipe) Run(ctx context.Context, p *hylink.Parser) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pi.mu.Lock()
			pi.cond.Broadcast()
			pi.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	pi.mu.Lock()
	defer pi.mu.Unlock()
	for {
		for len(pi.buf) == 0 && !pi.closed && ctx.Err() == nil {
			pi.cond.Wait()
		}
		if len(pi.buf) > 0 {
			chunk := pi.buf
			pi.buf = nil
			pi.mu.Unlock()
			p.Feed(chunk)
			pi.mu.Lock()
			continue
		}
		if pi.closed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close marks the pipe closed, unblocking any in-progress Run.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}
