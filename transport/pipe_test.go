package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
)

func TestPipeDeliversWrittenBytesToParser(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	wire, err := hylink.Packet{
		Header: hylink.Header{DeviceID: hylink.DeviceGroundStation, Cmd: hylink.CmdHeartbeat},
	}.Marshal()
	require.NoError(t, err)

	got := make(chan *hylink.Packet, 1)
	parser := hylink.NewParser(func(pkt *hylink.Packet) { got <- pkt })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- pipe.Run(ctx, parser) }()

	_, err = pipe.Write(wire)
	require.NoError(t, err)

	select {
	case pkt := <-got:
		assert.Equal(t, hylink.CmdHeartbeat, pkt.Header.Cmd)
	case <-time.After(time.Second):
		t.Fatal("packet never delivered through pipe")
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestPipeCloseUnblocksRun(t *testing.T) {
	pipe := NewPipe()
	parser := hylink.NewParser(nil)

	runErr := make(chan error, 1)
	go func() { runErr <- pipe.Run(context.Background(), parser) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pipe.Close())

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
