// Command fwsim demos the scheduler and hylink packages end to end: it
// spins up a handful of tasks on a Scheduler, feeds HYlink frames through
// either an in-memory loopback or a real serial port, and serves
// Prometheus metrics over HTTP — the hosted analogue of flashing the
// original firmware template onto a board and watching its debug UART.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Nowaterisenough/EmbeddedTemplate/config"
	"github.com/Nowaterisenough/EmbeddedTemplate/fwlog"
	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
	"github.com/Nowaterisenough/EmbeddedTemplate/metrics"
	"github.com/Nowaterisenough/EmbeddedTemplate/scheduler"
	"github.com/Nowaterisenough/EmbeddedTemplate/transport"
)

var (
	loopback   bool
	serialDev  string
	serialBaud int
	metricsAddr string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "fwsim",
		Short: "Hosted simulator for the scheduler + HYlink firmware template",
		RunE:  run,
	}
	root.Flags().BoolVar(&loopback, "loopback", true, "use an in-memory byte pipe instead of a real serial port")
	root.Flags().StringVar(&serialDev, "serial-device", "", "serial device path, e.g. /dev/ttyUSB0 (ignored when --loopback)")
	root.Flags().IntVar(&serialBaud, "serial-baud", 115200, "serial baud rate (ignored when --loopback)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("fwsim: %w", err)
	}
	fwlog.Get().SetLevel(level)
	log := fwlog.Get()

	cfg := config.Default()
	sched, err := scheduler.New(cfg)
	if err != nil {
		return fmt.Errorf("fwsim: scheduler: %w", err)
	}

	var decoded int
	link := hylink.NewParser(func(p *hylink.Packet) {
		decoded++
		log.WithFields(fwlog.Fields{
			"device": p.Header.DeviceID.String(),
			"cmd":    p.Header.Cmd.String(),
			"bytes":  len(p.Data),
		}).Info("fwsim: decoded packet")
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(sched, link)); err != nil {
		return fmt.Errorf("fwsim: metrics: %w", err)
	}

	var source transport.ByteSource
	var pipe *transport.Pipe
	if loopback || serialDev == "" {
		pipe = transport.NewPipe()
		source = pipe
	} else {
		s, err := transport.OpenSerial(serialDev, serialBaud, cfg)
		if err != nil {
			return fmt.Errorf("fwsim: %w", err)
		}
		source = s
	}
	defer source.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := source.Run(ctx, link); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("fwsim: transport stopped")
		}
	}()

	if pipe != nil {
		go demoHeartbeats(ctx, pipe)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		log.WithField("addr", metricsAddr).Info("fwsim: serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("fwsim: metrics server")
		}
	}()

	spawnDemoTasks(sched, log)

	go sched.Start()
	<-ctx.Done()

	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// demoHeartbeats periodically writes a marshaled heartbeat frame into the
// loopback pipe so --loopback mode has something to decode without any
// external hardware attached.
func demoHeartbeats(ctx context.Context, pipe *transport.Pipe) {
	var seq uint8
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wire, err := hylink.Packet{
				Header: hylink.Header{
					DeviceID:  hylink.DeviceGroundStation,
					SeqNumber: seq,
					Cmd:       hylink.CmdHeartbeat,
				},
			}.Marshal()
			seq++
			if err != nil {
				continue
			}
			_, _ = pipe.Write(wire)
		}
	}
}

// spawnDemoTasks creates a small fixed set of tasks exercising every
// priority/preemption path the scheduler supports, mirroring the sort of
// smoke-test application firmware a board template ships with.
func spawnDemoTasks(sched *scheduler.Scheduler, log *logrus.Logger) {
	_, err := sched.TaskCreate(func(any) {
		for {
			sched.Delay(1000)
			log.Debug("fwsim: low-priority housekeeping tick")
		}
	}, "housekeeping", 0, nil, 1)
	if err != nil {
		log.WithError(err).Warn("fwsim: could not create housekeeping task")
	}

	_, err = sched.TaskCreate(func(any) {
		for {
			sched.CheckPreempt()
		}
	}, "watchdog-poll", 0, nil, 3)
	if err != nil {
		log.WithError(err).Warn("fwsim: could not create watchdog-poll task")
	}
}
