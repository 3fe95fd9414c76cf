// busmon watches a 6502 bus and prints one line per clock cycle:
//
//	PC: 0000 ADDR: 0000000000000001 0001 DATA: 11101010 EA r
//
// With the gpio backend it runs until killed. The freerun and script
// backends drive a simulated bus and exit once the stimulus is done.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmchacon/busmon/config"
	"github.com/jmchacon/busmon/format"
	"github.com/jmchacon/busmon/gpio"
	"github.com/jmchacon/busmon/irq"
	"github.com/jmchacon/busmon/memory"
	"github.com/jmchacon/busmon/monitor"
	"github.com/jmchacon/busmon/pinmap"
	"github.com/jmchacon/busmon/pins"
	"github.com/jmchacon/busmon/script"
	"github.com/jmchacon/busmon/serial"
	"github.com/jmchacon/busmon/sim"
)

var (
	configFile = flag.String("config", "", "Path to a TOML config file. Built in defaults are used if empty.")
	backend    = flag.String("backend", "", "If set overrides the config backend (gpio, freerun or script)")
	mode       = flag.String("mode", "", "If set overrides the config sampling mode (passive or intercept)")
	output     = flag.String("output", "", "If set overrides the config output (- for stdout or a serial device)")
	scriptFile = flag.String("script", "", "Lua script for the script backend")
	cycles     = flag.Int("cycles", -1, "If >= 0 overrides the number of cycles the freerun backend runs after reset")
	debug      = flag.Bool("debug", false, "If true will log edge anomalies while running")
)

// lines is what a backend has to provide.
type lines interface {
	pins.Reader
	pins.Driver
	irq.Source
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("busmon: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	c := config.Default()
	if *configFile != "" {
		var err error
		if c, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *backend != "" {
		c.Backend = *backend
	}
	if *mode != "" {
		c.Mode = *mode
	}
	if *output != "" {
		c.Output = *output
	}
	if *scriptFile != "" {
		c.Script = *scriptFile
	}
	if *cycles >= 0 {
		c.FreeRun.Cycles = *cycles
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func openOutput(ctx context.Context, c *config.Config) (io.WriteCloser, error) {
	if c.Output == config.STDOUT {
		return nopCloser{os.Stdout}, nil
	}
	return serial.Open(ctx, &serial.PortDef{
		Device:        c.Output,
		Baud:          c.Baud,
		WaitForSerial: c.WaitForSerial,
	})
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func run(ctx context.Context) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	pm, err := c.PinMap()
	if err != nil {
		return err
	}

	// Lines are configured as inputs before anything else so the monitor
	// never fights the processor for the bus.
	var bus lines
	var simBus *sim.Bus
	switch c.Backend {
	case config.BACKEND_GPIO:
		chip, err := gpio.Init(&gpio.ChipDef{
			Root:   c.GPIO.Root,
			Lines:  pm.All(),
			Export: c.GPIO.Export,
		})
		if err != nil {
			return fmt.Errorf("can't initialize GPIO: %v", err)
		}
		defer chip.Close()
		bus = chip
	default:
		simBus = sim.NewBus()
		bus = simBus
	}

	out, err := openOutput(ctx, c)
	if err != nil {
		return err
	}
	defer out.Close()
	p := format.NewPrinter(out)
	sink := monitor.TextSink{P: p}

	var strategy monitor.Strategy
	if c.Mode == config.MODE_INTERCEPT {
		tab, err := c.InterceptTable()
		if err != nil {
			return err
		}
		if strategy, err = monitor.NewIntercept(bus, bus, pm.DataLines(), tab); err != nil {
			return err
		}
	}
	m, err := monitor.Init(&monitor.MonitorDef{
		Reader:   bus,
		Pins:     pm,
		Strategy: strategy,
		Sink:     sink,
		Debug:    *debug,
	})
	if err != nil {
		return fmt.Errorf("can't initialize monitor: %v", err)
	}

	p.Println(format.BANNER)
	p.Println(format.RELEASING)
	if err := m.Attach(bus); err != nil {
		return err
	}
	log.Printf("monitoring %s bus with %s sampling", c.Backend, m.StrategyName())

	sup := monitor.NewSupervisor(m, c.Supervisor.ResetInterval.Duration, c.Supervisor.PollInterval.Duration)
	defer func() {
		st := m.Stats()
		n, werr := p.Err()
		log.Printf("emitted %d, discarded %d, spurious %d, refired %d, rollovers %d, write errors %d (%v)",
			st.Emitted, st.Discarded, st.Spurious, st.Refired, st.Rollovers, n, werr)
	}()
	if simBus == nil {
		return sup.Run(ctx)
	}

	// Simulated backends stop once the stimulus is finished.
	supCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sup.Run(supCtx) }()
	err = drive(ctx, c, pm, simBus)
	cancel()
	<-done
	// The supervisor may not have polled since the last cycle.
	sup.Step()
	return err
}

// drive runs the simulated stimulus to completion.
func drive(ctx context.Context, c *config.Config, pm pinmap.Map, b *sim.Bus) error {
	if c.Backend == config.BACKEND_SCRIPT {
		return script.Run(ctx, &script.ScriptDef{Bus: b, Pins: pm, Path: c.Script})
	}
	mem, err := memory.NewFlat(c.FreeRun.Fill, map[uint16]uint16{memory.RESET_VECTOR: c.FreeRun.ResetVector})
	if err != nil {
		return err
	}
	cpu, err := sim.InitFreeRun(&sim.FreeRunDef{Bus: b, Pins: pm, Memory: mem})
	if err != nil {
		return err
	}
	tick := func(n int) error {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := cpu.Tick(); err != nil {
				return fmt.Errorf("tick error at clock %d: %v", cpu.Clocks(), err)
			}
		}
		return nil
	}
	if err := tick(c.FreeRun.ResetCycles); err != nil {
		return err
	}
	cpu.ReleaseReset()
	return tick(c.FreeRun.Cycles)
}
