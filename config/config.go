// Package config loads the monitor configuration from a TOML file.
//
//	backend = "gpio"          # gpio, freerun or script
//	mode = "passive"          # passive or intercept
//	output = "/dev/ttyUSB0"   # "-" for stdout
//	baud = 115200
//	wait_for_serial = true
//	pins_spec = "clk=2, rw=3, res=18, a=22..52/2, d=23..37/2"
//
//	[supervisor]
//	reset_interval = "100ms"
//	poll_interval = "1ms"
//
//	[intercept]
//	fill = 0xEA
//	[[intercept.override]]
//	address = 0xFFFC
//	value = 0x00
//
//	[gpio]
//	root = "/sys/class/gpio"
//	export = true
//
//	[freerun]
//	cycles = 100
//	reset_cycles = 8
//	reset_vector = 0x1FFE
//	fill = 0xEA
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/jmchacon/busmon/memory"
	"github.com/jmchacon/busmon/pinmap"
	"github.com/jmchacon/busmon/pins"
)

const (
	BACKEND_GPIO    = "gpio"
	BACKEND_FREERUN = "freerun"
	BACKEND_SCRIPT  = "script"

	MODE_PASSIVE   = "passive"
	MODE_INTERCEPT = "intercept"

	STDOUT = "-"
)

// Duration is a time.Duration read from a string such as "100ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Pins is the [pins] table. Any field left out keeps the Mega2560 wiring.
type Pins struct {
	Clock   *int  `toml:"clock"`
	RW      *int  `toml:"rw"`
	Reset   *int  `toml:"reset"`
	Address []int `toml:"address"`
	Data    []int `toml:"data"`
}

type Supervisor struct {
	ResetInterval Duration `toml:"reset_interval"`
	PollInterval  Duration `toml:"poll_interval"`
}

type Override struct {
	Address uint16 `toml:"address"`
	Value   uint8  `toml:"value"`
}

type Intercept struct {
	Fill     uint8      `toml:"fill"`
	Override []Override `toml:"override"`
}

type GPIO struct {
	Root   string `toml:"root"`
	Export bool   `toml:"export"`
}

type FreeRun struct {
	Cycles      int    `toml:"cycles"`
	ResetCycles int    `toml:"reset_cycles"`
	ResetVector uint16 `toml:"reset_vector"`
	Fill        uint8  `toml:"fill"`
}

// Config is the whole file.
type Config struct {
	Backend       string     `toml:"backend"`
	Mode          string     `toml:"mode"`
	Output        string     `toml:"output"`
	Baud          int        `toml:"baud"`
	WaitForSerial bool       `toml:"wait_for_serial"`
	Script        string     `toml:"script"`
	PinsSpec      string     `toml:"pins_spec"`
	Pins          Pins       `toml:"pins"`
	Supervisor    Supervisor `toml:"supervisor"`
	Intercept     Intercept  `toml:"intercept"`
	GPIO          GPIO       `toml:"gpio"`
	FreeRun       FreeRun    `toml:"freerun"`
}

// Default returns the configuration used when no file is given: a passive
// monitor on sysfs GPIO with the Mega2560 numbering writing to stdout.
func Default() *Config {
	return &Config{
		Backend: BACKEND_GPIO,
		Mode:    MODE_PASSIVE,
		Output:  STDOUT,
		Baud:    115200,
		Supervisor: Supervisor{
			ResetInterval: Duration{100 * time.Millisecond},
			PollInterval:  Duration{time.Millisecond},
		},
		Intercept: Intercept{
			Fill: memory.NOP,
			Override: []Override{
				{Address: memory.RESET_VECTOR, Value: 0x00},
				{Address: memory.RESET_VECTOR + 1, Value: 0x00},
			},
		},
		GPIO: GPIO{
			Root:   "/sys/class/gpio",
			Export: true,
		},
		FreeRun: FreeRun{
			Cycles:      64,
			ResetCycles: 8,
			ResetVector: 0x1FFE,
			Fill:        memory.NOP,
		},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "can't load %s", path)
	}
	if u := md.Undecoded(); len(u) > 0 {
		return nil, errors.Errorf("%s: unknown keys %v", path, u)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

// Validate checks the enumerated fields and the pin map.
func (c *Config) Validate() error {
	switch c.Backend {
	case BACKEND_GPIO, BACKEND_FREERUN:
	case BACKEND_SCRIPT:
		if c.Script == "" {
			return errors.New("script backend needs a script")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Mode {
	case MODE_PASSIVE, MODE_INTERCEPT:
	default:
		return errors.Errorf("unknown mode %q", c.Mode)
	}
	if c.Output == "" {
		return errors.New("output can't be empty (use - for stdout)")
	}
	if c.Baud <= 0 {
		return errors.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.Supervisor.ResetInterval.Duration <= 0 || c.Supervisor.PollInterval.Duration <= 0 {
		return errors.New("supervisor intervals must be positive")
	}
	if c.FreeRun.Cycles < 0 || c.FreeRun.ResetCycles < 0 {
		return errors.New("freerun cycle counts can't be negative")
	}
	if _, err := c.PinMap(); err != nil {
		return err
	}
	return nil
}

// PinMap returns the wiring: Mega2560, then the [pins] table, then pins_spec.
func (c *Config) PinMap() (pinmap.Map, error) {
	m := pinmap.Mega2560()
	p := c.Pins
	if p.Clock != nil {
		m.Clock = pins.ID(*p.Clock)
	}
	if p.RW != nil {
		m.RW = pins.ID(*p.RW)
	}
	if p.Reset != nil {
		m.Reset = pins.ID(*p.Reset)
	}
	if p.Address != nil {
		if got, want := len(p.Address), pinmap.ADDRESS_LINES; got != want {
			return pinmap.Map{}, errors.Errorf("pins.address has %d lines, want %d", got, want)
		}
		for i, v := range p.Address {
			m.Address[i] = pins.ID(v)
		}
	}
	if p.Data != nil {
		if got, want := len(p.Data), pinmap.DATA_LINES; got != want {
			return pinmap.Map{}, errors.Errorf("pins.data has %d lines, want %d", got, want)
		}
		for i, v := range p.Data {
			m.Data[i] = pins.ID(v)
		}
	}
	return pinmap.Parse(c.PinsSpec, m)
}

// InterceptTable returns the substitution table for intercept mode.
func (c *Config) InterceptTable() (memory.Bank, error) {
	t, err := memory.NewFlat(c.Intercept.Fill, nil)
	if err != nil {
		return nil, errors.Wrap(err, "can't build intercept table")
	}
	for _, o := range c.Intercept.Override {
		t.Write(o.Address, o.Value)
	}
	return t, nil
}
