// Package gpio implements the line interfaces on top of the Linux sysfs
// GPIO interface (/sys/class/gpio). Each line is exported, configured as an
// input and read with pread on its value file. Interrupts are delivered by
// a goroutine per attached line which waits for POLLPRI on the value file
// after setting edge to "both".
//
// NOTE: sysfs only reports that the value changed. If the line toggles twice
//       before the watcher reads it both edges collapse into one handler
//       call with the current level. Run the observed clock slow enough.
package gpio

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/jmchacon/busmon/irq"
	"github.com/jmchacon/busmon/pins"
)

// DEFAULT_ROOT is where the kernel exposes sysfs GPIO.
const DEFAULT_ROOT = "/sys/class/gpio"

// How long a watcher blocks in poll before checking for Close.
const pollTimeoutMs = 100

var (
	_ = pins.Reader(&Chip{})
	_ = pins.Driver(&Chip{})
	_ = irq.Source(&Chip{})
)

type line struct {
	id      pins.ID
	value   *os.File
	output  bool
	handler irq.Handler
}

// Chip is a set of sysfs GPIO lines.
type Chip struct {
	root     string
	logger   *log.Logger
	mu       sync.Mutex // Guards lines and exported.
	lines    map[pins.ID]*line
	exported []pins.ID
	done     chan struct{}
	wg       sync.WaitGroup
}

// ChipDef defines the lines a Chip manages.
type ChipDef struct {
	// Root is the sysfs GPIO directory. If empty DEFAULT_ROOT is used.
	Root string
	// Lines lists every GPIO to configure as an input.
	Lines []pins.ID
	// Export if true writes each line to Root/export when its directory doesn't exist yet.
	Export bool
	// Logger receives watcher errors. If nil log.Default() is used.
	Logger *log.Logger
}

// Init exports (optionally) and configures every line in def as an input.
func Init(def *ChipDef) (*Chip, error) {
	c := &Chip{
		root:   def.Root,
		logger: def.Logger,
		lines:  make(map[pins.ID]*line),
		done:   make(chan struct{}),
	}
	if c.root == "" {
		c.root = DEFAULT_ROOT
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	for _, id := range def.Lines {
		if err := c.setup(id, def.Export); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Chip) dir(id pins.ID) string {
	return filepath.Join(c.root, "gpio"+strconv.Itoa(int(id)))
}

func (c *Chip) setup(id pins.ID, export bool) error {
	if _, ok := c.lines[id]; ok {
		return fmt.Errorf("gpio %d listed twice", id)
	}
	if _, err := os.Stat(c.dir(id)); err != nil {
		if !export || !os.IsNotExist(err) {
			return fmt.Errorf("can't find gpio %d: %v", id, err)
		}
		if err := os.WriteFile(filepath.Join(c.root, "export"), []byte(strconv.Itoa(int(id))), 0); err != nil {
			return fmt.Errorf("can't export gpio %d: %v", id, err)
		}
		c.exported = append(c.exported, id)
	}
	if err := c.attr(id, "direction", "in"); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(c.dir(id), "value"), os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("can't open gpio %d value: %v", id, err)
	}
	c.lines[id] = &line{id: id, value: f}
	return nil
}

// attr writes val to one of the line's attribute files.
func (c *Chip) attr(id pins.ID, name, val string) error {
	if err := os.WriteFile(filepath.Join(c.dir(id), name), []byte(val), 0); err != nil {
		return fmt.Errorf("can't set gpio %d %s to %q: %v", id, name, val, err)
	}
	return nil
}

func (c *Chip) get(id pins.ID) *line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[id]
}

func read(l *line) (bool, error) {
	var b [1]byte
	n, err := unix.Pread(int(l.value.Fd()), b[:], 0)
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, fmt.Errorf("short read on gpio %d", l.id)
	}
	return b[0] == '1', nil
}

// Level implements pins.Reader. Unknown lines and read errors read as low.
func (c *Chip) Level(id pins.ID) bool {
	l := c.get(id)
	if l == nil {
		return false
	}
	v, err := read(l)
	if err != nil {
		return false
	}
	return v
}

// Drive implements pins.Driver.
func (c *Chip) Drive(id pins.ID, level bool) {
	l := c.get(id)
	if l == nil {
		return
	}
	if !l.output {
		// "high"/"low" switch to output with the value already set so there's no glitch.
		val := "low"
		if level {
			val = "high"
		}
		if err := c.attr(id, "direction", val); err != nil {
			c.logger.Printf("%v", err)
			return
		}
		l.output = true
		return
	}
	val := []byte{'0'}
	if level {
		val[0] = '1'
	}
	if _, err := unix.Pwrite(int(l.value.Fd()), val, 0); err != nil {
		c.logger.Printf("can't write gpio %d: %v", id, err)
	}
}

// Release implements pins.Driver.
func (c *Chip) Release(id pins.ID) {
	l := c.get(id)
	if l == nil || !l.output {
		return
	}
	if err := c.attr(id, "direction", "in"); err != nil {
		c.logger.Printf("%v", err)
		return
	}
	l.output = false
}

// Attach implements irq.Source.
func (c *Chip) Attach(id pins.ID, h irq.Handler) error {
	c.mu.Lock()
	l := c.lines[id]
	if l == nil {
		c.mu.Unlock()
		return fmt.Errorf("gpio %d isn't configured", id)
	}
	if l.handler != nil {
		c.mu.Unlock()
		return fmt.Errorf("gpio %d already has a handler", id)
	}
	l.handler = h
	c.mu.Unlock()

	if err := c.attr(id, "edge", "both"); err != nil {
		return err
	}
	// The first read clears any stale event.
	if _, err := read(l); err != nil {
		return fmt.Errorf("can't read gpio %d: %v", id, err)
	}
	c.wg.Add(1)
	go c.watch(l)
	return nil
}

func (c *Chip) watch(l *line) {
	defer c.wg.Done()
	fds := []unix.PollFd{{Fd: int32(l.value.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	for {
		select {
		case <-c.done:
			return
		default:
		}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			c.logger.Printf("poll on gpio %d failed, stopping watcher: %v", l.id, err)
			return
		}
		if n == 0 {
			continue
		}
		c.dispatch(l, fds[0].Revents)
	}
}

// dispatch calls the line's handler with its current level if revents
// reports an edge (POLLPRI). It returns whether the handler ran.
func (c *Chip) dispatch(l *line, revents int16) bool {
	if revents&unix.POLLPRI == 0 {
		return false
	}
	v, err := read(l)
	if err != nil {
		c.logger.Printf("can't read gpio %d: %v", l.id, err)
		return false
	}
	l.handler(v)
	return true
}

// Close stops every watcher, closes the value files and unexports anything Init exported.
func (c *Chip) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret error
	for _, l := range c.lines {
		if err := l.value.Close(); err != nil && ret == nil {
			ret = err
		}
	}
	for _, id := range c.exported {
		if err := os.WriteFile(filepath.Join(c.root, "unexport"), []byte(strconv.Itoa(int(id))), 0); err != nil && ret == nil {
			ret = fmt.Errorf("can't unexport gpio %d: %v", id, err)
		}
	}
	return ret
}
