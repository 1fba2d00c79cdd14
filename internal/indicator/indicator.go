// Package indicator drives optional status LED.
package indicator

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/gpio-cdev-go"
	"github.com/temoto/wxlink/helpers/atomic_clock"
	"github.com/temoto/wxlink/log2"
)

const BlinkHalfPeriod = 250 * time.Millisecond

type Mode uint8

const (
	ModeOff Mode = iota
	ModeBlink
	ModeOn
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeBlink:
		return "blink"
	case ModeOn:
		return "on"
	}
	return "unknown"
}

type Indicator interface {
	SetMode(Mode)
	// Tick is called from main loop, drives blinking.
	Tick()
	Close() error
}

type Config struct {
	Enable  bool   `hcl:"enable"`
	PinChip string `hcl:"pin_chip"`
	Pin     int    `hcl:"pin"`
}

func Open(log *log2.Log, c Config) (Indicator, error) {
	if !c.Enable {
		return Noop{}, nil
	}
	if c.PinChip == "" || c.Pin < 0 {
		return nil, errors.NotValidf("status_led pin_chip=%q pin=%d", c.PinChip, c.Pin)
	}
	chip, err := gpio.Open(c.PinChip, "wxlink")
	if err != nil {
		return nil, errors.Annotatef(err, "status_led open chip=%s", c.PinChip)
	}
	led, err := NewLED(log, chip, uint32(c.Pin))
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	led.chip = chip
	return led, nil
}

type LED struct {
	log   *log2.Log
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
	mode  Mode
	value byte
	dirty bool
	next  atomic_clock.Clock
	now   func() int64
}

var _ Indicator = &LED{}

func NewLED(log *log2.Log, chip gpio.Chiper, pin uint32) (*LED, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "wxlink-status", pin)
	if err != nil {
		return nil, errors.Annotatef(err, "status_led open line=%d", pin)
	}
	self := &LED{
		log:   log,
		lines: lines,
		set:   lines.SetFunc(pin),
		dirty: true,
		now:   atomic_clock.Source,
	}
	return self, nil
}

func (self *LED) SetMode(m Mode) {
	if m == self.mode {
		return
	}
	self.log.Debugf("status_led mode=%s", m)
	self.mode = m
	self.next.Reset()
}

func (self *LED) Tick() {
	v := self.value
	switch self.mode {
	case ModeOff:
		v = 0
	case ModeOn:
		v = 1
	case ModeBlink:
		now := self.now()
		if !self.next.Reached(now) {
			return
		}
		self.next.Set(now + int64(BlinkHalfPeriod))
		v ^= 1
	}
	if v == self.value && !self.dirty {
		return
	}
	self.set(v)
	if err := self.lines.Flush(); err != nil {
		self.log.Error(errors.Annotate(err, "status_led flush"))
		return
	}
	self.value, self.dirty = v, false
}

func (self *LED) Close() error {
	self.set(0)
	err := self.lines.Flush()
	if e := self.lines.Close(); err == nil {
		err = e
	}
	if self.chip != nil {
		if e := self.chip.Close(); err == nil {
			err = e
		}
	}
	return errors.Annotate(err, "status_led close")
}

type Noop struct{}

var _ Indicator = Noop{}

func (Noop) SetMode(Mode) {}
func (Noop) Tick()        {}
func (Noop) Close() error { return nil }
