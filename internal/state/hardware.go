package state

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/wxlink/internal/indicator"
	"github.com/temoto/wxlink/internal/tele"
)

type hardware struct {
	StatusLed struct {
		once
		ind indicator.Indicator
	}
}

// StatusLed opens indicator on first call.
// On error returns working Noop indicator along with the error.
func (g *Global) StatusLed() (indicator.Indicator, error) {
	x := &g.Hardware.StatusLed // short alias
	_ = x.do(func() error {
		if x.ind != nil { // tests may preset
			return nil
		}
		ind, err := indicator.Open(g.Log, g.Config.Hardware.StatusLed)
		if err != nil {
			x.ind = indicator.Noop{}
			return errors.Annotate(err, "hardware status_led")
		}
		x.ind = ind
		return nil
	})
	return x.ind, x.err
}

// IndicatorMode maps connection state to status LED:
// off without link, blinking while connecting, on with active session.
func IndicatorMode(s tele.ConnState) indicator.Mode {
	switch s {
	case tele.StateSessionActive:
		return indicator.ModeOn
	case tele.StateLinkConnecting, tele.StateSessionConnecting:
		return indicator.ModeBlink
	}
	return indicator.ModeOff
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool { return atomic.LoadUint32(&o.called) == 1 }
func (o *once) do(f func() error) error {
	if o.done() {
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
