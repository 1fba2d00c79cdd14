package state

import (
	"context"
	"expvar"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/wxlink/helpers/atomic_clock"
	"github.com/temoto/wxlink/internal/link"
	"github.com/temoto/wxlink/internal/ota"
	"github.com/temoto/wxlink/internal/tele"
	"github.com/temoto/wxlink/internal/timesync"
	"github.com/temoto/wxlink/internal/types"
	"github.com/temoto/wxlink/log2"
)

var statErrors = expvar.NewInt("errors")

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Station      *types.Station
	Tele         *tele.Tele
	Link         link.Linker
	Updater      ota.Updater
	Clock        timesync.Clock

	// test code sets transport before Init
	XXX_Transport tele.Transporter

	ota       *ota.HTTP
	nextState atomic_clock.Clock

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error state.NewContext() log=nil")
	}

	g := &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: "unknown",
		Log:          log,
	}
	ctx := context.WithValue(context.Background(), ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg

	g.Log.Infof("build version=%s device=%s/%s", g.BuildVersion, cfg.Device.Type, cfg.Device.Name)
	if g.BuildVersion == "unknown" {
		g.Log.Infof("build version is not set, please use -ldflags")
	}
	g.Log.SetErrorFunc(func(error) { statErrors.Add(1) })

	g.Station = types.NewStation()
	if cfg.Station.UpdateIntervalSec > 0 {
		g.Station.Settings.UpdateIntervalSec = uint16(cfg.Station.UpdateIntervalSec)
	}

	if g.Link == nil {
		g.Link = link.NewNetif(g.Log, cfg.Link)
	}

	g.Updater = ota.Noop{}
	if cfg.OTA.Enable {
		u, err := ota.NewHTTP(g.Log, cfg.OTA)
		if err != nil {
			return errors.Annotate(err, "ota init")
		}
		g.ota = u
		g.Updater = u
	}

	g.Clock = timesync.Noop{}
	if cfg.Time.Enable {
		g.Clock = timesync.NewNTP(g.Log, cfg.Time)
	}

	if _, err := g.StatusLed(); err != nil {
		// not fatal, relay works without status LED
		g.Error(err)
	}

	t, err := tele.New(tele.Options{
		Config:        cfg.Tele,
		Log:           g.Log.Clone(log2.LInfo),
		Station:       g.Station,
		Link:          g.Link,
		SSID:          cfg.Link.SSID,
		Password:      cfg.Link.Password,
		Transport:     g.XXX_Transport,
		Updater:       g.Updater,
		Clock:         g.Clock,
		OnStateChange: g.onTeleState,
	})
	if err != nil {
		return errors.Annotate(err, "tele init")
	}
	g.Tele = t
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Tick runs one iteration of main loop. Call from one goroutine only.
func (g *Global) Tick(ctx context.Context, now int64) {
	before := g.Tele.State()
	g.Tele.Tick(ctx)
	g.serveStation()
	if active := g.Tele.State() == tele.StateSessionActive; active && before != tele.StateSessionActive {
		// handshake already published state
		g.nextState.Set(now + int64(g.UpdateInterval()))
	} else if active && g.nextState.Reached(now) {
		if err := g.Tele.SendState(); err != nil {
			g.Error(err, "periodic state")
		}
		g.nextState.Set(now + int64(g.UpdateInterval()))
	}
	if ind, _ := g.StatusLed(); ind != nil {
		ind.Tick()
	}
}

// UpdateInterval is current state publish period, remote settings apply on next publish.
func (g *Global) UpdateInterval() time.Duration {
	sec := g.Station.Settings.UpdateIntervalSec
	if sec == 0 {
		sec = types.DefaultUpdateIntervalSec
	}
	return time.Duration(sec) * time.Second
}

// serveStation consumes requests addressed to station driver.
// Serial protocol to the console is not implemented here, requests are only logged.
func (g *Global) serveStation() {
	s := g.Station
	if cmd, ok := s.Command.Take(); ok {
		g.Log.Debugf("station command=%q", cmd)
	}
	if since, ok := s.Request.TakeArchive(); ok {
		if since == nil {
			g.Log.Debugf("station archive all")
		} else {
			g.Log.Debugf("station archive since=%s", since.String())
		}
	}
	if s.Request.TakeGetTime() {
		g.Log.Debugf("station get time")
	}
	if t, ok := s.Request.TakeSetTime(); ok {
		g.Log.Debugf("station set time=%s", t.String())
	}
}

func (g *Global) onTeleState(s tele.ConnState) {
	if ind, _ := g.StatusLed(); ind != nil {
		ind.SetMode(IndicatorMode(s))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

// StopWait closes tele session and hardware, then waits for alive workers.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	if g.Tele != nil {
		g.Tele.Close()
	}
	if g.ota != nil {
		g.ota.Close()
	}
	if g.Config != nil {
		if ind, _ := g.StatusLed(); ind != nil {
			if err := ind.Close(); err != nil {
				g.Log.Error(errors.Annotate(err, "status_led close"))
			}
		}
	}
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
