// Package timesync keeps network time offset for telemetry timestamps.
package timesync

import (
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/juju/errors"
	"github.com/temoto/wxlink/helpers"
	"github.com/temoto/wxlink/helpers/atomic_clock"
	"github.com/temoto/wxlink/log2"
)

const (
	DefaultServer         = "pool.ntp.org"
	DefaultUpdateInterval = 4 * time.Hour
	DefaultTimeout        = 5 * time.Second
	DefaultRetry          = time.Minute
)

type Clock interface {
	// Begin is called every time network link is up.
	Begin()
	// Update is called every tick while network link is up. Must not block.
	Update()
	Ready() bool
	Epoch() int64
	Formatted() string
}

type Config struct {
	Enable            bool   `hcl:"enable"`
	Server            string `hcl:"server"`
	UpdateIntervalSec int    `hcl:"update_interval_sec"`
	TimeoutSec        int    `hcl:"timeout_sec"`
}

type QueryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

// NTP queries time server in background, stores clock offset.
type NTP struct {
	log      *log2.Log
	server   string
	interval time.Duration
	timeout  time.Duration
	query    QueryFunc

	started uint32
	busy    uint32
	ready   uint32
	offset  int64
	next    atomic_clock.Clock
}

var _ Clock = &NTP{}

func NewNTP(log *log2.Log, c Config) *NTP {
	self := &NTP{
		log:      log,
		server:   c.Server,
		interval: helpers.IntSecondDefault(c.UpdateIntervalSec, DefaultUpdateInterval),
		timeout:  helpers.IntSecondDefault(c.TimeoutSec, DefaultTimeout),
		query:    ntp.QueryWithOptions,
	}
	if self.server == "" {
		self.server = DefaultServer
	}
	return self
}

// Begin starts new sync cycle: Ready() is false until next successful query.
func (self *NTP) Begin() {
	atomic.StoreUint32(&self.ready, 0)
	self.next.Reset()
	if atomic.CompareAndSwapUint32(&self.started, 0, 1) {
		self.log.Debugf("timesync begin server=%s interval=%v", self.server, self.interval)
	}
}

func (self *NTP) Update() {
	if atomic.LoadUint32(&self.started) == 0 {
		return
	}
	now := atomic_clock.Source()
	if !self.next.Reached(now) {
		return
	}
	if !atomic.CompareAndSwapUint32(&self.busy, 0, 1) {
		return
	}
	go self.sync()
}

func (self *NTP) sync() {
	defer atomic.StoreUint32(&self.busy, 0)
	err := self.syncOnce()
	now := atomic_clock.Source()
	if err != nil {
		self.log.Error(errors.Annotatef(err, "timesync server=%s", self.server))
		self.next.Set(now + int64(DefaultRetry))
		return
	}
	self.next.Set(now + int64(self.interval))
}

func (self *NTP) syncOnce() error {
	r, err := self.query(self.server, ntp.QueryOptions{Timeout: self.timeout})
	if err != nil {
		return errors.Annotate(err, "query")
	}
	if err = r.Validate(); err != nil {
		return errors.Annotate(err, "validate")
	}
	atomic.StoreInt64(&self.offset, int64(r.ClockOffset))
	if atomic.SwapUint32(&self.ready, 1) == 0 {
		self.log.Infof("timesync ready offset=%v", r.ClockOffset)
	} else {
		self.log.Debugf("timesync offset=%v", r.ClockOffset)
	}
	return nil
}

func (self *NTP) Ready() bool { return atomic.LoadUint32(&self.ready) == 1 }

func (self *NTP) Offset() time.Duration { return time.Duration(atomic.LoadInt64(&self.offset)) }

func (self *NTP) Epoch() int64 { return time.Now().Add(self.Offset()).Unix() }

func (self *NTP) Formatted() string { return formatEpoch(self.Epoch()) }

func formatEpoch(epoch int64) string { return time.Unix(epoch, 0).UTC().Format("15:04:05") }

// Noop reports local system time, never ready.
type Noop struct{}

var _ Clock = Noop{}

func (Noop) Begin()            {}
func (Noop) Update()           {}
func (Noop) Ready() bool       { return false }
func (Noop) Epoch() int64      { return time.Now().Unix() }
func (Noop) Formatted() string { return formatEpoch(time.Now().Unix()) }
