package tele

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wxlink/helpers"
	"github.com/temoto/wxlink/helpers/atomic_clock"
	"github.com/temoto/wxlink/internal/link"
	"github.com/temoto/wxlink/internal/ota"
	tele_config "github.com/temoto/wxlink/internal/tele/config"
	"github.com/temoto/wxlink/internal/timesync"
	"github.com/temoto/wxlink/internal/types"
	"github.com/temoto/wxlink/log2"
)

type ConnState uint8

const (
	StateLinkDown ConnState = iota
	StateLinkConnecting
	StateSessionConnecting
	StateSessionActive
)

func (s ConnState) String() string {
	switch s {
	case StateLinkDown:
		return "link-down"
	case StateLinkConnecting:
		return "link-connecting"
	case StateSessionConnecting:
		return "session-connecting"
	case StateSessionActive:
		return "session-active"
	}
	return "invalid"
}

type Options struct {
	Config   tele_config.Config
	Log      *log2.Log
	Station  *types.Station
	Link     link.Linker
	SSID     string
	Password string // secret

	// Optional
	Transport     Transporter
	Updater       ota.Updater
	Clock         timesync.Clock
	Now           func() int64
	OnStateChange func(ConnState)
}

// Tele contract:
// - Tick() is called from one goroutine, never blocks longer than network timeout
// - link and session failures are retried forever with fixed delays
// - at most one inbound message is handled per Tick()
// - Send* are no-op without active session
type Tele struct { //nolint:maligned
	log           *log2.Log
	config        tele_config.Config
	station       *types.Station
	link          link.Linker
	ssid          string
	password      string
	transport     Transporter
	updater       ota.Updater
	clock         timesync.Clock
	now           func() int64
	onStateChange func(ConnState)

	topics         Topics
	session        Session
	state          ConnState
	timer          retryTimer
	connectRetry   time.Duration
	reconnect      time.Duration
	maxPacketSize  int
	networkTimeout time.Duration
}

func New(opt Options) (*Tele, error) {
	c := opt.Config
	if opt.Station == nil {
		return nil, errors.NotValidf("tele station=nil")
	}
	if opt.Link == nil {
		return nil, errors.NotValidf("tele link=nil")
	}
	if c.MaxPacketSize < 0 {
		return nil, errors.NotValidf("tele max_packet_size=%d", c.MaxPacketSize)
	}
	self := &Tele{
		log:            opt.Log,
		config:         c,
		station:        opt.Station,
		link:           opt.Link,
		ssid:           opt.SSID,
		password:       opt.Password,
		transport:      opt.Transport,
		updater:        opt.Updater,
		clock:          opt.Clock,
		now:            opt.Now,
		onStateChange:  opt.OnStateChange,
		topics:         NewTopics(c.DeviceType, c.DeviceName),
		state:          StateLinkDown,
		connectRetry:   helpers.IntMillisecondDefault(c.ConnectRetryMs, tele_config.DefaultConnectRetryMs*time.Millisecond),
		reconnect:      helpers.IntMillisecondDefault(c.ReconnectMs, tele_config.DefaultReconnectMs*time.Millisecond),
		maxPacketSize:  c.MaxPacketSize,
		networkTimeout: helpers.IntSecondDefault(c.NetworkTimeoutSec, tele_config.DefaultNetworkTimeoutSec*time.Second),
	}
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if self.maxPacketSize == 0 {
		self.maxPacketSize = tele_config.DefaultMaxPacketSize
	}
	// test code sets .Transport
	if self.transport == nil { // production path
		if c.MqttBroker == "" {
			return nil, errors.NotValidf("tele mqtt_broker empty")
		}
		self.transport = newTransportMqtt(self.log, c)
	}
	if self.updater == nil {
		self.updater = ota.Noop{}
	}
	if self.clock == nil {
		self.clock = timesync.Noop{}
	}
	if self.now == nil {
		self.now = atomic_clock.Source
	}
	clientID := c.DeviceName
	if clientID == "" {
		clientID = DefaultDeviceName
	}
	self.session = Session{
		ClientID:   clientID,
		Username:   c.MqttUsername,
		Password:   c.MqttPassword,
		Will:       Message{Topic: self.topics.Status, Payload: []byte(PayloadOffline)},
		WillRetain: true,
		KeepAlive:  helpers.IntSecondDefault(c.KeepaliveSec, tele_config.DefaultKeepaliveSec*time.Second),
	}
	return self, nil
}

func (self *Tele) State() ConnState { return self.state }
func (self *Tele) Topics() Topics   { return self.topics }

// Tick advances connection state machine by one step.
func (self *Tele) Tick(ctx context.Context) {
	linkUp := self.link.Connected()
	if !linkUp && self.state != StateLinkDown && self.state != StateLinkConnecting {
		self.log.Errorf("tele link lost state=%s", self.state)
		self.transport.Disconnect()
		self.setState(StateLinkDown)
	}

	switch self.state {
	case StateLinkDown:
		self.log.Infof("tele link connecting ssid=%s", self.ssid)
		if err := self.link.Begin(self.ssid, self.password); err != nil {
			self.log.Error(errors.Annotate(err, "tele link begin"))
		}
		self.setState(StateLinkConnecting)

	case StateLinkConnecting:
		if linkUp {
			self.log.Infof("tele link connected ip=%s", self.link.LocalIP())
			if err := self.updater.Begin(); err != nil {
				self.log.Error(errors.Annotate(err, "tele ota begin"))
			}
			self.clock.Begin()
			self.timer.Fire()
			self.setState(StateSessionConnecting)
		}

	case StateSessionConnecting:
		if self.timer.Expired(self.now()) {
			self.connect(ctx)
		}

	case StateSessionActive:
		if !self.transport.Connected() {
			self.log.Errorf("tele mqtt session lost, reconnect in %v", self.reconnect)
			self.timer.Arm(self.now(), self.reconnect)
			self.setState(StateSessionConnecting)
		} else {
			self.serve()
		}
	}

	if self.link.Connected() {
		self.updater.Handle()
		self.clock.Update()
	}
}

// Close announces offline status and ends session.
func (self *Tele) Close() {
	if self.transport.Connected() {
		if err := self.transport.Publish(context.Background(), self.topics.Status, []byte(PayloadOffline), true); err != nil {
			self.log.Error(errors.Annotate(err, "tele close"))
		}
	}
	self.transport.Disconnect()
	self.setState(StateLinkDown)
}

func (self *Tele) connect(ctx context.Context) {
	self.log.Debugf("tele mqtt connecting client=%s", self.session.ClientID)
	// whole handshake shares one deadline
	ctx, cancel := context.WithTimeout(ctx, self.networkTimeout)
	defer cancel()
	if err := self.transport.Connect(ctx, self.session); err != nil {
		self.log.Error(errors.Annotatef(err, "tele mqtt connect, retry in %v", self.connectRetry))
		self.timer.Arm(self.now(), self.connectRetry)
		return
	}
	self.log.Infof("tele mqtt connected")
	for _, topic := range self.topics.Subscriptions() {
		if err := self.transport.Subscribe(ctx, topic); err != nil {
			self.log.Error(errors.Annotate(err, "tele subscribe"))
		}
	}
	if err := self.transport.Publish(ctx, self.topics.Status, []byte(PayloadOnline), true); err != nil {
		self.log.Error(errors.Annotate(err, "tele status"))
	}
	_ = self.sendConfig(ctx)
	_ = self.sendState(ctx)
	self.setState(StateSessionActive)
}

// serve handles at most one inbound message and pending command response.
func (self *Tele) serve() {
	if msg, ok := self.transport.Receive(); ok {
		self.onMessage(msg.Topic, msg.Payload)
	}
	if resp, ok := self.station.Command.TakeResponse(); ok {
		_ = self.SendRaw(self.topics.RespRaw, resp)
	}
}

func (self *Tele) setState(s ConnState) {
	if s == self.state {
		return
	}
	self.log.Infof("tele state %s -> %s", self.state, s)
	self.state = s
	if self.onStateChange != nil {
		self.onStateChange(s)
	}
}
