package tele

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/wxlink/helpers"
	"github.com/temoto/wxlink/log2"
	tele_config "github.com/temoto/wxlink/internal/tele/config"
)

const disconnectQuiesceMs = 100

type transportMqtt struct {
	log            *log2.Log
	broker         string
	networkTimeout time.Duration
	inbox          chan Message
	m              mqtt.Client
}

var _ Transporter = &transportMqtt{}

// SetMqttLog routes paho library logs, process-wide.
func SetMqttLog(log *log2.Log, debug bool) {
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if debug {
		mqtt.DEBUG = log
	}
}

func newTransportMqtt(log *log2.Log, teleConfig tele_config.Config) *transportMqtt {
	inboxSize := teleConfig.InboxSize
	if inboxSize <= 0 {
		inboxSize = tele_config.DefaultInboxSize
	}
	return &transportMqtt{
		log:            log,
		broker:         teleConfig.MqttBroker,
		networkTimeout: helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, tele_config.DefaultNetworkTimeoutSec*time.Second),
		inbox:          make(chan Message, inboxSize),
	}
}

func (self *transportMqtt) Connect(ctx context.Context, s Session) error {
	self.Disconnect()
	mopt := mqtt.NewClientOptions().
		AddBroker(self.broker).
		SetClientID(s.ClientID).
		SetUsername(s.Username).
		SetPassword(s.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(s.KeepAlive).
		SetPingTimeout(self.networkTimeout).
		SetConnectTimeout(self.networkTimeout).
		SetWriteTimeout(self.networkTimeout).
		SetOrderMatters(true).
		SetDefaultPublishHandler(self.messageHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	if s.Will.Topic != "" {
		mopt.SetBinaryWill(s.Will.Topic, s.Will.Payload, 0, s.WillRetain)
	}
	m := mqtt.NewClient(mopt)
	if err := self.wait(ctx, m.Connect(), "connect"); err != nil {
		m.Disconnect(0)
		return errors.Annotatef(err, "broker=%s", self.broker)
	}
	self.m = m
	return nil
}

func (self *transportMqtt) Connected() bool {
	return self.m != nil && self.m.IsConnectionOpen()
}

func (self *transportMqtt) Subscribe(ctx context.Context, topic string) error {
	if self.m == nil {
		return errors.NotFoundf("mqtt session")
	}
	return self.wait(ctx, self.m.Subscribe(topic, 0, nil), "subscribe "+topic)
}

func (self *transportMqtt) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if self.m == nil {
		return errors.NotFoundf("mqtt session")
	}
	return self.wait(ctx, self.m.Publish(topic, 0, retained, payload), "publish "+topic)
}

func (self *transportMqtt) Receive() (Message, bool) {
	select {
	case msg := <-self.inbox:
		return msg, true
	default:
		return Message{}, false
	}
}

func (self *transportMqtt) Disconnect() {
	if self.m == nil {
		return
	}
	self.m.Disconnect(disconnectQuiesceMs)
	self.m = nil
	// drop messages of previous session
	for {
		select {
		case <-self.inbox:
		default:
			return
		}
	}
}

func (self *transportMqtt) wait(ctx context.Context, token mqtt.Token, what string) error {
	timer := time.NewTimer(self.networkTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return errors.Annotatef(token.Error(), "mqtt %s", what)
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "mqtt %s", what)
	case <-timer.C:
		return errors.Timeoutf("mqtt %s", what)
	}
}

// Called from paho goroutine.
func (self *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case self.inbox <- Message{Topic: msg.Topic(), Payload: payload}:
	default:
		self.log.Errorf("mqtt inbox full, dropped topic=%s len=%d", msg.Topic(), len(payload))
	}
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt connection lost err=%v", err)
}
