package tele

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
)

// mqtt fixed header (max) + topic length prefix
const packetOverhead = 5 + 2

var ErrMessageTooLarge = errors.NewNotValid(nil, "message too large")

type configMessage struct {
	Name              string `json:"Name"`
	IP                string `json:"IP"`
	FWDate            string `json:"Davis FW Date"`
	FWVersion         string `json:"Davis FW Version"`
	UpdateIntervalSec uint16 `json:"UpdateIntervalSec"`
}

type stateMessage struct {
	Time               int64   `json:"Time,omitempty"`
	InsideTemperature  float32 `json:"InsideTemperature"`
	InsideHumidity     uint8   `json:"InsideHumidity"`
	OutsideTemperature float32 `json:"OutsideTemperature"`
	OutsideHumidity    uint8   `json:"OutsideHumidity"`
	BarPressure        float32 `json:"BarPressure"`
	BarTrend           int8    `json:"BarTrend"`
	DewPoint           float32 `json:"DewPoint"`
	RainRate           float32 `json:"RainRate"`
	Rain24Hrs          float32 `json:"Rain24Hrs"`
	RainDaily          float32 `json:"RainDaily"`
	ForecastIcons      uint8   `json:"ForecastIcons"`
}

func PacketSize(topic string, payload []byte) int { return packetOverhead + len(topic) + len(payload) }

// SendConfig publishes identity, firmware and settings, retained.
func (self *Tele) SendConfig() error { return self.sendConfig(context.Background()) }

func (self *Tele) sendConfig(ctx context.Context) error {
	if !self.transport.Connected() {
		return nil
	}
	d := self.station.Snapshot()
	m := configMessage{
		Name:              self.session.ClientID,
		IP:                self.link.LocalIP(),
		FWDate:            d.FWDate,
		FWVersion:         d.FWVersion,
		UpdateIntervalSec: self.station.Settings.UpdateIntervalSec,
	}
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Annotate(err, "tele config marshal")
	}
	return self.publish(ctx, self.topics.Config, b, true)
}

// SendState publishes latest readings to root topic, retained.
func (self *Tele) SendState() error { return self.sendState(context.Background()) }

func (self *Tele) sendState(ctx context.Context) error {
	if !self.transport.Connected() {
		return nil
	}
	d := self.station.Snapshot()
	m := stateMessage{
		InsideTemperature:  d.InsideTemperature,
		InsideHumidity:     d.InsideHumidity,
		OutsideTemperature: d.OutsideTemperature,
		OutsideHumidity:    d.OutsideHumidity,
		BarPressure:        d.BarometricPressure,
		BarTrend:           d.BarometricTrend,
		DewPoint:           d.DewPoint,
		RainRate:           d.RainRate,
		Rain24Hrs:          d.Rain24Hrs,
		RainDaily:          d.RainDaily,
		ForecastIcons:      d.ForecastIcons,
	}
	if self.clock.Ready() {
		m.Time = self.clock.Epoch()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Annotate(err, "tele state marshal")
	}
	return self.publish(ctx, self.topics.State, b, true)
}

// SendRaw publishes arbitrary bytes, not retained.
func (self *Tele) SendRaw(topic string, data []byte) error {
	if !self.transport.Connected() {
		return nil
	}
	return self.publish(context.Background(), topic, data, false)
}

func (self *Tele) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if size := PacketSize(topic, payload); size > self.maxPacketSize {
		err := errors.Annotatef(ErrMessageTooLarge, "topic=%s size=%d max=%d", topic, size, self.maxPacketSize)
		self.log.Error(err)
		return err
	}
	if err := self.transport.Publish(ctx, topic, payload, retained); err != nil {
		err = errors.Annotatef(err, "tele publish topic=%s", topic)
		self.log.Error(err)
		return err
	}
	self.log.Debugf("tele publish topic=%s len=%d retained=%t", topic, len(payload), retained)
	return nil
}
