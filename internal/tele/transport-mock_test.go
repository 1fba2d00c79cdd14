package tele

import (
	"context"
	"fmt"
	"testing"

	"github.com/juju/errors"
)

type published struct {
	Topic    string
	Payload  string
	Retained bool
}

type transportMock struct {
	t          testing.TB
	connected  bool
	connectErr error
	block      bool // Subscribe/Publish wait for ctx.Done
	sessions   []Session
	calls      []string
	out        []published
	inbox      []Message
}

var _ Transporter = &transportMock{}

func (self *transportMock) Connect(ctx context.Context, s Session) error {
	self.calls = append(self.calls, "connect")
	self.sessions = append(self.sessions, s)
	if self.connectErr != nil {
		return self.connectErr
	}
	self.connected = true
	return nil
}

func (self *transportMock) Connected() bool { return self.connected }

func (self *transportMock) Subscribe(ctx context.Context, topic string) error {
	self.calls = append(self.calls, "subscribe "+topic)
	if self.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (self *transportMock) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !self.connected {
		return errors.NotFoundf("mock session")
	}
	if self.block {
		<-ctx.Done()
		return ctx.Err()
	}
	self.calls = append(self.calls, fmt.Sprintf("publish %s retained=%t", topic, retained))
	self.out = append(self.out, published{Topic: topic, Payload: string(payload), Retained: retained})
	self.t.Logf("mock publish topic=%s payload=%s", topic, payload)
	return nil
}

func (self *transportMock) Receive() (Message, bool) {
	if len(self.inbox) == 0 {
		return Message{}, false
	}
	msg := self.inbox[0]
	self.inbox = self.inbox[1:]
	return msg, true
}

func (self *transportMock) Disconnect() {
	self.calls = append(self.calls, "disconnect")
	self.connected = false
}

func (self *transportMock) push(topic, payload string) {
	self.inbox = append(self.inbox, Message{Topic: topic, Payload: []byte(payload)})
}

func (self *transportMock) reset() {
	self.calls = nil
	self.out = nil
}

func (self *transportMock) outTopic(topic string) []published {
	var result []published
	for _, p := range self.out {
		if p.Topic == topic {
			result = append(result, p)
		}
	}
	return result
}
