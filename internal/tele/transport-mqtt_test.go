package tele

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele_config "github.com/temoto/wxlink/internal/tele/config"
	"github.com/temoto/wxlink/log2"
)

type fakeMessage struct{ topic, payload string }

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m fakeMessage) Ack()              {}

func TestTransportMqtt(t *testing.T) {
	t.Parallel()
	const timeout = 5 * time.Second
	topics := NewTopics("", "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	clientDone := make(chan struct{})
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if !assert.NoError(t, err) {
			return
		}
		_ = conn.SetDeadline(time.Now().Add(timeout))
		b := transport.NewNetConn(conn)
		defer b.Close()

		pkt, err := b.Receive()
		if !assert.NoError(t, err) {
			return
		}
		connect, ok := pkt.(*packet.Connect)
		if !assert.True(t, ok, pkt.String()) {
			return
		}
		assert.Equal(t, "DavisReader", connect.ClientID)
		assert.Equal(t, "user", connect.Username)
		assert.Equal(t, "pass", connect.Password)
		assert.Equal(t, uint16(15), connect.KeepAlive)
		assert.True(t, connect.CleanSession)
		if assert.NotNil(t, connect.Will) {
			assert.Equal(t, topics.Status, connect.Will.Topic)
			assert.Equal(t, "offline", string(connect.Will.Payload))
			assert.True(t, connect.Will.Retain)
			assert.Equal(t, packet.QOSAtMostOnce, connect.Will.QOS)
		}
		connack := packet.NewConnack()
		connack.ReturnCode = packet.ConnectionAccepted
		assert.NoError(t, b.Send(connack, false))

		pkt, err = b.Receive()
		if !assert.NoError(t, err) {
			return
		}
		sub, ok := pkt.(*packet.Subscribe)
		if !assert.True(t, ok, pkt.String()) || !assert.Len(t, sub.Subscriptions, 1) {
			return
		}
		assert.Equal(t, topics.Set, sub.Subscriptions[0].Topic)
		assert.Equal(t, packet.QOSAtMostOnce, sub.Subscriptions[0].QOS)
		suback := packet.NewSuback()
		suback.ID = sub.ID
		suback.ReturnCodes = []packet.QOS{packet.QOSAtMostOnce}
		assert.NoError(t, b.Send(suback, false))

		pkt, err = b.Receive()
		if !assert.NoError(t, err) {
			return
		}
		pub, ok := pkt.(*packet.Publish)
		if !assert.True(t, ok, pkt.String()) {
			return
		}
		assert.Equal(t, topics.Status, pub.Message.Topic)
		assert.Equal(t, "online", string(pub.Message.Payload))
		assert.True(t, pub.Message.Retain)
		assert.Equal(t, packet.QOSAtMostOnce, pub.Message.QOS)

		in := packet.NewPublish()
		in.Message = packet.Message{Topic: topics.Cmd, Payload: []byte("get_time"), QOS: packet.QOSAtMostOnce}
		assert.NoError(t, b.Send(in, false))
		<-clientDone
	}()

	// paho goroutines may log after test end, t.Logf would panic
	tr := newTransportMqtt(log2.NewStderr(log2.LDebug), tele_config.Config{
		MqttBroker:        "tcp://" + ln.Addr().String(),
		NetworkTimeoutSec: 5,
	})
	assert.False(t, tr.Connected())
	session := Session{
		ClientID:   "DavisReader",
		Username:   "user",
		Password:   "pass",
		Will:       Message{Topic: topics.Status, Payload: []byte(PayloadOffline)},
		WillRetain: true,
		KeepAlive:  15 * time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, tr.Connect(ctx, session))
	assert.True(t, tr.Connected())
	require.NoError(t, tr.Subscribe(ctx, topics.Set))
	require.NoError(t, tr.Publish(ctx, topics.Status, []byte(PayloadOnline), true))

	var msg Message
	require.Eventually(t, func() bool {
		var ok bool
		msg, ok = tr.Receive()
		return ok
	}, timeout, 5*time.Millisecond)
	assert.Equal(t, Message{Topic: topics.Cmd, Payload: []byte("get_time")}, msg)
	_, ok := tr.Receive()
	assert.False(t, ok)

	close(clientDone)
	<-serverDone
	require.Eventually(t, func() bool { return !tr.Connected() }, timeout, 5*time.Millisecond, "broker closed connection")
	tr.Disconnect()
	assert.False(t, tr.Connected())
	assert.Error(t, tr.Publish(context.Background(), topics.Status, []byte("x"), false))
}

func TestTransportMqttConnectError(t *testing.T) {
	t.Parallel()

	// reserve free port and close it
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tr := newTransportMqtt(log2.NewStderr(log2.LDebug), tele_config.Config{
		MqttBroker:        "tcp://" + addr,
		NetworkTimeoutSec: 1,
	})
	err = tr.Connect(context.Background(), Session{ClientID: "test"})
	require.Error(t, err)
	assert.False(t, tr.Connected())
	assert.Error(t, tr.Subscribe(context.Background(), "x"))
}

func TestTransportMqttInbox(t *testing.T) {
	t.Parallel()

	tr := newTransportMqtt(log2.NewTest(t, log2.LDebug), tele_config.Config{InboxSize: 2})
	tr.messageHandler(nil, fakeMessage{"a", "1"})
	tr.messageHandler(nil, fakeMessage{"b", "2"})
	tr.messageHandler(nil, fakeMessage{"c", "3"}) // dropped

	msg, ok := tr.Receive()
	require.True(t, ok)
	assert.Equal(t, Message{Topic: "a", Payload: []byte("1")}, msg)
	msg, ok = tr.Receive()
	require.True(t, ok)
	assert.Equal(t, Message{Topic: "b", Payload: []byte("2")}, msg)
	_, ok = tr.Receive()
	assert.False(t, ok)
}
