package tele

import (
	"context"
	"time"
)

// Tele transport contract:
// - Connect performs one bounded attempt, never retries on its own
// - Publish/Subscribe operate on current session, fail when there is none,
//   wait no longer than ctx allows
// - Receive never blocks, returns inbound messages in arrival order
// - application may start without network available
type Transporter interface {
	Connect(ctx context.Context, s Session) error
	Connected() bool
	Subscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
	Receive() (Message, bool)
	Disconnect()
}

type Message struct {
	Topic   string
	Payload []byte
}

type Session struct {
	ClientID   string
	Username   string
	Password   string // secret
	Will       Message
	WillRetain bool
	KeepAlive  time.Duration
}
