package state

import (
	"context"
	"testing"

	"github.com/temoto/wxlink/internal/link"
	"github.com/temoto/wxlink/internal/tele"
	"github.com/temoto/wxlink/log2"
)

const TestConfigMinimal = `
device {
	type = "WeatherStation"
	name = "DavisReader"
}
tele {
	mqtt_broker = "tcp://127.0.0.1:1883"
}
`

// NewTestContext returns initialized Global with link.Mock (down).
// Optional transport replaces MQTT client.
func NewTestContext(t testing.TB, confString string, transport tele.Transporter) (context.Context, *Global) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	// log := log2.NewStderr(log2.LDebug) // useful with panics
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.Link = &link.Mock{IP: "10.0.0.5"}
	g.XXX_Transport = transport
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))
	return ctx, g
}
