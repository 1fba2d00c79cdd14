// Main mode of operation: keep station connected to broker.
package relay

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/temoto/wxlink/cmd/wxlink/subcmd"
	"github.com/temoto/wxlink/helpers/atomic_clock"
	"github.com/temoto/wxlink/internal/state"
)

var Mod = subcmd.Mod{Name: "run", Main: Main}
var ConfigCheckMod = subcmd.Mod{Name: "config-check", Main: ConfigCheckMain}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			g.Log.Infof("signal=%v stopping", sig)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Debugf("relay init complete tick=%dms", g.Config.TickMs)

	Loop(ctx, time.Duration(g.Config.TickMs)*time.Millisecond)

	subcmd.SdNotify(daemon.SdNotifyStopping)
	if !g.StopWait(5 * time.Second) {
		g.Log.Errorf("stop timeout")
	}
	return nil
}

// Loop ticks Global until stopped.
func Loop(ctx context.Context, interval time.Duration) {
	g := state.GetGlobal(ctx)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	stopCh := g.Alive.StopChan()
	for g.Alive.IsRunning() {
		select {
		case <-stopCh:
			return
		case <-tick.C:
			g.Tick(ctx, atomic_clock.Source())
		}
	}
}

func ConfigCheckMain(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.Log.Infof("config ok device=%s/%s broker=%s", config.Device.Type, config.Device.Name, config.Tele.MqttBroker)
	return nil
}
