package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/wxlink/internal/state"
	"github.com/temoto/wxlink/internal/tele"
)

func TestLoopStop(t *testing.T) {
	t.Parallel()
	ctx, g := state.NewTestContext(t, state.TestConfigMinimal, nil)
	time.AfterFunc(50*time.Millisecond, g.Stop)
	done := make(chan struct{})
	go func() {
		Loop(ctx, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Loop did not stop")
	}
	// link mock is down
	assert.Equal(t, tele.StateLinkConnecting, g.Tele.State())
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()
	ctx, g := state.NewTestContext(t, state.TestConfigMinimal, nil)
	assert.NoError(t, ConfigCheckMain(ctx, g.Config))
}
