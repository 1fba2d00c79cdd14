package subcmd

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/wxlink/internal/state"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *state.Config) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "config-check", Main: noop}}

	m, err := Parse("config-check", mods)
	require.NoError(t, err)
	assert.Equal(t, "config-check", m.Name)

	_, err = Parse("", mods)
	assert.True(t, errors.IsNotValid(err))
	_, err = Parse("reboot", mods)
	assert.True(t, errors.IsNotFound(err))
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}
