package tele

import (
	"math"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele_config "github.com/temoto/wxlink/internal/tele/config"
	"github.com/temoto/wxlink/internal/types"
)

func sampleData() types.StationData {
	return types.StationData{
		FWDate:             "Apr 24 2002",
		FWVersion:          "1.90",
		InsideTemperature:  21.5,
		InsideHumidity:     40,
		OutsideTemperature: -3.25,
		OutsideHumidity:    85,
		BarometricPressure: 29.92,
		BarometricTrend:    -60,
		DewPoint:           1.5,
		WindSpeed:          7,
		RainRate:           0,
		Rain24Hrs:          0.25,
		RainDaily:          0.5,
		ForecastIcons:      6,
	}
}

func TestSendConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.station.Data = sampleData()
	f.activate(t)

	require.NoError(t, f.tele.SendConfig())
	require.NoError(t, f.tele.SendConfig())
	require.Len(t, f.tr.out, 2)
	expect := `{"Name":"DavisReader","IP":"10.0.0.5","Davis FW Date":"Apr 24 2002","Davis FW Version":"1.90","UpdateIntervalSec":60}`
	assert.Equal(t, published{Topic: "WeatherStation/DavisReader/config", Payload: expect, Retained: true}, f.tr.out[0])
	assert.Equal(t, f.tr.out[0], f.tr.out[1], "publish is idempotent")
}

func TestSendState(t *testing.T) {
	t.Parallel()

	const expectBody = `"InsideTemperature":21.5,"InsideHumidity":40,"OutsideTemperature":-3.25,"OutsideHumidity":85,` +
		`"BarPressure":29.92,"BarTrend":-60,"DewPoint":1.5,"RainRate":0,"Rain24Hrs":0.25,"RainDaily":0.5,"ForecastIcons":6}`
	cases := []struct {
		name   string
		ready  bool
		expect string
	}{
		{"no-time", false, `{` + expectBody},
		{"time", true, `{"Time":1700000000,` + expectBody},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.station.Data = sampleData()
			f.clock.ready = c.ready
			f.clock.epoch = 1700000000
			f.activate(t)

			require.NoError(t, f.tele.SendState())
			require.NoError(t, f.tele.SendState())
			require.Len(t, f.tr.out, 2)
			assert.Equal(t, published{Topic: "WeatherStation/DavisReader", Payload: c.expect, Retained: true}, f.tr.out[0])
			assert.Equal(t, f.tr.out[0], f.tr.out[1], "publish is idempotent")
		})
	}
}

func TestSendInactive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.link.Up = true
	f.tick(2)
	require.Equal(t, StateSessionConnecting, f.tele.State())

	assert.NoError(t, f.tele.SendConfig())
	assert.NoError(t, f.tele.SendState())
	assert.NoError(t, f.tele.SendRaw(f.tele.Topics().Archive, []byte{1, 2, 3}))
	assert.Empty(t, f.tr.out)
}

func TestSendRaw(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.activate(t)

	topic := f.tele.Topics().Archive
	require.NoError(t, f.tele.SendRaw(topic, []byte{0, 1, 0xff}))
	assert.Equal(t, []published{{Topic: topic, Payload: "\x00\x01\xff", Retained: false}}, f.tr.out)
}

func TestPacketSizeCeiling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.activate(t)

	topic := f.tele.Topics().Archive
	limit := tele_config.DefaultMaxPacketSize - PacketSize(topic, nil)
	require.NoError(t, f.tele.SendRaw(topic, make([]byte, limit)))
	assert.Len(t, f.tr.out, 1)

	err := f.tele.SendRaw(topic, make([]byte, limit+1))
	require.Error(t, err)
	assert.Equal(t, ErrMessageTooLarge, errors.Cause(err))
	assert.True(t, errors.IsNotValid(err))
	assert.Len(t, f.tr.out, 1, "oversized message must not reach transport")
}

func TestWorstCaseFits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.link.IP = "255.255.255.255"
	extreme := float32(-math.MaxFloat32)
	f.station.Data = types.StationData{
		FWDate:             strings.Repeat("D", 31),
		FWVersion:          strings.Repeat("V", 31),
		InsideTemperature:  extreme,
		InsideHumidity:     255,
		OutsideTemperature: extreme,
		OutsideHumidity:    255,
		BarometricPressure: extreme,
		BarometricTrend:    -128,
		DewPoint:           extreme,
		RainRate:           extreme,
		Rain24Hrs:          extreme,
		RainDaily:          extreme,
		ForecastIcons:      255,
	}
	f.station.Settings.UpdateIntervalSec = math.MaxUint16
	f.clock.ready = true
	f.clock.epoch = math.MaxInt64
	f.activate(t)

	assert.NoError(t, f.tele.SendConfig())
	assert.NoError(t, f.tele.SendState())
	require.Len(t, f.tr.out, 2)
	for _, p := range f.tr.out {
		assert.LessOrEqual(t, PacketSize(p.Topic, []byte(p.Payload)), tele_config.DefaultMaxPacketSize)
	}
}

func TestTopics(t *testing.T) {
	t.Parallel()

	ts := NewTopics("", "")
	assert.Equal(t, "WeatherStation/DavisReader", ts.State)
	assert.Equal(t, "WeatherStation/DavisReader/raw_loop2", ts.RawLoop2)
	ts = NewTopics("Weather", "Roof")
	assert.Equal(t, []string{"Weather/Roof/set", "Weather/Roof/cmd_raw", "Weather/Roof/cmd"}, ts.Subscriptions())
	assert.Equal(t, "Weather/Roof/resp_raw", ts.RespRaw)
}
