package state

import (
	"math"
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/wxlink/helpers"
	"github.com/temoto/wxlink/internal/indicator"
	"github.com/temoto/wxlink/internal/link"
	"github.com/temoto/wxlink/internal/ota"
	tele_config "github.com/temoto/wxlink/internal/tele/config"
	"github.com/temoto/wxlink/internal/timesync"
	"github.com/temoto/wxlink/internal/types"
	"github.com/temoto/wxlink/log2"
)

const DefaultTickMs = 10

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Device struct {
		Type string `hcl:"type"`
		Name string `hcl:"name"`
	} `hcl:"device"`
	Link     link.Config        `hcl:"link"`
	Tele     tele_config.Config `hcl:"tele"`
	OTA      ota.Config         `hcl:"ota"`
	Time     timesync.Config    `hcl:"time"`
	Hardware struct {
		StatusLed indicator.Config `hcl:"status_led"`
	} `hcl:"hardware"`
	Station struct {
		UpdateIntervalSec int `hcl:"update_interval_sec"`
	} `hcl:"station"`
	TickMs int `hcl:"tick_ms"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Validate checks values and fills defaults.
func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.Device.Type == "" {
		errs = append(errs, errors.NotValidf("config: device.type empty"))
	}
	if c.Device.Name == "" {
		errs = append(errs, errors.NotValidf("config: device.name empty"))
	}
	if c.Tele.MqttBroker == "" {
		errs = append(errs, errors.NotValidf("config: tele.mqtt_broker empty"))
	}
	if c.Tele.MaxPacketSize < 0 {
		errs = append(errs, errors.NotValidf("config: tele.max_packet_size=%d", c.Tele.MaxPacketSize))
	}
	if c.OTA.Enable && c.OTA.Dir == "" {
		errs = append(errs, errors.NotValidf("config: ota.dir empty"))
	}
	if x := c.Station.UpdateIntervalSec; x < 0 || x > math.MaxUint16 {
		errs = append(errs, errors.NotValidf("config: station.update_interval_sec=%d", x))
	}
	if c.TickMs < 0 {
		errs = append(errs, errors.NotValidf("config: tick_ms=%d", c.TickMs))
	}
	if c.TickMs == 0 {
		c.TickMs = DefaultTickMs
	}
	if c.Station.UpdateIntervalSec == 0 {
		c.Station.UpdateIntervalSec = types.DefaultUpdateIntervalSec
	}
	if c.OTA.Hostname == "" {
		c.OTA.Hostname = c.Device.Name
	}
	c.Tele.DeviceType = c.Device.Type
	c.Tele.DeviceName = c.Device.Name
	return helpers.FoldErrors(errs)
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
