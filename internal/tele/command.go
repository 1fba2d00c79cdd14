package tele

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/wxlink/internal/types"
)

const (
	CommandGetArchive = "get_archive"
	CommandGetTime    = "get_time"
	CommandSetTime    = "set_time"

	settingUpdateInterval = "UpdateIntervalSec"
)

var jsonNull = []byte("null")

func (self *Tele) onMessage(topic string, payload []byte) {
	self.log.Debugf("tele message topic=%s payload=%q", topic, payload)
	switch topic {
	case self.topics.Set:
		if err := parseSettings(payload, &self.station.Settings); err != nil {
			self.log.Error(errors.Annotate(err, "tele set rejected"))
			return
		}
		_ = self.SendConfig()

	case self.topics.CmdRaw:
		self.station.Command.Set(payload)

	case self.topics.Cmd:
		if err := parseCommand(payload, &self.station.Request); err != nil {
			self.log.Error(errors.Annotate(err, "tele cmd"))
		}

	default:
		self.log.Debugf("tele message ignored topic=%s", topic)
	}
}

// parseSettings applies known keys of JSON object only if all of them are valid.
func parseSettings(payload []byte, s *types.Settings) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return errors.NotValidf("settings json: %v", err)
	}
	if m == nil {
		return errors.NotValidf("settings json null")
	}
	next := *s
	if raw, ok := m[settingUpdateInterval]; ok {
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			return errors.NotValidf("settings %s=null", settingUpdateInterval)
		}
		if err := json.Unmarshal(raw, &next.UpdateIntervalSec); err != nil {
			return errors.NotValidf("settings %s=%s", settingUpdateInterval, raw)
		}
	}
	*s = next
	return nil
}

// parseCommand matches command prefix, case sensitive.
// Unknown commands are ignored.
func parseCommand(payload []byte, r *types.DateTimeRequest) error {
	switch {
	case bytes.HasPrefix(payload, []byte(CommandGetArchive)):
		if t, ok := scanDateTime(payload, CommandGetArchive); ok {
			r.Time = t
			r.ArchiveSince, r.ArchiveAll = true, false
		} else {
			r.ArchiveSince, r.ArchiveAll = false, true
		}

	case bytes.HasPrefix(payload, []byte(CommandGetTime)):
		r.GetTime = true

	case bytes.HasPrefix(payload, []byte(CommandSetTime)):
		t, ok := scanDateTime(payload, CommandSetTime)
		if !ok {
			return errors.NotValidf("%s timestamp %q", CommandSetTime, payload)
		}
		r.Time = t
		r.SetTime = true
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

// scanDateTime reads "<prefix> Y-M-D h:m:s", all six fields required.
// Values are truncated to field width without range check.
func scanDateTime(payload []byte, prefix string) (types.DateTime, bool) {
	var year, month, day, hour, minute, second int
	// line breaks separate fields like spaces
	s := lineBreaks.Replace(string(payload))
	n, _ := fmt.Sscanf(s, prefix+" %d-%d-%d %d:%d:%d",
		&year, &month, &day, &hour, &minute, &second)
	if n != 6 {
		return types.DateTime{}, false
	}
	return types.DateTime{
		Year:   uint16(year),
		Month:  uint8(month),
		Day:    uint8(day),
		Hour:   uint8(hour),
		Minute: uint8(minute),
		Second: uint8(second),
	}, true
}
