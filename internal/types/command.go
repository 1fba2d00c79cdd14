package types

import "fmt"

const (
	CommandMaxSize         = 64
	CommandResponseMaxSize = 512
)

// PendingCommand holds at most one raw command for the station driver
// and its response. New command overwrites unconsumed one.
type PendingCommand struct {
	buf     [CommandMaxSize]byte
	n       int
	pending bool

	resp      [CommandResponseMaxSize]byte
	respN     int
	respReady bool
}

// Set copies payload truncated to CommandMaxSize-1 bytes, NUL terminated.
func (c *PendingCommand) Set(payload []byte) {
	n := len(payload)
	if n > CommandMaxSize-1 {
		n = CommandMaxSize - 1
	}
	copy(c.buf[:], payload[:n])
	c.buf[n] = 0
	c.n = n
	c.pending = true
}

func (c *PendingCommand) Pending() bool { return c.pending }

// Bytes returns command without terminator. Valid until next Set.
func (c *PendingCommand) Bytes() []byte { return c.buf[:c.n] }

// Raw returns the whole buffer, including terminator and stale tail.
func (c *PendingCommand) Raw() *[CommandMaxSize]byte { return &c.buf }

// Take is for station driver: returns command and clears pending flag.
func (c *PendingCommand) Take() (string, bool) {
	if !c.pending {
		return "", false
	}
	c.pending = false
	return string(c.buf[:c.n]), true
}

// SetResponse is for station driver, truncates to CommandResponseMaxSize.
func (c *PendingCommand) SetResponse(b []byte) {
	n := copy(c.resp[:], b)
	c.respN = n
	c.respReady = true
}

// TakeResponse returns response and clears ready flag.
func (c *PendingCommand) TakeResponse() ([]byte, bool) {
	if !c.respReady {
		return nil, false
	}
	c.respReady = false
	return c.resp[:c.respN], true
}

type DateTime struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// DateTimeRequest flags are set by command parser and cleared by station driver.
// Time is only meaningful together with ArchiveSince or SetTime.
type DateTimeRequest struct {
	Time         DateTime
	ArchiveAll   bool
	ArchiveSince bool
	GetTime      bool
	SetTime      bool
}

// TakeArchive returns archive request, `since` is nil for full archive.
func (r *DateTimeRequest) TakeArchive() (since *DateTime, ok bool) {
	switch {
	case r.ArchiveSince:
		r.ArchiveSince = false
		t := r.Time
		return &t, true
	case r.ArchiveAll:
		r.ArchiveAll = false
		return nil, true
	}
	return nil, false
}

func (r *DateTimeRequest) TakeGetTime() bool {
	ok := r.GetTime
	r.GetTime = false
	return ok
}

func (r *DateTimeRequest) TakeSetTime() (DateTime, bool) {
	if !r.SetTime {
		return DateTime{}, false
	}
	r.SetTime = false
	return r.Time, true
}
