package tele

const (
	DefaultDeviceType = "WeatherStation"
	DefaultDeviceName = "DavisReader"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics are rooted at <device type>/<device name>.
type Topics struct {
	State    string // root, retained JSON state
	Status   string
	Set      string
	Config   string
	CmdRaw   string
	Cmd      string
	Archive  string
	RespRaw  string
	Resp     string
	RawLoop  string
	RawLoop2 string
}

func NewTopics(deviceType, deviceName string) Topics {
	if deviceType == "" {
		deviceType = DefaultDeviceType
	}
	if deviceName == "" {
		deviceName = DefaultDeviceName
	}
	root := deviceType + "/" + deviceName
	return Topics{
		State:    root,
		Status:   root + "/status",
		Set:      root + "/set",
		Config:   root + "/config",
		CmdRaw:   root + "/cmd_raw",
		Cmd:      root + "/cmd",
		Archive:  root + "/archive",
		RespRaw:  root + "/resp_raw",
		Resp:     root + "/resp",
		RawLoop:  root + "/raw_loop",
		RawLoop2: root + "/raw_loop2",
	}
}

// Subscriptions in order of subscribe after every successful connect.
func (t Topics) Subscriptions() []string {
	return []string{t.Set, t.CmdRaw, t.Cmd}
}
