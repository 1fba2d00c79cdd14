// Separate package is workaround to import cycles.
package tele_config

const (
	DefaultKeepaliveSec      = 15
	DefaultNetworkTimeoutSec = 3
	DefaultConnectRetryMs    = 5000
	DefaultReconnectMs       = 1000
	DefaultMaxPacketSize     = 640
	DefaultInboxSize         = 16
)

type Config struct { //nolint:maligned
	LogDebug          bool   `hcl:"log_debug"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	MqttUsername      string `hcl:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password"` // secret
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	ConnectRetryMs    int    `hcl:"connect_retry_ms"`
	ReconnectMs       int    `hcl:"reconnect_ms"`
	MaxPacketSize     int    `hcl:"max_packet_size"`
	InboxSize         int    `hcl:"inbox_size"`

	DeviceType string `hcl:"-"`
	DeviceName string `hcl:"-"`
}
