package types

// Latest station readings, written by the station driver.
// Publisher copies it by value.
type StationData struct { //nolint:maligned
	FWDate    string
	FWVersion string
	Receivers uint8

	InsideTemperature  float32
	InsideHumidity     uint8
	OutsideTemperature float32
	OutsideHumidity    uint8

	BarometricPressure float32
	BarometricTrend    int8
	DewPoint           float32

	WindSpeed     float32
	AvgWindSpeed  float32
	WindChillTemp float32
	WindDirection uint16

	ExtraTemps    [7]float32
	SoilTemps     [4]float32
	LeafTemps     [4]float32
	ExtraHumidity [7]uint8

	RainRate  float32
	Rain15min float32
	RainHour  float32
	Rain24Hrs float32
	RainDaily float32

	UVIndex        uint8
	SolarRadiation uint16

	BatteryTransmitter uint8
	BatteryConsole     float32
	ForecastIcons      uint8
	ForecastRule       uint8
	TimeSunrise        string
	TimeSunset         string
}

const DefaultUpdateIntervalSec = 60

// Settings are published as config and remotely settable, last writer wins.
type Settings struct {
	UpdateIntervalSec uint16
}

// Station is the single owner of state shared between tele and the station driver.
// Not safe for concurrent use: everything happens on the tick goroutine.
type Station struct {
	Data     StationData
	Settings Settings
	Command  PendingCommand
	Request  DateTimeRequest
}

func NewStation() *Station {
	return &Station{Settings: Settings{UpdateIntervalSec: DefaultUpdateIntervalSec}}
}

// Snapshot returns a copy safe to hold across ticks.
func (s *Station) Snapshot() StationData { return s.Data }
