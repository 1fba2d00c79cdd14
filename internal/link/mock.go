package link

// Mock is Linker for tests, controlled by exported fields.
type Mock struct {
	Up       bool
	IP       string
	BeginErr error
	Begins   int
	LastSSID string
	LastPass string
	OnBegin  func(*Mock)
}

var _ Linker = &Mock{}

func (self *Mock) Begin(ssid, password string) error {
	self.Begins++
	self.LastSSID, self.LastPass = ssid, password
	if self.OnBegin != nil {
		self.OnBegin(self)
	}
	return self.BeginErr
}

func (self *Mock) Connected() bool { return self.Up }

func (self *Mock) LocalIP() string {
	if !self.Up {
		return ""
	}
	return self.IP
}
