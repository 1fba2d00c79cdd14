// Package link tracks network association of the device.
package link

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/wxlink/log2"
)

const DefaultAssociateTimeout = 30 * time.Second

type Linker interface {
	// Begin starts association with network. Must not block.
	Begin(ssid, password string) error
	Connected() bool
	LocalIP() string
}

type Config struct {
	Interface string `hcl:"interface"`
	SSID      string `hcl:"ssid"`
	Password  string `hcl:"password"` // secret
	Manage    bool   `hcl:"manage"`
}

// Netif reports link state from operating system network interface.
// Empty name means any non-loopback interface.
// With manage=true, Begin asks NetworkManager to associate with SSID.
type Netif struct {
	Log    *log2.Log
	Name   string
	Manage bool

	interfaces func() ([]net.Interface, error)
	command    func(ctx context.Context, name string, args ...string) *exec.Cmd
	busy       uint32
}

var _ Linker = &Netif{}

func NewNetif(log *log2.Log, c Config) *Netif {
	return &Netif{
		Log:        log,
		Name:       c.Interface,
		Manage:     c.Manage,
		interfaces: net.Interfaces,
		command:    exec.CommandContext,
	}
}

func (self *Netif) Begin(ssid, password string) error {
	if !self.Manage {
		self.Log.Debugf("link begin interface=%s managed externally", self.Name)
		return nil
	}
	if ssid == "" {
		return errors.NotValidf("link ssid empty")
	}
	if !atomic.CompareAndSwapUint32(&self.busy, 0, 1) {
		self.Log.Debugf("link begin already in progress")
		return nil
	}
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	if self.Name != "" {
		args = append(args, "ifname", self.Name)
	}
	go func() {
		defer atomic.StoreUint32(&self.busy, 0)
		ctx, cancel := context.WithTimeout(context.Background(), DefaultAssociateTimeout)
		defer cancel()
		out, err := self.command(ctx, "nmcli", args...).CombinedOutput()
		if err != nil {
			self.Log.Error(errors.Annotatef(err, "link associate ssid=%s output=%s", ssid, strings.TrimSpace(string(out))))
			return
		}
		self.Log.Infof("link associate ssid=%s: %s", ssid, strings.TrimSpace(string(out)))
	}()
	return nil
}

func (self *Netif) Connected() bool { return self.LocalIP() != "" }

// LocalIP returns first IPv4 address of matching interface that is up.
func (self *Netif) LocalIP() string {
	ifs, err := self.interfaces()
	if err != nil {
		self.Log.Debugf("link interfaces err=%v", err)
		return ""
	}
	for _, iface := range ifs {
		if self.Name == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if self.Name != "" && iface.Name != self.Name {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					return ip4.String()
				}
			}
		}
	}
	return ""
}
