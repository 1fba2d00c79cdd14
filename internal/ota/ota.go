// Package ota accepts firmware images over HTTP while network link is up.
package ota

import (
	"crypto/subtle"
	"expvar"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/extremofile"
	"github.com/temoto/wxlink/helpers"
	"github.com/temoto/wxlink/log2"
)

const (
	DefaultListen  = ":8266"
	DefaultMaxSize = 16 << 20
	UpdatePath     = "/update"
)

var statReceived = expvar.NewInt("ota_received_bytes")

type Updater interface {
	// Begin starts accepting updates. Safe to call on every link reconnect.
	Begin() error
	// Handle is called every tick while link is up, reports transfer in progress.
	Handle() bool
}

type Config struct {
	Enable   bool   `hcl:"enable"`
	Listen   string `hcl:"listen"`
	Hostname string `hcl:"hostname"`
	Password string `hcl:"password"` // secret
	Dir      string `hcl:"dir"`
	MaxSize  int    `hcl:"max_size"`
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

type Result struct {
	Size     int
	Duration time.Duration
	Err      error
}

type HTTP struct {
	log      *log2.Log
	config   Config
	alive    *alive.Alive
	storage  storage
	received *expvar.Int
	results  chan Result
	active   int32
	started  uint32

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

var _ Updater = &HTTP{}

func NewHTTP(log *log2.Log, c Config) (*HTTP, error) {
	if c.Dir == "" {
		return nil, errors.NotValidf("ota.dir empty")
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	self := &HTTP{
		log:    log,
		config: c,
		alive:  alive.NewAlive(),
		storage: extremofile.New(extremofile.Config{
			Dir:      c.Dir,
			DirPerm:  0755,
			FilePerm: 0644,
		}),
		received: statReceived,
		results:  make(chan Result, 4),
	}
	return self, nil
}

func (self *HTTP) Begin() error {
	if !atomic.CompareAndSwapUint32(&self.started, 0, 1) {
		return nil
	}
	ln, err := net.Listen("tcp", self.config.Listen)
	if err != nil {
		atomic.StoreUint32(&self.started, 0)
		return errors.Annotatef(err, "ota listen=%s", self.config.Listen)
	}
	mux := http.NewServeMux()
	mux.Handle(UpdatePath, self)
	self.mu.Lock()
	self.listener = ln
	self.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	server := self.server
	self.mu.Unlock()
	self.log.Infof("ota listen=%s", ln.Addr())

	if !self.alive.Add(1) {
		_ = ln.Close()
		return errors.Errorf("ota already stopped")
	}
	go func() {
		defer self.alive.Done()
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			self.log.Error(errors.Annotate(err, "ota serve"))
		}
	}()
	go func() {
		<-self.alive.StopChan()
		_ = server.Close()
	}()
	return nil
}

func (self *HTTP) Handle() bool {
	for {
		select {
		case r := <-self.results:
			if r.Err != nil {
				self.log.Error(errors.Annotate(r.Err, "ota update"))
			} else {
				self.log.Infof("ota update stored size=%d duration=%v dir=%s", r.Size, r.Duration, self.config.Dir)
			}
		default:
			return atomic.LoadInt32(&self.active) > 0
		}
	}
}

// Addr returns listen address after Begin.
func (self *HTTP) Addr() net.Addr {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.listener == nil {
		return nil
	}
	return self.listener.Addr()
}

func (self *HTTP) Image() ([]byte, error) { return self.storage.Read() }

func (self *HTTP) Close() {
	self.alive.Stop()
	self.alive.Wait()
}

func (self *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !self.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="ota"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	atomic.AddInt32(&self.active, 1)
	defer atomic.AddInt32(&self.active, -1)

	tbegin := time.Now()
	body := http.MaxBytesReader(w, r.Body, int64(self.config.MaxSize))
	b, err := io.ReadAll(helpers.NewStatReader(body, self.received, 0))
	if err == nil && len(b) == 0 {
		err = errors.NotValidf("empty image")
	}
	if err == nil {
		_, err = self.storage.Write(b)
	}
	result := Result{Size: len(b), Duration: time.Since(tbegin), Err: err}
	select {
	case self.results <- result:
	default:
	}
	if err != nil {
		code := http.StatusInternalServerError
		if errors.IsNotValid(err) {
			code = http.StatusBadRequest
		} else if _, ok := err.(*http.MaxBytesError); ok {
			code = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), code)
		return
	}
	fmt.Fprintf(w, "OK %d\n", len(b))
}

func (self *HTTP) authorized(r *http.Request) bool {
	if self.config.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	u := subtle.ConstantTimeCompare([]byte(user), []byte(self.config.Hostname))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(self.config.Password))
	return u&p == 1
}

type Noop struct{}

var _ Updater = Noop{}

func (Noop) Begin() error { return nil }
func (Noop) Handle() bool { return false }
