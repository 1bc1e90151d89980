package connectivity

import (
	"net"
	"sync"
	"time"
)

const (
	defaultProbeAddr     = "1.1.1.1:53"
	defaultProbeInterval = 3 * time.Second
	probeTimeout         = 2 * time.Second
)

// PollingSource detects default-network availability by periodically dialing
// a probe address. It is the fallback for hosts without a native
// connectivity notification API.
type PollingSource struct {
	probeAddr string
	interval  time.Duration

	mu       sync.Mutex
	listener Listener
	online   bool
	done     chan struct{}
}

// NewPollingSource creates a source probing addr every interval. Zero values
// select the defaults.
func NewPollingSource(addr string, interval time.Duration) *PollingSource {
	if addr == "" {
		addr = defaultProbeAddr
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	return &PollingSource{
		probeAddr: addr,
		interval:  interval,
	}
}

// Register implements Source. The first probe result is always delivered as
// a transition so the listener learns the initial state.
func (s *PollingSource) Register(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(done)
}

// Unregister implements Source.
func (s *PollingSource) Unregister() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.listener = nil
}

func (s *PollingSource) loop(done chan struct{}) {
	first := true

	for {
		online, network := s.probe()

		s.mu.Lock()
		l := s.listener
		changed := first || online != s.online
		s.online = online
		s.mu.Unlock()

		first = false

		if changed && l != nil {
			if online {
				l.Available(network)
			} else {
				l.Lost(network)
			}
		}

		select {
		case <-done:
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *PollingSource) probe() (bool, Network) {
	conn, err := net.DialTimeout("udp", s.probeAddr, probeTimeout)
	if err != nil {
		return false, Network{}
	}

	local := conn.LocalAddr().String()
	conn.Close()

	return true, Network{Name: local}
}
