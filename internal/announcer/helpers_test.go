package announcer

import (
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockDialer implements Dialer for expectation based tests
type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) Dial(dst netip.AddrPort) (Conn, error) {
	args := m.Called(dst)
	conn, _ := args.Get(0).(Conn)
	return conn, args.Error(1)
}

// fakeConn records every payload written to it. fail decides the outcome of
// the n-th write attempt.
type fakeConn struct {
	mu       sync.Mutex
	dst      netip.AddrPort
	writes   [][]byte
	attempts int
	closed   bool
	fail     func(n int) error
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}

	n := c.attempts
	c.attempts++
	if c.fail != nil {
		if err := c.fail(n); err != nil {
			return 0, err
		}
	}

	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return net.ErrClosed
	}
	c.closed = true
	return nil
}

func (c *fakeConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out a new fakeConn per Dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  func(n int) error
}

func (d *fakeDialer) Dial(dst netip.AddrPort) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn := &fakeConn{dst: dst, fail: d.fail}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*fakeConn, len(d.conns))
	copy(out, d.conns)
	return out
}

func (d *fakeDialer) Last() *fakeConn {
	conns := d.Conns()
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func countEvents[T Event](events []Event) int {
	n := 0
	for _, e := range events {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}

// sendTracker counts writes in flight across every conn it dials. The first
// conn's first write blocks for block.
type sendTracker struct {
	block time.Duration

	mu       sync.Mutex
	dials    int
	inFlight int
	maxSeen  int
	writing  chan struct{}
}

func newSendTracker(block time.Duration) *sendTracker {
	return &sendTracker{block: block, writing: make(chan struct{})}
}

func (s *sendTracker) Dial(dst netip.AddrPort) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++
	return &trackedConn{tracker: s, slow: s.dials == 1}, nil
}

func (s *sendTracker) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

type trackedConn struct {
	tracker *sendTracker
	slow    bool
	writes  int
}

func (c *trackedConn) Write(b []byte) (int, error) {
	s := c.tracker
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	if c.slow && c.writes == 0 {
		close(s.writing)
		time.Sleep(s.block)
	}
	c.writes++

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return len(b), nil
}

func (c *trackedConn) Close() error {
	return nil
}
