// Package announcer periodically broadcasts a Secret-Handshake discovery
// beacon (net:<ip>:<port>~shs:<key>) over UDP so peers on the local network
// can find this node.
package announcer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"announce/internal/util/logger/sl"
)

// State of an Announcer.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Announcer sends the beacon for an Identity to a destination every interval
// while running. It can be started and stopped any number of times.
type Announcer struct {
	identity Identity
	dest     netip.AddrPort
	interval time.Duration

	dialer    Dialer
	log       *slog.Logger
	observers Observers

	mu sync.Mutex
	// run stays set until the loop goroutine has fully exited, so a new
	// loop never overlaps a retiring one.
	run *loop
}

// loop is one Start..Stop cycle. The goroutine owns conn exclusively.
type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error // set before done is closed

	stopping bool // guarded by Announcer.mu
}

// New validates cfg and prepares an idle announcer. It does no network I/O.
func New(cfg Config, opts ...Option) (*Announcer, error) {
	const op = "announcer.New"

	local, err := netip.ParseAddr(cfg.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("%s: local address %q: %w", op, cfg.LocalAddr, ErrInvalidAddress)
	}
	broadcast, err := netip.ParseAddr(cfg.BroadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("%s: broadcast address %q: %w", op, cfg.BroadcastAddr, ErrInvalidAddress)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%s: %s: %w", op, cfg.Interval, ErrInvalidInterval)
	}

	if cfg.BroadcastPort == 0 {
		cfg.BroadcastPort = cfg.Port
	}
	if !validPort(cfg.Port) {
		return nil, fmt.Errorf("%s: port %d: %w", op, cfg.Port, ErrInvalidPort)
	}
	if !validPort(cfg.BroadcastPort) {
		return nil, fmt.Errorf("%s: broadcast port %d: %w", op, cfg.BroadcastPort, ErrInvalidPort)
	}
	if cfg.PublicKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPublicKey)
	}

	a := &Announcer{
		identity: Identity{
			Addr:      local,
			Port:      uint16(cfg.Port),
			PublicKey: cfg.PublicKey,
		},
		dest:     netip.AddrPortFrom(broadcast, uint16(cfg.BroadcastPort)),
		interval: cfg.Interval,
		dialer:   UDPDialer,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = discardLogger()
	}
	a.log = a.log.With(slog.String("component", "announcer"))
	a.observers = append(Observers{NewLogObserver(a.log)}, a.observers...)

	return a, nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func (a *Announcer) Identity() Identity {
	return a.identity
}

func (a *Announcer) Destination() netip.AddrPort {
	return a.dest
}

func (a *Announcer) Interval() time.Duration {
	return a.interval
}

func (a *Announcer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.run == nil {
		return StateIdle
	}
	return StateRunning
}

func (a *Announcer) Running() bool {
	return a.State() == StateRunning
}

// Start dials the destination and launches the broadcast loop. It returns
// ErrAlreadyRunning if the loop is already running.
func (a *Announcer) Start() error {
	_, err := a.start()
	return err
}

func (a *Announcer) start() (*loop, error) {
	const op = "announcer.Start"

	a.mu.Lock()
	for a.run != nil {
		prev := a.run
		if !prev.stopping {
			a.mu.Unlock()
			return nil, ErrAlreadyRunning
		}
		// wait for the retiring loop to finish its last send
		a.mu.Unlock()
		<-prev.done
		a.mu.Lock()
	}
	defer a.mu.Unlock()

	conn, err := a.dialer.Dial(a.dest)
	if err != nil {
		return nil, fmt.Errorf("%s: dial %s: %w", op, a.dest, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.run = l

	go a.broadcast(ctx, l, conn)

	return l, nil
}

// Stop cancels the broadcast loop and waits for it to exit, so no beacon is
// sent after Stop returns. It returns ErrNotRunning if the loop is not
// running or is already being stopped.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	l := a.run
	if l == nil {
		a.mu.Unlock()
		return ErrNotRunning
	}
	if l.stopping {
		a.mu.Unlock()
		<-l.done
		return ErrNotRunning
	}
	l.stopping = true
	a.mu.Unlock()

	l.cancel()
	<-l.done

	return nil
}

// Close stops the announcer if it is running. It never fails; owners should
// defer it right after New.
func (a *Announcer) Close() error {
	if err := a.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		a.log.Warn("Stop on close failed", sl.Err(err))
	}
	return nil
}

// Run starts the announcer and blocks until ctx is done, then stops it. If
// the loop terminates on its own Run returns the cause.
func (a *Announcer) Run(ctx context.Context) error {
	l, err := a.start()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-l.done:
		return l.err
	}

	if err := a.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

func (a *Announcer) broadcast(ctx context.Context, l *loop, conn Conn) {
	defer func() {
		a.mu.Lock()
		l.stopping = true
		a.mu.Unlock()

		l.cancel()
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.log.Debug("Close send socket", sl.Err(err))
		}

		// observers hear the stop before a new loop can start
		a.observers.Observe(LoopStoppedEvent{Destination: a.dest, Err: l.err})

		a.mu.Lock()
		a.run = nil
		a.mu.Unlock()

		close(l.done)
	}()

	a.observers.Observe(LoopStartedEvent{Destination: a.dest, Interval: a.interval})

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload := a.identity.Beacon()
		if _, err := conn.Write(payload); err != nil {
			a.observers.Observe(SendErrorEvent{Destination: a.dest, Err: err})
			if isFatal(err) {
				l.err = err
				return
			}
		} else {
			a.observers.Observe(BeaconSentEvent{Destination: a.dest, Payload: payload})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// isFatal reports whether the socket is unusable. Anything else, like an
// unreachable network, is retried on the next tick.
func isFatal(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
