package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"

	"github.com/google/uuid"

	"announce/internal/announcer"
	"announce/internal/util/logger/sl"
)

const (
	defaultBufferSize = 1024
	// SO_RCVBUF for the beacon socket
	readBufferSize = 1024 * 1024
)

// Handler is called for every valid beacon from another node, from the
// Serve goroutine.
type Handler func(peer announcer.Identity, from netip.AddrPort)

type Config struct {
	// Addr to bind, all interfaces when empty.
	Addr string
	Port int
	// SelfKey is our own shs key; our beacons come back over broadcast and
	// are dropped.
	SelfKey    string
	BufferSize int
}

// Listener receives discovery beacons on a UDP port shared with other
// processes on the same host.
type Listener struct {
	conn    *net.UDPConn
	cfg     Config
	handler Handler
	log     *slog.Logger
}

func Listen(ctx context.Context, cfg Config, handler Handler, log *slog.Logger) (*Listener, error) {
	const op = "listener.Listen"

	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%s: invalid port %d", op, cfg.Port)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	conn := pc.(*net.UDPConn)

	log = log.With(
		slog.String("op", op),
		slog.String("session", uuid.NewString()),
	)

	if err := conn.SetReadBuffer(readBufferSize); err != nil {
		log.Warn("set read buffer", sl.Err(err))
	}

	l := &Listener{
		conn:    conn,
		cfg:     cfg,
		handler: handler,
		log:     log,
	}
	log.Info("Beacon listener started", slog.String("address", l.Addr().String()))

	return l, nil
}

func (l *Listener) Addr() netip.AddrPort {
	return l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Serve reads beacons until ctx is done or the listener is closed.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer stop()

	buffer := make([]byte, l.cfg.BufferSize)
	for {
		n, src, err := l.conn.ReadFromUDPAddrPort(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info("Beacon listener stopped")
				return nil
			}
			l.log.Error("Error reading UDP", sl.Err(err))
			continue
		}

		l.process(buffer[:n], netip.AddrPortFrom(src.Addr().Unmap(), src.Port()))
	}
}

func (l *Listener) process(payload []byte, from netip.AddrPort) {
	peer, err := announcer.ParseBeacon(payload)
	if err != nil {
		l.log.Debug("Dropping datagram",
			slog.String("from", from.String()),
			sl.Err(err),
		)
		return
	}

	if peer.PublicKey == l.cfg.SelfKey {
		return
	}

	if l.handler != nil {
		l.handler(peer, from)
	}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
