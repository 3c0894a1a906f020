package announcer

import (
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"
)

// Config describes what to announce and where.
type Config struct {
	// LocalAddr is the address advertised in the beacon.
	LocalAddr string
	// Port is the advertised listening port.
	Port int
	// BroadcastAddr is where beacons are sent, usually a broadcast address.
	BroadcastAddr string
	// BroadcastPort defaults to Port when zero.
	BroadcastPort int
	Interval      time.Duration
	PublicKey     string
}

// Conn is the write side of a connected datagram socket.
type Conn interface {
	Write(b []byte) (int, error)
	Close() error
}

// Dialer opens the send socket. A new socket is dialed on every Start.
type Dialer interface {
	Dial(dst netip.AddrPort) (Conn, error)
}

type DialerFunc func(dst netip.AddrPort) (Conn, error)

func (f DialerFunc) Dial(dst netip.AddrPort) (Conn, error) {
	return f(dst)
}

// UDPDialer connects a UDP socket to the destination.
var UDPDialer Dialer = DialerFunc(dialUDP)

func dialUDP(dst netip.AddrPort) (Conn, error) {
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(dst))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Option func(*Announcer)

func WithLogger(log *slog.Logger) Option {
	return func(a *Announcer) {
		a.log = log
	}
}

// WithObserver adds an observer. Events always reach the logger as well.
func WithObserver(obs Observer) Option {
	return func(a *Announcer) {
		a.observers = append(a.observers, obs)
	}
}

func WithDialer(d Dialer) Option {
	return func(a *Announcer) {
		a.dialer = d
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
