package announcer

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"announce/internal/util/logger/sl"
)

// Event is emitted by the broadcast loop. Every event knows how it should be
// logged.
type Event interface {
	log() (slog.Level, string, []any)
}

// LoopStartedEvent is emitted once the loop goroutine begins.
type LoopStartedEvent struct {
	Destination netip.AddrPort
	Interval    time.Duration
}

func (e LoopStartedEvent) log() (slog.Level, string, []any) {
	return slog.LevelInfo, "Announce loop started",
		[]any{"destination", e.Destination.String(), "interval", e.Interval.String()}
}

// BeaconSentEvent is emitted after every successful send.
type BeaconSentEvent struct {
	Destination netip.AddrPort
	Payload     []byte
}

func (e BeaconSentEvent) log() (slog.Level, string, []any) {
	return slog.LevelDebug, "Beacon sent",
		[]any{"destination", e.Destination.String(), "payload", string(e.Payload)}
}

// SendErrorEvent is emitted when a send fails. The loop keeps going unless
// the error is fatal, in which case a LoopStoppedEvent follows.
type SendErrorEvent struct {
	Destination netip.AddrPort
	Err         error
}

func (e SendErrorEvent) log() (slog.Level, string, []any) {
	return slog.LevelWarn, "Beacon send failed",
		[]any{"destination", e.Destination.String(), sl.Err(e.Err)}
}

// LoopStoppedEvent is emitted when the loop goroutine exits. Err is nil when
// the loop was stopped by Stop.
type LoopStoppedEvent struct {
	Destination netip.AddrPort
	Err         error
}

func (e LoopStoppedEvent) log() (slog.Level, string, []any) {
	if e.Err != nil {
		return slog.LevelError, "Announce loop terminated",
			[]any{"destination", e.Destination.String(), sl.Err(e.Err)}
	}
	return slog.LevelInfo, "Announce loop stopped", []any{"destination", e.Destination.String()}
}

// Observer receives loop events. Observe is called from the loop goroutine,
// one event at a time, and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Observers fans an event out to each observer in order.
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		obs.Observe(e)
	}
}

// LogObserver writes events to a slog logger.
type LogObserver struct {
	log *slog.Logger
}

func NewLogObserver(log *slog.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) Observe(e Event) {
	level, msg, attrs := e.log()
	o.log.Log(context.Background(), level, msg, attrs...)
}
