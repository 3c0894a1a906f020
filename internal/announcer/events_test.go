package announcer

import (
	"bytes"
	"errors"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewLogObserver(log)
	dst := netip.MustParseAddrPort("10.0.0.255:8008")

	obs.Observe(BeaconSentEvent{Destination: dst, Payload: []byte("net:10.0.0.5:8008~shs:abc")})
	assert.Empty(t, buf.String(), "beacons are logged at debug level")

	obs.Observe(SendErrorEvent{Destination: dst, Err: errors.New("network is unreachable")})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "network is unreachable")

	buf.Reset()
	obs.Observe(LoopStoppedEvent{Destination: dst, Err: errors.New("use of closed network connection")})
	assert.Contains(t, buf.String(), "level=ERROR")

	buf.Reset()
	obs.Observe(LoopStoppedEvent{Destination: dst})
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "10.0.0.255:8008")
}

func TestObservers(t *testing.T) {
	var got []string
	first := ObserverFunc(func(e Event) { got = append(got, "first") })
	second := ObserverFunc(func(e Event) { got = append(got, "second") })

	Observers{first, second}.Observe(LoopStartedEvent{})

	assert.Equal(t, []string{"first", "second"}, got)
}
