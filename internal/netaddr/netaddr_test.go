package netaddr

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastFor(t *testing.T) {
	tests := []struct {
		prefix   string
		expected string
	}{
		{prefix: "10.0.0.5/24", expected: "10.0.0.255"},
		{prefix: "192.168.1.20/16", expected: "192.168.255.255"},
		{prefix: "172.16.5.4/20", expected: "172.16.15.255"},
		{prefix: "10.1.2.3/8", expected: "10.255.255.255"},
		{prefix: "10.1.2.3/32", expected: "10.1.2.3"},
		{prefix: "10.1.2.3/0", expected: "255.255.255.255"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			addr, err := BroadcastFor(netip.MustParsePrefix(tt.prefix))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr.String())
		})
	}
}

func TestBroadcastFor_IPv6(t *testing.T) {
	_, err := BroadcastFor(netip.MustParsePrefix("fe80::1/64"))
	assert.ErrorIs(t, err, ErrNoBroadcast)

	_, err = BroadcastFor(netip.Prefix{})
	assert.ErrorIs(t, err, ErrNoBroadcast)
}

func TestPrefixFromIPNet(t *testing.T) {
	p, ok := prefixFromIPNet(&net.IPNet{
		IP:   net.ParseIP("192.168.1.20"),
		Mask: net.CIDRMask(24, 32),
	})
	require.True(t, ok)
	assert.Equal(t, netip.MustParsePrefix("192.168.1.20/24"), p)

	p, ok = prefixFromIPNet(&net.IPNet{
		IP:   net.ParseIP("192.168.1.20"),
		Mask: net.CIDRMask(120, 128),
	})
	require.True(t, ok)
	assert.Equal(t, 24, p.Bits())

	_, ok = prefixFromIPNet(&net.IPNet{
		IP:   net.ParseIP("fe80::1"),
		Mask: net.CIDRMask(64, 128),
	})
	assert.False(t, ok)
}

func TestResolve_Explicit(t *testing.T) {
	local, broadcast, err := Resolve("10.0.0.5", "10.0.0.255")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", local)
	assert.Equal(t, "10.0.0.255", broadcast)
}

func testPrefixes() ([]ifacePrefix, error) {
	return []ifacePrefix{
		{prefix: netip.MustParsePrefix("127.0.0.1/8"), loopback: true},
		{prefix: netip.MustParsePrefix("192.168.1.20/24")},
		{prefix: netip.MustParsePrefix("10.0.0.5/16")},
	}, nil
}

func TestResolve_FromInterfaces(t *testing.T) {
	tests := []struct {
		name          string
		local         string
		broadcast     string
		wantLocal     string
		wantBroadcast string
		wantErr       error
	}{
		{
			name:          "nothing configured",
			wantLocal:     "192.168.1.20",
			wantBroadcast: "192.168.1.255",
		},
		{
			name:          "broadcast follows the local subnet",
			local:         "10.0.0.5",
			wantLocal:     "10.0.0.5",
			wantBroadcast: "10.0.255.255",
		},
		{
			name:          "loopback when asked for",
			local:         "127.0.0.1",
			wantLocal:     "127.0.0.1",
			wantBroadcast: "127.255.255.255",
		},
		{
			name:          "explicit broadcast kept",
			broadcast:     "255.255.255.255",
			wantLocal:     "192.168.1.20",
			wantBroadcast: "255.255.255.255",
		},
		{
			name:    "local not on any interface",
			local:   "172.16.0.9",
			wantErr: ErrNoAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, broadcast, err := resolve(tt.local, tt.broadcast, testPrefixes)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocal, local)
			assert.Equal(t, tt.wantBroadcast, broadcast)
		})
	}
}

func TestResolve_InvalidLocal(t *testing.T) {
	_, _, err := resolve("nope", "", testPrefixes)
	assert.Error(t, err)
}
