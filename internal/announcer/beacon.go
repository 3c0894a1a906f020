package announcer

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const (
	netPrefix    = "net:"
	shsSeparator = "~shs:"
	// multiserver addresses may be joined with ';'
	addrSeparator = ";"
)

// Identity is what a node advertises about itself: the address and port it
// accepts connections on and its public key.
type Identity struct {
	Addr      netip.Addr
	Port      uint16
	PublicKey string
}

// String returns the beacon text net:<ip>:<port>~shs:<key>.
func (id Identity) String() string {
	var b strings.Builder
	b.Grow(len(netPrefix) + len(shsSeparator) + len(id.PublicKey) + 48)
	b.WriteString(netPrefix)
	b.WriteString(id.Addr.String())
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(id.Port), 10))
	b.WriteString(shsSeparator)
	b.WriteString(id.PublicKey)
	return b.String()
}

// Beacon returns the datagram payload for id.
func (id Identity) Beacon() []byte {
	return []byte(id.String())
}

// ParseBeacon decodes a beacon payload. When several multiserver addresses
// are present the first net: entry wins.
func ParseBeacon(payload []byte) (Identity, error) {
	for _, entry := range strings.Split(string(payload), addrSeparator) {
		if strings.HasPrefix(entry, netPrefix) {
			return parseEntry(entry)
		}
	}
	return Identity{}, fmt.Errorf("%w: no %q entry", ErrMalformedBeacon, netPrefix)
}

func parseEntry(entry string) (Identity, error) {
	hostPort, key, ok := strings.Cut(strings.TrimPrefix(entry, netPrefix), shsSeparator)
	if !ok || key == "" {
		return Identity{}, fmt.Errorf("%w: missing shs key in %q", ErrMalformedBeacon, entry)
	}

	i := strings.LastIndexByte(hostPort, ':')
	if i < 0 {
		return Identity{}, fmt.Errorf("%w: missing port in %q", ErrMalformedBeacon, entry)
	}

	addr, err := netip.ParseAddr(hostPort[:i])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedBeacon, err)
	}

	portStr := hostPort[i+1:]
	if len(portStr) > 1 && portStr[0] == '0' {
		return Identity{}, fmt.Errorf("%w: port %q has leading zeros", ErrMalformedBeacon, portStr)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Identity{}, fmt.Errorf("%w: bad port %q", ErrMalformedBeacon, portStr)
	}

	return Identity{
		Addr:      addr,
		Port:      uint16(port),
		PublicKey: key,
	}, nil
}
