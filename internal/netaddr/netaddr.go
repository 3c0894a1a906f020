// Package netaddr picks the address to advertise and the broadcast address
// to announce to when they are not configured explicitly.
package netaddr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var (
	ErrNoAddress   = errors.New("no active IPv4 address found")
	ErrNoBroadcast = errors.New("no broadcast address for prefix")
)

type ifacePrefix struct {
	prefix   netip.Prefix
	loopback bool
}

// interfacePrefixes lists the IPv4 prefixes of every interface that is up.
func interfacePrefixes() ([]ifacePrefix, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []ifacePrefix
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if p, ok := prefixFromIPNet(ipNet); ok {
				out = append(out, ifacePrefix{
					prefix:   p,
					loopback: iface.Flags&net.FlagLoopback != 0 || p.Addr().IsLoopback(),
				})
			}
		}
	}
	return out, nil
}

// LocalIPv4 returns the address and prefix of the first interface that is
// up, not a loopback and has an IPv4 address.
func LocalIPv4() (netip.Prefix, error) {
	prefixes, err := interfacePrefixes()
	if err != nil {
		return netip.Prefix{}, err
	}
	return firstNonLoopback(prefixes)
}

func firstNonLoopback(prefixes []ifacePrefix) (netip.Prefix, error) {
	for _, p := range prefixes {
		if !p.loopback {
			return p.prefix, nil
		}
	}
	return netip.Prefix{}, ErrNoAddress
}

// PrefixOf returns the interface prefix that carries addr.
func PrefixOf(addr netip.Addr) (netip.Prefix, error) {
	prefixes, err := interfacePrefixes()
	if err != nil {
		return netip.Prefix{}, err
	}
	return prefixOf(prefixes, addr)
}

func prefixOf(prefixes []ifacePrefix, addr netip.Addr) (netip.Prefix, error) {
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.prefix.Addr() == addr {
			return p.prefix, nil
		}
	}
	return netip.Prefix{}, fmt.Errorf("%w: %s is not on any interface", ErrNoAddress, addr)
}

func prefixFromIPNet(ipNet *net.IPNet) (netip.Prefix, bool) {
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return netip.Prefix{}, false
	}
	addr, ok := netip.AddrFromSlice(ip4)
	if !ok {
		return netip.Prefix{}, false
	}
	ones, bits := ipNet.Mask.Size()
	if bits != 32 {
		// IPv4 address carried with a 16 byte mask
		ones -= bits - 32
	}
	if ones < 0 {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(addr, ones), true
}

// BroadcastFor returns the directed broadcast address of an IPv4 prefix.
func BroadcastFor(prefix netip.Prefix) (netip.Addr, error) {
	if !prefix.IsValid() || !prefix.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoBroadcast, prefix)
	}

	a4 := prefix.Addr().As4()
	host := uint32(0xffffffff) >> prefix.Bits()
	binary.BigEndian.PutUint32(a4[:], binary.BigEndian.Uint32(a4[:])|host)
	return netip.AddrFrom4(a4), nil
}

// Resolve fills in whichever of local and broadcast is empty. Without a
// local address the first usable interface is advertised; the broadcast
// address is that of the subnet the local address lives on.
func Resolve(local, broadcast string) (string, string, error) {
	return resolve(local, broadcast, interfacePrefixes)
}

func resolve(local, broadcast string, lookup func() ([]ifacePrefix, error)) (string, string, error) {
	const op = "netaddr.Resolve"

	if local != "" && broadcast != "" {
		return local, broadcast, nil
	}

	prefixes, err := lookup()
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	var prefix netip.Prefix
	if local == "" {
		prefix, err = firstNonLoopback(prefixes)
		if err != nil {
			return "", "", fmt.Errorf("%s: %w", op, err)
		}
		local = prefix.Addr().String()
	} else {
		addr, err := netip.ParseAddr(local)
		if err != nil {
			return "", "", fmt.Errorf("%s: local address %q: %w", op, local, err)
		}
		prefix, err = prefixOf(prefixes, addr)
		if err != nil {
			return "", "", fmt.Errorf("%s: %w", op, err)
		}
	}

	if broadcast == "" {
		addr, err := BroadcastFor(prefix)
		if err != nil {
			return "", "", fmt.Errorf("%s: %w", op, err)
		}
		broadcast = addr.String()
	}
	return local, broadcast, nil
}
