package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// FindCoordinator scans the local network for a coordinator advertising
// code, returning its dial address if found before timeout.
func FindCoordinator(transportKind string, code string, timeout time.Duration) (string, error) {
	serviceType, err := serviceTypeFor(transportKind)
	if err != nil {
		return "", err
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("discovery: create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	targetHash := ComputeHash(code)

	if err := resolver.Browse(ctx, serviceType, "local.", entries); err != nil {
		return "", fmt.Errorf("discovery: browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("discovery: coordinator not found (timeout)")
		case entry := <-entries:
			if entry == nil {
				continue
			}
			for _, txt := range entry.Text {
				if !strings.HasPrefix(txt, "hash=") {
					continue
				}
				if strings.TrimPrefix(txt, "hash=") != targetHash {
					continue
				}

				var ip net.IP
				if len(entry.AddrIPv6) > 0 {
					ip = entry.AddrIPv6[0]
				} else if len(entry.AddrIPv4) > 0 {
					ip = entry.AddrIPv4[0]
				}
				if ip != nil {
					return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port)), nil
				}
			}
		}
	}
}

// LookupCloud queries the global registry for a coordinator's address when
// mDNS can't reach it (different LAN, NAT, etc).
func LookupCloud(code string) (string, error) {
	client := NewRegistryClient()
	item, err := client.Lookup(code)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", item.IP, item.Port), nil
}
