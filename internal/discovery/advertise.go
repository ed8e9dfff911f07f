package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

// StartAdvertising announces a coordinator on the local network under the
// given transport's service type. It returns a shutdown function that must
// be called when the batch run ends.
func StartAdvertising(transportKind string, port int, code string, numWorkers int) (func(), error) {
	serviceType, err := serviceTypeFor(transportKind)
	if err != nil {
		return nil, err
	}

	codeHash := ComputeHash(code)
	instanceName := fmt.Sprintf("flockd-%s", codeHash[:8])

	txt := []string{
		fmt.Sprintf("hash=%s", codeHash),
		fmt.Sprintf("workers=%d", numWorkers),
	}

	server, err := zeroconf.Register(
		instanceName,
		serviceType,
		"local.",
		port,
		txt,
		nil, // all interfaces
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: register mDNS service: %w", err)
	}

	return server.Shutdown, nil
}

func serviceTypeFor(transportKind string) (string, error) {
	switch transportKind {
	case "tcp", "":
		return ServiceTypeTCP, nil
	case "quic":
		return ServiceTypeQUIC, nil
	default:
		return "", fmt.Errorf("discovery: unsupported transport %q", transportKind)
	}
}
