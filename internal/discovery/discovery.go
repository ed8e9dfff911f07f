// Package discovery finds a running coordinator on the local network via
// mDNS, or through a global HTTP registry when workers and the coordinator
// aren't on the same LAN.
package discovery

import (
	"crypto/sha256"
	"fmt"
)

// ServiceType is the mDNS service type a coordinator advertises under.
// Distinct types per transport let a worker only ever discover a coordinator
// it can actually dial.
const (
	ServiceTypeTCP  = "_flockd._tcp"
	ServiceTypeQUIC = "_flockd._quic"
)

// ComputeHash returns the SHA256 hex digest of a batch code, used in mDNS
// TXT records so a worker can confirm it found the coordinator it was told
// to join, not merely some other flockd coordinator on the same LAN.
func ComputeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return fmt.Sprintf("%x", sum)
}
