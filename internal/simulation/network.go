package simulation

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// LossyPacketConn wraps a net.PacketConn and injects loss/latency
type LossyPacketConn struct {
	net.PacketConn
	lossRate float64       // 0.0 to 1.0 (e.g. 0.2 = 20% loss)
	latency  time.Duration // Fixed latency per packet
	jitter   time.Duration // Random jitter +/-
	mu       sync.Mutex
	rand     *rand.Rand
}

func NewLossyPacketConn(c net.PacketConn, lossRate float64, latency time.Duration) *LossyPacketConn {
	return &LossyPacketConn{
		PacketConn: c,
		lossRate:   lossRate,
		latency:    latency,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LossyPacketConn) SetLossRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lossRate = rate
}

// WriteTo delays or drops packets
func (c *LossyPacketConn) WriteTo(p []byte, addr net.Addr) (n int, err error) {
	c.mu.Lock()
	loss := c.lossRate
	lat := c.latency
	r := c.rand.Float64()
	c.mu.Unlock()

	// 1. Simulate Loss
	if r < loss {
		// Drop packet (return success to caller so they don't know)
		return len(p), nil
	}

	// 2. Simulate Latency (in background goroutine to not block sender logic excessively,
	// although blocking might be more realistic for link congestion?
	// For UDP, non-blocking delay is better simulation of "on the wire" time)
	if lat > 0 {
		// Isolate data buffer for async
		data := make([]byte, len(p))
		copy(data, p)
		go func() {
			time.Sleep(lat)
			c.PacketConn.WriteTo(data, addr)
		}()
		return len(p), nil
	}

	return c.PacketConn.WriteTo(p, addr)
}

// ReadFrom - strictly speaking, loss/latency usually happens on the "wire" (WriteTo).
// But we could simulate inbound loss too. For now, outbound is sufficient for E2E.
func (c *LossyPacketConn) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	return c.PacketConn.ReadFrom(p)
}

// FlakyConn wraps a net.Conn and corrupts a fraction of writes, for driving
// the NACK-storm and out-of-sync retry paths in the dialog layer (recv's
// WriteAck(AckNACK)+clearBuffer retry, send's MaxNackAttempts bound).
type FlakyConn struct {
	net.Conn
	corruptRate float64 // 0.0 to 1.0
	mu          sync.Mutex
	rand        *rand.Rand
}

// NewFlakyConn wraps c so that a corruptRate fraction of Write calls flip a
// byte in the outgoing buffer before it reaches the peer.
func NewFlakyConn(c net.Conn, corruptRate float64) *FlakyConn {
	return &FlakyConn{
		Conn:        c,
		corruptRate: corruptRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetCorruptRate adjusts the corruption probability mid-test.
func (c *FlakyConn) SetCorruptRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corruptRate = rate
}

// Write corrupts a single byte of p before writing, with probability
// corruptRate, simulating a peer that rejects a frame with a NACK. Writes of
// 4 bytes or fewer are never touched, since that's the width of
// pkg/protocol's frame-length prefix - flipping a length bit would desync the
// stream rather than exercise the NACK-and-retry path this wrapper is for.
func (c *FlakyConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	rate := c.corruptRate
	r := c.rand.Float64()
	c.mu.Unlock()

	if rate > 0 && r < rate && len(p) > 4 {
		corrupted := make([]byte, len(p))
		copy(corrupted, p)
		corrupted[len(corrupted)-1] ^= 0xFF
		if _, err := c.Conn.Write(corrupted); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	return c.Conn.Write(p)
}
