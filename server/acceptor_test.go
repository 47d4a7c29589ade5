package server

import (
	"net"
	"testing"
	"time"

	"github.com/xtaci/danptun/storage"
)

// TestSupervisorRejectsBeyondMaxClients exercises the concurrency bound
// without standing up a real KCP listener: it drives the same semaphore and
// serveOne path acceptLoop uses, against net.Pipe connections.
func TestSupervisorRejectsBeyondMaxClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxClients = 2
	fs := storage.NewMemFS()
	sup := NewSupervisor(cfg, fs)

	// Fill the two permitted slots with connections that block until closed
	// (no COMMAND frame is ever sent, so HandleClient sits in ReadFrame).
	var serverConns, clientConns []net.Conn
	for i := 0; i < cfg.MaxClients; i++ {
		s, c := net.Pipe()
		serverConns = append(serverConns, s)
		clientConns = append(clientConns, c)

		select {
		case sup.sem <- struct{}{}:
			go sup.serveOne(s)
		default:
			t.Fatalf("slot %d unexpectedly saturated", i)
		}
	}

	// A third attempt must be rejected immediately rather than blocking.
	rejected := false
	select {
	case sup.sem <- struct{}{}:
		t.Fatalf("expected sem to be saturated at MaxClients=%d", cfg.MaxClients)
	default:
		rejected = true
	}
	if !rejected {
		t.Fatalf("expected saturation to reject the third connection")
	}

	for _, c := range clientConns {
		c.Close()
	}
	for _, s := range serverConns {
		s.Close()
	}

	// Slots free up once HandleClient returns after its peer closes.
	deadline := time.After(2 * time.Second)
	for len(sup.sem) > 0 {
		select {
		case <-deadline:
			t.Fatalf("sem slots did not drain after connections closed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
