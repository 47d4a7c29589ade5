package transport

import (
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/xtaci/qpp"
)

// qppPower defines the permutation dimension used throughout the tunnel.
const qppPower = 8

// ValidateQPPParams inspects caller-supplied QPP settings and returns
// non-fatal warnings (undersized key/pad count, a pad count sharing a factor
// with qppPower, i.e. an even count) plus a
// fatal error only for a non-positive pad count. Mirrors kcptun's
// std.ValidateQPPParams, reused by both cmd/ftpd and cmd/ftpc.
func ValidateQPPParams(count int, key string) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("QPPCount must be greater than 0 when QPP is enabled")
	}

	var warnings []string

	minSeedLength := qpp.QPPMinimumSeedLength(qppPower)
	if len(key) < minSeedLength {
		warnings = append(warnings, fmt.Sprintf("QPP warning: key has %d bytes, need at least %d", len(key), minSeedLength))
	}

	minPads := qpp.QPPMinimumPads(qppPower)
	if count < minPads {
		warnings = append(warnings, fmt.Sprintf("QPP warning: QPPCount %d, need at least %d", count, minPads))
	}

	if new(big.Int).GCD(nil, nil, big.NewInt(int64(count)), big.NewInt(qppPower)).Int64() != 1 {
		warnings = append(warnings, fmt.Sprintf("QPP warning: QPPCount %d should be prime for security", count))
	}

	return warnings, nil
}

// QPPPort wraps a connection with Quantum Permutation Pad obfuscation; it is
// a transport-layer concern, independent of frame CRC/sequencing above it.
type QPPPort struct {
	underlying net.Conn
	pad        *qpp.QuantumPermutationPad
	wprng      *qpp.Rand
	rprng      *qpp.Rand
}

// NewQPPPort wraps underlying with pad, keyed by seed (typically the session
// pre-shared secret) so both ends derive identical PRNG streams.
func NewQPPPort(underlying net.Conn, pad *qpp.QuantumPermutationPad, seed []byte) *QPPPort {
	return &QPPPort{
		underlying: underlying,
		pad:        pad,
		wprng:      qpp.CreatePRNG(seed),
		rprng:      qpp.CreatePRNG(seed),
	}
}

func (p *QPPPort) Read(b []byte) (int, error) {
	n, err := p.underlying.Read(b)
	p.pad.DecryptWithPRNG(b[:n], p.rprng)
	return n, err
}

func (p *QPPPort) Write(b []byte) (int, error) {
	p.pad.EncryptWithPRNG(b, p.wprng)
	return p.underlying.Write(b)
}

func (p *QPPPort) Close() error                      { return p.underlying.Close() }
func (p *QPPPort) LocalAddr() net.Addr               { return p.underlying.LocalAddr() }
func (p *QPPPort) RemoteAddr() net.Addr              { return p.underlying.RemoteAddr() }
func (p *QPPPort) SetDeadline(t time.Time) error     { return p.underlying.SetDeadline(t) }
func (p *QPPPort) SetReadDeadline(t time.Time) error  { return p.underlying.SetReadDeadline(t) }
func (p *QPPPort) SetWriteDeadline(t time.Time) error { return p.underlying.SetWriteDeadline(t) }

var _ io.ReadWriteCloser = (*QPPPort)(nil)
