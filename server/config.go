// Package server implements the acceptor/supervisor and the per-connection
// client handler that together serve inbound file-transfer connections
// against a storage.FS.
package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Config mirrors kcptun's server Config: CLI-settable fields with JSON
// override support via "-c <path>".
type Config struct {
	Listen string `json:"listen"`
	Key    string `json:"key"`
	Crypt  string `json:"crypt"`
	Mode   string `json:"mode"`

	MTU         int `json:"mtu"`
	SndWnd      int `json:"sndwnd"`
	RcvWnd      int `json:"rcvwnd"`
	DataShard   int `json:"datashard"`
	ParityShard int `json:"parityshard"`
	DSCP        int `json:"dscp"`
	RateLimit   int `json:"ratelimit"`

	NoComp     bool `json:"nocomp"`
	AckNodelay bool `json:"acknodelay"`

	NoDelay      int `json:"nodelay"`
	Interval     int `json:"interval"`
	Resend       int `json:"resend"`
	NoCongestion int `json:"nc"`

	SockBuf   int `json:"sockbuf"`
	KeepAlive int `json:"keepalive"`

	Log        string `json:"log"`
	SnmpLog    string `json:"snmplog"`
	SnmpPeriod int    `json:"snmpperiod"`
	Pprof      bool   `json:"pprof"`
	Quiet      bool   `json:"quiet"`
	TCP        bool   `json:"tcp"`

	QPP      bool `json:"qpp"`
	QPPCount int  `json:"qpp-count"`

	// StorageDir roots the storage.DirFS file identifiers are resolved against.
	StorageDir string `json:"storage"`

	// SessionTimeoutMS bounds every blocking receive in the session engine.
	SessionTimeoutMS int `json:"session_timeout_ms"`
	// MaxClients bounds concurrently active sessions.
	MaxClients int `json:"max_clients"`
	// Backlog holds the reference accept backlog. Supervisor does not read
	// it: no backlog is set on the listeners.
	Backlog int `json:"backlog"`
	// MaxPayload caps DATA frame payload size.
	MaxPayload int `json:"max_payload"`
}

// DefaultConfig returns the fixed constants for a reference deployment.
func DefaultConfig() Config {
	return Config{
		Listen:           ":29900",
		Crypt:            "aes",
		Mode:             "fast",
		MTU:              1350,
		SndWnd:           1024,
		RcvWnd:           1024,
		DataShard:        10,
		ParityShard:      3,
		SockBuf:          4194304,
		KeepAlive:        10,
		SessionTimeoutMS: 30000,
		MaxClients:       4,
		Backlog:          5,
		MaxPayload:       1500 - 10, // DefaultMaxFrame - frame.HeaderSize
	}
}

// Validate inspects the assembled Config for values that would misbehave at
// runtime, returning non-fatal warnings (sizes that work but are likely
// mistakes) plus a fatal error only for settings that cannot serve any
// session. Mirrors transport.ValidateQPPParams: the caller prints warnings
// via color.Red and fatals on a non-nil error.
func (c Config) Validate() ([]string, error) {
	if c.MaxPayload <= 0 {
		return nil, fmt.Errorf("max_payload must be greater than 0, got %d", c.MaxPayload)
	}
	if c.SessionTimeoutMS <= 0 {
		return nil, fmt.Errorf("session_timeout_ms must be greater than 0, got %d", c.SessionTimeoutMS)
	}
	if c.MaxClients <= 0 {
		return nil, fmt.Errorf("max_clients must be greater than 0, got %d", c.MaxClients)
	}

	var warnings []string
	if c.MaxPayload > 1500-10 {
		warnings = append(warnings, fmt.Sprintf("config warning: max_payload %d exceeds the reference MTU budget, expect IP fragmentation", c.MaxPayload))
	}
	if c.SessionTimeoutMS < 1000 {
		warnings = append(warnings, fmt.Sprintf("config warning: session_timeout_ms %d is unusually low, sessions may time out under normal latency", c.SessionTimeoutMS))
	}
	return warnings, nil
}

// ParseJSONConfig overrides config's fields from the JSON file at path, the
// same "-c" override kcptun's server/config.go supports.
func ParseJSONConfig(config *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "server.ParseJSONConfig")
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(config)
}
