package transport

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// MultiPort is a host plus an inclusive port range, parsed from strings like
// "0.0.0.0:29900" or "0.0.0.0:29900-29910" -- the same listen-address shape
// kcptun's server accepts to stand up one listener per port in the range.
type MultiPort struct {
	Host    string
	MinPort uint64
	MaxPort uint64
}

var portRangeRe = regexp.MustCompile(`(.*)\:([0-9]{1,5})-?([0-9]{1,5})?`)

// ParseMultiPort parses a listen/dial address which may contain a port range.
func ParseMultiPort(addr string) (*MultiPort, error) {
	matches := portRangeRe.FindStringSubmatch(addr)
	if len(matches) < 4 {
		return nil, errors.Errorf("transport: malformed address %q", addr)
	}

	minPort, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, err
	}
	maxPort := minPort
	if matches[3] != "" {
		maxPort, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, err
		}
	}

	if minPort > maxPort || minPort > 65535 || maxPort > 65535 || minPort == 0 || maxPort == 0 {
		return nil, errors.Errorf("transport: invalid port range %d-%d", minPort, maxPort)
	}

	return &MultiPort{Host: matches[1], MinPort: uint64(minPort), MaxPort: uint64(maxPort)}, nil
}
