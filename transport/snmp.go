package transport

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Snmp accumulates protocol-level transfer counters, supplementing kcp-go's
// own link-level DefaultSnmp the way the original danp_ftp_service_shell
// test harness tracked per-run chunk/CRC stats. All fields are updated with
// atomic ops so sessions on different worker goroutines can share one
// instance without a lock.
type Snmp struct {
	FramesSent     uint64
	FramesRecv     uint64
	BytesSent      uint64
	BytesRecv      uint64
	NACKsSent      uint64
	NACKsRecv      uint64
	Retries        uint64
	CRCFailures    uint64
	SessionsOK     uint64
	SessionsFailed uint64
}

// DefaultSnmp is the process-wide counter block, mirroring kcp.DefaultSnmp's
// role as a singleton updated from every session's worker goroutine.
var DefaultSnmp = &Snmp{}

func (s *Snmp) Header() []string {
	return []string{
		"FramesSent", "FramesRecv", "BytesSent", "BytesRecv",
		"NACKsSent", "NACKsRecv", "Retries", "CRCFailures",
		"SessionsOK", "SessionsFailed",
	}
}

func (s *Snmp) ToSlice() []string {
	return []string{
		fmt.Sprint(atomic.LoadUint64(&s.FramesSent)),
		fmt.Sprint(atomic.LoadUint64(&s.FramesRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.BytesSent)),
		fmt.Sprint(atomic.LoadUint64(&s.BytesRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.NACKsSent)),
		fmt.Sprint(atomic.LoadUint64(&s.NACKsRecv)),
		fmt.Sprint(atomic.LoadUint64(&s.Retries)),
		fmt.Sprint(atomic.LoadUint64(&s.CRCFailures)),
		fmt.Sprint(atomic.LoadUint64(&s.SessionsOK)),
		fmt.Sprint(atomic.LoadUint64(&s.SessionsFailed)),
	}
}

// Copy returns a point-in-time snapshot, safe to log from a signal handler.
func (s *Snmp) Copy() Snmp {
	return Snmp{
		FramesSent:     atomic.LoadUint64(&s.FramesSent),
		FramesRecv:     atomic.LoadUint64(&s.FramesRecv),
		BytesSent:      atomic.LoadUint64(&s.BytesSent),
		BytesRecv:      atomic.LoadUint64(&s.BytesRecv),
		NACKsSent:      atomic.LoadUint64(&s.NACKsSent),
		NACKsRecv:      atomic.LoadUint64(&s.NACKsRecv),
		Retries:        atomic.LoadUint64(&s.Retries),
		CRCFailures:    atomic.LoadUint64(&s.CRCFailures),
		SessionsOK:     atomic.LoadUint64(&s.SessionsOK),
		SessionsFailed: atomic.LoadUint64(&s.SessionsFailed),
	}
}

// SnmpLogger periodically appends a CSV row of DefaultSnmp's counters to
// path, the same pattern as kcptun's std.SnmpLogger (path may embed a
// time.Format layout so rotated files roll over automatically).
func SnmpLogger(path string, interval int) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}

		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, DefaultSnmp.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, DefaultSnmp.ToSlice()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
