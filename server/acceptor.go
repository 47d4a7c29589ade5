package server

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/qpp"

	"github.com/xtaci/danptun/storage"
	"github.com/xtaci/danptun/transport"
)

// acceptPoll is how often the acceptor's Accept call wakes up to recheck the
// shutdown flag, by setting a short listener deadline -- the same
// recheck-on-timeout pattern kcptun's accept loop would need to support a
// graceful Stop (kcptun itself runs forever; this loop does not).
const acceptPoll = time.Second

// Supervisor accepts inbound connections and dispatches each one to
// HandleClient, bounding concurrently active sessions to Config.MaxClients
// and closing any connection accepted while all MaxClients slots are taken.
type Supervisor struct {
	cfg Config
	fs  storage.FS

	mu        sync.Mutex
	listeners []*kcp.Listener
	stopCh    chan struct{}
	wg        sync.WaitGroup

	sem chan struct{} // bounds concurrently active sessions to cfg.MaxClients
	pad *qpp.QuantumPermutationPad
}

// NewSupervisor builds a Supervisor serving fs per cfg. Call Serve to start
// accepting and Stop to shut down.
func NewSupervisor(cfg Config, fs storage.FS) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		fs:     fs,
		stopCh: make(chan struct{}),
		sem:    make(chan struct{}, cfg.MaxClients),
	}
	if cfg.QPP {
		s.pad = qpp.NewQPP([]byte(cfg.Key), uint16(cfg.QPPCount))
	}
	return s
}

// Serve binds the configured listen address and runs the accept loop until
// Stop is called or the listener fails. One goroutine handles each accepted
// connection; Serve itself blocks the caller.
func (s *Supervisor) Serve(block kcp.BlockCrypt) error {
	mp, err := transport.ParseMultiPort(s.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "server.Serve")
	}

	var listeners []*kcp.Listener
	for port := mp.MinPort; port <= mp.MaxPort; port++ {
		addr := fmt.Sprintf("%v:%v", mp.Host, port)
		lis, err := transport.Listen(addr, block, s.cfg.DataShard, s.cfg.ParityShard, s.cfg.TCP)
		if err != nil {
			return errors.Wrapf(err, "server.Serve: listen %s", addr)
		}
		log.Printf("server: listening on %s", addr)
		listeners = append(listeners, lis)
	}

	s.mu.Lock()
	s.listeners = listeners
	s.mu.Unlock()

	for _, lis := range listeners {
		s.wg.Add(1)
		go s.acceptLoop(lis)
	}
	s.wg.Wait()
	return nil
}

func (s *Supervisor) acceptLoop(lis *kcp.Listener) {
	defer s.wg.Done()
	defer lis.Close()

	noDelay, interval, resend, nc := transport.ModeTuning(s.cfg.Mode)
	tuning := transport.Tuning{
		NoDelay: noDelay, Interval: interval, Resend: resend, NoCongestion: nc,
		MTU: s.cfg.MTU, SndWnd: s.cfg.SndWnd, RcvWnd: s.cfg.RcvWnd,
		AckNodelay: s.cfg.AckNodelay, RateLimit: s.cfg.RateLimit,
		DSCP: s.cfg.DSCP, SockBuf: s.cfg.SockBuf,
	}

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := lis.SetDeadline(time.Now().Add(acceptPoll)); err != nil {
			log.Printf("server: SetDeadline: %v", err)
		}

		sess, err := lis.AcceptKCP()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Printf("server: accept failed: %v", err)
			return
		}

		log.Printf("server: accepted connection from %v", sess.RemoteAddr())
		transport.ApplyTuning(sess, tuning)

		var conn net.Conn = sess
		if !s.cfg.NoComp {
			conn = transport.NewCompStream(sess)
		}
		if s.pad != nil {
			conn = transport.NewQPPPort(conn, s.pad, []byte(s.cfg.Key))
		}

		select {
		case s.sem <- struct{}{}:
			go s.serveOne(conn)
		default:
			log.Printf("server: max clients (%d) reached, rejecting %v", s.cfg.MaxClients, sess.RemoteAddr())
			conn.Close()
		}
	}
}

func (s *Supervisor) serveOne(conn net.Conn) {
	defer func() { <-s.sem }()
	timeout := time.Duration(s.cfg.SessionTimeoutMS) * time.Millisecond
	HandleClient(conn, s.fs, s.cfg.MaxPayload, timeout)
}

// Stop signals every accept loop to exit after its current poll interval.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	s.mu.Lock()
	for _, lis := range s.listeners {
		lis.Close()
	}
	s.mu.Unlock()
}
