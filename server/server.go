// Package server runs the relay: it accepts connections, registers a session
// for each one and drives one worker goroutine per session that hands every
// received message to the broadcast engine.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/kryptos/broadcast"
	"github.com/cyberinferno/kryptos/cacher"
	"github.com/cyberinferno/kryptos/idgenerator"
	"github.com/cyberinferno/kryptos/logger"
	"github.com/cyberinferno/kryptos/registry"
	"github.com/cyberinferno/kryptos/session"
	"github.com/cyberinferno/kryptos/transport"
)

// LookupFunc reverse-resolves a host address into names.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Options configures a Server.
type Options struct {
	// Name identifies the server in log lines.
	Name string
	// Addr is the "host:port" to listen on.
	Addr string
	// Transport configures framing and encryption of every session.
	Transport transport.Options
	// Ack is written back to a sender for each message it sends; nil disables it.
	Ack []byte
	// PollInterval is a pause before every session read. Zero makes workers
	// purely event-driven: they wake as soon as data arrives.
	PollInterval time.Duration
	// Logger receives server and session logs; nil discards them.
	Logger logger.Logger
	// PeerNames, when set, caches reverse lookups of peer hosts for logging.
	PeerNames cacher.Cacher[string]
	// PeerNameTTL is how long a resolved peer name is cached.
	PeerNameTTL time.Duration
	// LookupAddr resolves peer hosts; defaults to net.DefaultResolver.LookupAddr.
	LookupAddr LookupFunc
}

// Stats is a point-in-time view of server activity.
type Stats struct {
	Active           int
	Accepted         uint64
	Retired          uint64
	Broadcasts       uint64
	FailedDeliveries uint64
}

// Server is the relay's accept loop and session supervisor. Sessions are kept
// in Registry by ID; IDs come from IdGenerator and start at 0.
type Server struct {
	Logger      logger.Logger
	Name        string
	Addr        string
	Listener    net.Listener
	Registry    *registry.Registry[*session.Handle]
	Engine      *broadcast.Engine[*session.Handle]
	IdGenerator *idgenerator.IdGenerator
	Running     atomic.Bool

	opts       Options
	workers    sync.WaitGroup
	stopCh     chan struct{}
	acceptDone chan struct{}

	retired          atomic.Uint64
	broadcasts       atomic.Uint64
	failedDeliveries atomic.Uint64
}

// New creates a Server from opts. Call Start to begin accepting.
//
// Parameters:
//   - opts: Listen address, transport settings and collaborators
//
// Returns:
//   - A new, stopped Server
func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "kryptos"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.LookupAddr == nil {
		opts.LookupAddr = net.DefaultResolver.LookupAddr
	}
	if opts.PeerNameTTL <= 0 {
		opts.PeerNameTTL = 10 * time.Minute
	}

	reg := registry.NewRegistry[*session.Handle]()
	return &Server{
		Logger:      opts.Logger,
		Name:        opts.Name,
		Addr:        opts.Addr,
		Registry:    reg,
		Engine:      broadcast.NewEngine[*session.Handle](reg, opts.Logger),
		IdGenerator: idgenerator.NewIdGenerator(0),
		opts:        opts,
	}
}

// Start binds Addr and runs AcceptLoop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *Server) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.stopCh = make(chan struct{})
	s.acceptDone = make(chan struct{})
	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	go s.AcceptLoop()

	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (s *Server) ListenAddr() net.Addr {
	if s.Listener == nil {
		return nil
	}

	return s.Listener.Addr()
}

// Stop stops accepting, closes every registered session and waits for all
// session workers to finish. Safe to call when the server is not running.
func (s *Server) Stop() {
	if !s.Running.CompareAndSwap(true, false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	close(s.stopCh)
	_ = s.Listener.Close()
	<-s.acceptDone

	for _, h := range s.Registry.Snapshot() {
		_ = h.Close()
	}
	s.workers.Wait()

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// AcceptLoop accepts connections until the server is stopped. Each connection
// gets the next ID, is registered, and is handed to its own worker goroutine.
// Accept errors while running are logged and do not end the loop; repeated
// errors back off from minAcceptDelay up to maxAcceptDelay.
func (s *Server) AcceptLoop() {
	defer close(s.acceptDone)

	var delay time.Duration
	for s.Running.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() {
				return
			}

			delay = nextAcceptDelay(delay)
			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name),
				logger.Field{Key: "error", Value: err},
				logger.Field{Key: "retry_in", Value: delay.String()},
			)

			timer := time.NewTimer(delay)
			select {
			case <-s.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		delay = 0
		s.register(conn)
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}

	return min(prev*2, maxAcceptDelay)
}

func (s *Server) register(conn net.Conn) *session.Handle {
	id := s.IdGenerator.Id()
	h := session.NewHandle(id, transport.NewConn(conn, s.opts.Transport))
	s.Registry.Insert(h)

	s.workers.Add(1)
	go s.runWorker(h)

	return h
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Active:           s.Registry.Len(),
		Accepted:         s.IdGenerator.Issued(),
		Retired:          s.retired.Load(),
		Broadcasts:       s.broadcasts.Load(),
		FailedDeliveries: s.failedDeliveries.Load(),
	}
}

// ReportStats writes the current counters as one info log line.
func (s *Server) ReportStats() {
	st := s.Stats()
	s.Logger.Info("relay stats",
		logger.Field{Key: "active", Value: st.Active},
		logger.Field{Key: "accepted", Value: st.Accepted},
		logger.Field{Key: "retired", Value: st.Retired},
		logger.Field{Key: "broadcasts", Value: st.Broadcasts},
		logger.Field{Key: "failed_deliveries", Value: st.FailedDeliveries},
	)
}
