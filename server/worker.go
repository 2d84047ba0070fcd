package server

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/cyberinferno/kryptos/logger"
	"github.com/cyberinferno/kryptos/session"
	"github.com/cyberinferno/kryptos/transport"
)

const peerLookupTimeout = 2 * time.Second

// runWorker drives one session until its peer goes away. The session is
// removed from the registry before the worker exits; no handle lock is held
// while broadcasting.
func (s *Server) runWorker(h *session.Handle) {
	defer s.workers.Done()

	log := s.Logger.With(
		logger.Field{Key: "session", Value: h.ID()},
		logger.Field{Key: "addr", Value: h.Address()},
	)
	defer s.retire(h, log)

	s.announce(h, log)

	for {
		if !s.pause() {
			return
		}

		status, err := h.Receive()
		switch status {
		case transport.StatusEstablished:
			continue

		case transport.StatusData:
			if len(s.opts.Ack) > 0 {
				if err := h.Send(s.opts.Ack); err != nil {
					log.Warn("session acknowledgment failed", logger.Field{Key: "error", Value: err})
					return
				}
			}

			msg := h.DrainInbound()
			if len(msg) == 0 {
				continue
			}

			report := s.Engine.Broadcast(msg, h.ID())
			s.broadcasts.Add(1)
			s.failedDeliveries.Add(uint64(len(report.Failed)))
			s.dropFailed(report.Failed)

		default:
			if err != nil {
				log.Warn("session read failed", logger.Field{Key: "error", Value: err})
			} else {
				log.Info("session closed by peer")
			}
			return
		}
	}
}

// pause waits for the poll interval. It returns false when the server is
// stopping.
func (s *Server) pause() bool {
	if s.opts.PollInterval <= 0 {
		return true
	}

	timer := time.NewTimer(s.opts.PollInterval)
	defer timer.Stop()

	select {
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// dropFailed closes the sessions a broadcast could not be written to. A
// partial write may have left a broken frame on the wire, so the session can
// not be reused; its own worker then sees StatusClosed and retires it.
func (s *Server) dropFailed(ids []uint64) {
	for _, id := range ids {
		if h, ok := s.Registry.Get(id); ok {
			_ = h.Close()
		}
	}
}

func (s *Server) retire(h *session.Handle, log logger.Logger) {
	s.Registry.Remove(h.ID())
	_ = h.Close()
	s.retired.Add(1)
	log.Info("session retired")
}

// announce logs the new session, with the peer's host name when peer name
// resolution is enabled.
func (s *Server) announce(h *session.Handle, log logger.Logger) {
	if s.opts.PeerNames == nil {
		log.Info("session registered")
		return
	}

	host, _, err := net.SplitHostPort(h.Address())
	if err != nil {
		host = h.Address()
	}

	ctx, cancel := context.WithTimeout(context.Background(), peerLookupTimeout)
	defer cancel()

	name, err := s.opts.PeerNames.GetOrFetch(ctx, host, s.opts.PeerNameTTL, func(ctx context.Context) (string, error) {
		names, err := s.opts.LookupAddr(ctx, host)
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return host, nil
		}

		return strings.TrimSuffix(names[0], "."), nil
	})
	if err != nil {
		log.Debug("peer name lookup failed", logger.Field{Key: "error", Value: err})
		name = host
	}

	log.Info("session registered", logger.Field{Key: "peer", Value: name})
}
