// Package broadcast fans a message out from one relay session to all others.
package broadcast

import (
	"time"

	"github.com/cyberinferno/kryptos/logger"
	"github.com/cyberinferno/kryptos/perfmonitor"
)

// Peer is a destination the engine can deliver to.
type Peer interface {
	ID() uint64
	Send(data []byte) error
}

// Directory supplies the set of peers to deliver to. Snapshot must return a
// copy that is safe to iterate without holding any lock.
type Directory[P Peer] interface {
	Snapshot() []P
}

// Report summarises one Broadcast call.
type Report struct {
	Source    uint64
	Delivered []uint64
	Failed    []uint64
	Elapsed   time.Duration
}

// Offered returns how many destinations the message was offered to.
func (r Report) Offered() int {
	return len(r.Delivered) + len(r.Failed)
}

// Engine delivers messages to every peer in a Directory except the sender.
// It holds no state between calls and is safe for concurrent use.
type Engine[P Peer] struct {
	dir    Directory[P]
	logger logger.Logger
}

// NewEngine creates an Engine reading peers from dir.
//
// Parameters:
//   - dir: Source of the peer snapshot, normally the connection registry
//   - log: Logger for per-destination failures and fan-out timing
//
// Returns:
//   - A new Engine
func NewEngine[P Peer](dir Directory[P], log logger.Logger) *Engine[P] {
	if log == nil {
		log = logger.NewNop()
	}

	return &Engine[P]{dir: dir, logger: log}
}

// Broadcast offers message to every peer in a fresh snapshot whose ID differs
// from sourceID, in snapshot order. A failed write to one peer is logged and
// recorded but never stops delivery to the rest. There are no retries.
//
// Parameters:
//   - message: The bytes to deliver; not modified
//   - sourceID: The ID of the originating session, which is skipped
//
// Returns:
//   - A Report listing delivered and failed destination IDs
func (e *Engine[P]) Broadcast(message []byte, sourceID uint64) Report {
	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()

	report := Report{Source: sourceID}
	for _, peer := range e.dir.Snapshot() {
		dest := peer.ID()
		if dest == sourceID {
			continue
		}

		if err := peer.Send(message); err != nil {
			report.Failed = append(report.Failed, dest)
			e.logger.Warn("broadcast delivery failed",
				logger.Field{Key: "source", Value: sourceID},
				logger.Field{Key: "dest", Value: dest},
				logger.Field{Key: "error", Value: err},
			)
			continue
		}

		report.Delivered = append(report.Delivered, dest)
	}

	pm.Stop()
	report.Elapsed = pm.Elapsed()

	e.logger.Debug("broadcast done",
		logger.Field{Key: "source", Value: sourceID},
		logger.Field{Key: "bytes", Value: len(message)},
		logger.Field{Key: "delivered", Value: len(report.Delivered)},
		logger.Field{Key: "failed", Value: len(report.Failed)},
		logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
	)

	return report
}
