package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"mixerd/protocol"
)

// DefaultPollInterval is the cadence at which hardware input (buttons,
// faders, encoders) is sampled.
const DefaultPollInterval = 20 * time.Millisecond

// Poller periodically reads the device input snapshot and forwards it to the
// controller. It shares a pause flag with the engine: while a foreground
// command is in flight the tick is skipped entirely, never queued, so command
// latency stays low. A skipped human input event is simply observed on the
// next tick.
type Poller struct {
	engine   Engine
	pause    *atomic.Bool
	interval time.Duration
	logger   *slog.Logger

	snapshots chan protocol.Snapshot
}

// NewPoller wires a poller to an engine. pause must be the same flag passed
// to the engine's Config.
func NewPoller(engine Engine, pause *atomic.Bool, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		engine:    engine,
		pause:     pause,
		interval:  interval,
		logger:    logger,
		snapshots: make(chan protocol.Snapshot, 16),
	}
}

// Snapshots is the stream of decoded input snapshots.
func (p *Poller) Snapshots() <-chan protocol.Snapshot {
	return p.snapshots
}

// Run polls until ctx is cancelled or the engine disconnects. Each iteration
// is bounded by the engine's own retry ceiling, so Run never blocks
// indefinitely.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.snapshots)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("poller stopping (context cancelled)")
			return ctx.Err()

		case <-ticker.C:
			if p.pause.Load() {
				// A foreground command owns the device right now.
				continue
			}

			raw, err := p.engine.Request(protocol.OpGetButtonStates, nil)
			if err != nil {
				if errors.Is(err, ErrDisconnected) {
					p.logger.Debug("poller stopping (device disconnected)")
					return err
				}
				// The engine has already handled disconnect signalling for
				// fatal errors; anything else is worth a log line only.
				p.logger.Warn("input poll failed", "error", err)
				continue
			}

			snap, err := protocol.ParseSnapshot(raw)
			if err != nil {
				p.logger.Warn("discarding malformed input snapshot", "error", err)
				continue
			}

			select {
			case p.snapshots <- snap:
			default:
				// The owner is busy; drop rather than queue stale input.
			}
		}
	}
}
