// Package transport provides stand-in implementations of the media transport
// ports. The real wire-level push (RTMP/SRT framing, ingest handshakes) lives
// in the media-relay backend; these simulations preserve the control-plane
// contract it must satisfy.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"go.uber.org/zap"
)

// SimulatedConnector pretends to establish platform connections after a fixed
// short delay. A failure hook lets tests and demos inject per-destination
// connection failures.
type SimulatedConnector struct {
	connectDelay time.Duration
	logger       *zap.SugaredLogger

	mu        sync.Mutex
	connected map[domain.DestinationID]bool
	failFor   map[domain.DestinationID]error
}

func NewSimulatedConnector(connectDelay time.Duration, logger *zap.SugaredLogger) *SimulatedConnector {
	return &SimulatedConnector{
		connectDelay: connectDelay,
		logger:       logger,
		connected:    make(map[domain.DestinationID]bool),
		failFor:      make(map[domain.DestinationID]error),
	}
}

var _ ports.StreamConnector = (*SimulatedConnector)(nil)

// FailNext makes the next Connect for the destination return the given error.
func (c *SimulatedConnector) FailNext(id domain.DestinationID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFor[id] = err
}

func (c *SimulatedConnector) Connect(ctx context.Context, dest *domain.Destination) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.connectDelay):
	}

	c.mu.Lock()
	if err, ok := c.failFor[dest.ID]; ok {
		delete(c.failFor, dest.ID)
		c.mu.Unlock()
		return fmt.Errorf("connect %s (%s): %w", dest.ID, dest.Platform, err)
	}
	c.connected[dest.ID] = true
	c.mu.Unlock()

	c.logger.Debugw("simulated connect", "destination_id", dest.ID, "platform", dest.Platform)
	return nil
}

func (c *SimulatedConnector) Disconnect(ctx context.Context, id domain.DestinationID) error {
	c.mu.Lock()
	delete(c.connected, id)
	c.mu.Unlock()

	c.logger.Debugw("simulated disconnect", "destination_id", id)
	return nil
}

// IsConnected reports whether the simulator holds a connection for the id.
func (c *SimulatedConnector) IsConnected(id domain.DestinationID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[id]
}
