package reliability

import (
	"context"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
	"omnicast/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// ConnectorWrapper wraps a StreamConnector with per-destination circuit
// breakers, so a persistently failing ingest stops being hammered while its
// siblings keep connecting. It never retries on its own; retry policy belongs
// to the remediation layer.
type ConnectorWrapper struct {
	connector ports.StreamConnector
	logger    *zap.SugaredLogger

	cbConfig   circuitbreaker.Config
	breakersMu sync.RWMutex
	breakers   map[domain.DestinationID]*circuitbreaker.CircuitBreaker

	onConnectDone func(platform domain.Platform, duration time.Duration, err error)
}

func NewConnectorWrapper(connector ports.StreamConnector, cbConfig circuitbreaker.Config, logger *zap.SugaredLogger) *ConnectorWrapper {
	return &ConnectorWrapper{
		connector: connector,
		logger:    logger,
		cbConfig:  cbConfig,
		breakers:  make(map[domain.DestinationID]*circuitbreaker.CircuitBreaker),
	}
}

var _ ports.StreamConnector = (*ConnectorWrapper)(nil)

func (w *ConnectorWrapper) breaker(id domain.DestinationID) *circuitbreaker.CircuitBreaker {
	w.breakersMu.RLock()
	cb, exists := w.breakers[id]
	w.breakersMu.RUnlock()
	if exists {
		return cb
	}

	w.breakersMu.Lock()
	defer w.breakersMu.Unlock()
	if cb, exists = w.breakers[id]; exists {
		return cb
	}

	cb = circuitbreaker.New(w.cbConfig)
	cb.OnStateChange(func(from, to circuitbreaker.State) {
		w.logger.Infow("destination circuit state changed",
			"destination_id", id,
			"from", from.String(),
			"to", to.String(),
		)
	})
	w.breakers[id] = cb
	return cb
}

// OnConnectDone registers a callback observing the duration and outcome of
// every connection attempt that reaches the transport.
func (w *ConnectorWrapper) OnConnectDone(fn func(platform domain.Platform, duration time.Duration, err error)) {
	w.breakersMu.Lock()
	defer w.breakersMu.Unlock()
	w.onConnectDone = fn
}

func (w *ConnectorWrapper) Connect(ctx context.Context, dest *domain.Destination) error {
	return w.breaker(dest.ID).Execute(ctx, func() error {
		start := time.Now()
		err := w.connector.Connect(ctx, dest)

		w.breakersMu.RLock()
		notify := w.onConnectDone
		w.breakersMu.RUnlock()
		if notify != nil {
			notify(dest.Platform, time.Since(start), err)
		}
		return err
	})
}

// Disconnect bypasses the breaker: teardown must always reach the transport.
func (w *ConnectorWrapper) Disconnect(ctx context.Context, id domain.DestinationID) error {
	return w.connector.Disconnect(ctx, id)
}
