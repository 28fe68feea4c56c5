package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"go.uber.org/zap"
)

// nominalBitrateKbps stands in for the encoder bitrate when accruing the
// simulated byte counter. The media-relay backend will report real counters.
const nominalBitrateKbps = 4000

// RouterConfig tunes the destination router.
type RouterConfig struct {
	ConnectionHealthInterval time.Duration
}

// DefaultRouterConfig returns the router defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ConnectionHealthInterval: 10 * time.Second,
	}
}

// connectionState pairs a connection record with the cancel func of its
// byte-accrual timer. The timer exists only while the destination is live.
type connectionState struct {
	conn        domain.DestinationConnection
	cancelTimer context.CancelFunc
}

// RouterService owns the set of destination connections for the active
// stream. A connection failure is terminal for that destination only; it
// never aborts sibling connections.
type RouterService struct {
	config    RouterConfig
	policy    ports.PolicyProvider
	connector ports.StreamConnector
	logger    *zap.SugaredLogger

	mu          sync.RWMutex
	connections map[domain.DestinationID]*connectionState
	stream      domain.MediaStream
	routing     bool
	planLimit   int // admission limit captured when routing started

	onStatusChange func(id domain.DestinationID, status domain.DestinationStatus, errMsg string)
	onReconnect    func(id domain.DestinationID, platform domain.Platform)

	now func() time.Time
}

func NewRouterService(config RouterConfig, policy ports.PolicyProvider, connector ports.StreamConnector, logger *zap.SugaredLogger) *RouterService {
	return &RouterService{
		config:      config,
		policy:      policy,
		connector:   connector,
		logger:      logger,
		connections: make(map[domain.DestinationID]*connectionState),
		now:         time.Now,
	}
}

var _ ports.Router = (*RouterService)(nil)

// OnStatusChange registers the destination status callback.
func (r *RouterService) OnStatusChange(fn func(id domain.DestinationID, status domain.DestinationStatus, errMsg string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatusChange = fn
}

// Validate filters to enabled destinations and truncates to the plan's
// maximum, keeping the first N in stable order. The remainder is reported as
// rejected with a human-readable reason.
func (r *RouterService) Validate(ctx context.Context, user *domain.User, destinations []domain.Destination) (*domain.RoutingDecision, error) {
	var enabled []domain.Destination
	for _, d := range destinations {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}

	max := r.policy.MaxDestinations(user.Plan)
	decision := &domain.RoutingDecision{Allowed: enabled}
	if max != domain.UnlimitedDestinations && len(enabled) > max {
		decision.Allowed = enabled[:max]
		decision.Rejected = enabled[max:]
		decision.Message = fmt.Sprintf(
			"plan %s allows %d simultaneous destination(s); %d rejected",
			user.Plan, max, len(decision.Rejected),
		)
	}

	return decision, nil
}

// Route validates and then drives every allowed destination through its
// connection lifecycle. Fails fast when zero destinations survive validation.
func (r *RouterService) Route(ctx context.Context, stream domain.MediaStream, user *domain.User, destinations []domain.Destination) error {
	decision, err := r.Validate(ctx, user, destinations)
	if err != nil {
		return err
	}
	if len(decision.Allowed) == 0 {
		return domain.ErrNoDestinationsAllowed
	}

	r.mu.Lock()
	r.stream = stream
	r.routing = true
	r.planLimit = r.policy.MaxDestinations(user.Plan)
	r.mu.Unlock()

	if decision.Message != "" {
		r.logger.Warnw("destinations truncated at admission",
			"user_id", user.ID,
			"plan", user.Plan,
			"rejected", len(decision.Rejected),
		)
	}

	for _, dest := range decision.Allowed {
		// Each destination connects independently; a failure here is
		// surfaced via the status callback and must not stop the rest.
		r.connectDestination(ctx, dest)
	}

	return nil
}

// AddDestination adds one destination to the live routing set, re-checking
// the limit captured at admission against the current connected count.
func (r *RouterService) AddDestination(ctx context.Context, user *domain.User, dest domain.Destination) error {
	if !dest.Enabled {
		return fmt.Errorf("destination %s is disabled", dest.ID)
	}

	r.mu.Lock()
	if !r.routing {
		r.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	max := r.planLimit
	if max != domain.UnlimitedDestinations && len(r.connections)+1 > max {
		r.mu.Unlock()
		return fmt.Errorf("plan %s allows %d destination(s): %w", user.Plan, max, domain.ErrNoDestinationsAllowed)
	}
	if _, exists := r.connections[dest.ID]; exists {
		r.mu.Unlock()
		return domain.ErrDestinationExists
	}
	r.mu.Unlock()

	r.connectDestination(ctx, dest)
	return nil
}

// RemoveDestination removes one destination from the routing set. It always
// succeeds: the byte timer is cancelled in the same step the status flips to
// offline, and no further callbacks fire for the destination.
func (r *RouterService) RemoveDestination(ctx context.Context, id domain.DestinationID) error {
	r.mu.Lock()
	state, exists := r.connections[id]
	if exists {
		if state.cancelTimer != nil {
			state.cancelTimer()
			state.cancelTimer = nil
		}
		delete(r.connections, id)
	}
	notify := r.onStatusChange
	r.mu.Unlock()

	if !exists {
		return nil
	}

	if err := r.connector.Disconnect(ctx, id); err != nil {
		r.logger.Warnw("disconnect failed", "destination_id", id, "error", err)
	}

	if notify != nil {
		notify(id, domain.StatusOffline, "")
	}
	r.logger.Infow("destination removed", "destination_id", id)
	return nil
}

// ReportFailure flips a live destination to error on an external failure
// signal, cancelling its timer. Sibling destinations are untouched.
func (r *RouterService) ReportFailure(id domain.DestinationID, reason string) {
	r.mu.Lock()
	state, exists := r.connections[id]
	if !exists {
		r.mu.Unlock()
		return
	}
	if state.cancelTimer != nil {
		state.cancelTimer()
		state.cancelTimer = nil
	}
	state.conn.Status = domain.StatusError
	state.conn.Error = reason
	notify := r.onStatusChange
	r.mu.Unlock()

	r.logger.Warnw("destination failed", "destination_id", id, "reason", reason)
	if notify != nil {
		notify(id, domain.StatusError, reason)
	}
}

// OnReconnect registers a callback fired on every reconnect attempt.
func (r *RouterService) OnReconnect(fn func(id domain.DestinationID, platform domain.Platform)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReconnect = fn
}

// Reconnect re-runs the connection lifecycle for a destination already in the
// routing set. Used by remediation, never invoked by the router itself.
func (r *RouterService) Reconnect(ctx context.Context, id domain.DestinationID) error {
	r.mu.Lock()
	state, exists := r.connections[id]
	if !exists {
		r.mu.Unlock()
		return domain.ErrDestinationNotFound
	}
	if state.cancelTimer != nil {
		state.cancelTimer()
		state.cancelTimer = nil
	}
	dest := state.conn.Destination
	delete(r.connections, id)
	notifyReconnect := r.onReconnect
	r.mu.Unlock()

	if notifyReconnect != nil {
		notifyReconnect(id, dest.Platform)
	}

	if err := r.connector.Disconnect(ctx, id); err != nil {
		r.logger.Warnw("disconnect before reconnect failed", "destination_id", id, "error", err)
	}

	r.connectDestination(ctx, dest)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.connections[id]; ok && s.conn.Status == domain.StatusError {
		return fmt.Errorf("reconnect %s: %s: %w", id, s.conn.Error, domain.ErrConnectionFailed)
	}
	return nil
}

// DisconnectAll tears down every connection and resets the router to idle.
// Safe to call from any state; with zero connections it is a no-op.
func (r *RouterService) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	states := make(map[domain.DestinationID]*connectionState, len(r.connections))
	for id, state := range r.connections {
		if state.cancelTimer != nil {
			state.cancelTimer()
			state.cancelTimer = nil
		}
		states[id] = state
	}
	r.connections = make(map[domain.DestinationID]*connectionState)
	r.routing = false
	r.stream = domain.MediaStream{}
	notify := r.onStatusChange
	r.mu.Unlock()

	for id := range states {
		if err := r.connector.Disconnect(ctx, id); err != nil {
			r.logger.Warnw("disconnect failed during teardown", "destination_id", id, "error", err)
		}
		if notify != nil {
			notify(id, domain.StatusOffline, "")
		}
	}

	if len(states) > 0 {
		r.logger.Infow("router torn down", "disconnected", len(states))
	}
}

// Connections returns defensive copies of every connection record.
func (r *RouterService) Connections() []domain.DestinationConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DestinationConnection, 0, len(r.connections))
	for _, state := range r.connections {
		out = append(out, state.conn)
	}
	return out
}

// Connection returns a copy of one connection record.
func (r *RouterService) Connection(id domain.DestinationID) (domain.DestinationConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.connections[id]
	if !ok {
		return domain.DestinationConnection{}, false
	}
	return state.conn, true
}

// ActiveCount returns the number of destinations in the routing set.
func (r *RouterService) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// connectDestination drives one destination through
// offline → connecting → live (or → error). Credential problems are local
// validation errors and never reach the connector.
func (r *RouterService) connectDestination(ctx context.Context, dest domain.Destination) {
	if dest.StreamKey == "" {
		r.setError(dest, domain.ErrMissingStreamKey.Error())
		return
	}
	if dest.Platform == domain.PlatformCustom && dest.ServerURL == "" {
		r.setError(dest, domain.ErrMissingServerURL.Error())
		return
	}

	r.setStatus(dest, domain.StatusConnecting)

	if err := r.connector.Connect(ctx, &dest); err != nil {
		r.logger.Warnw("connection failed",
			"destination_id", dest.ID,
			"platform", dest.Platform,
			"error", err,
		)
		r.setError(dest, err.Error())
		return
	}

	now := r.now()

	r.mu.Lock()
	state, exists := r.connections[dest.ID]
	if !exists {
		// Removed while connecting; undo quietly.
		r.mu.Unlock()
		_ = r.connector.Disconnect(ctx, dest.ID)
		return
	}
	state.conn.Status = domain.StatusLive
	state.conn.ConnectedAt = &now
	state.conn.Error = ""

	timerCtx, cancel := context.WithCancel(context.Background())
	state.cancelTimer = cancel
	notify := r.onStatusChange
	r.mu.Unlock()

	go r.accrueBytes(timerCtx, dest.ID)

	r.logger.Infow("destination live", "destination_id", dest.ID, "platform", dest.Platform)
	if notify != nil {
		notify(dest.ID, domain.StatusLive, "")
	}
}

// accrueBytes ticks the connection byte counter while the destination stays
// live. The context is cancelled the instant the destination leaves live.
func (r *RouterService) accrueBytes(ctx context.Context, id domain.DestinationID) {
	ticker := time.NewTicker(r.config.ConnectionHealthInterval)
	defer ticker.Stop()

	bytesPerTick := int64(nominalBitrateKbps) * 1000 / 8 * int64(r.config.ConnectionHealthInterval/time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			state, exists := r.connections[id]
			if !exists || state.conn.Status != domain.StatusLive {
				r.mu.Unlock()
				return
			}
			state.conn.BytesSent += bytesPerTick
			r.mu.Unlock()
		}
	}
}

func (r *RouterService) setStatus(dest domain.Destination, status domain.DestinationStatus) {
	r.mu.Lock()
	state, exists := r.connections[dest.ID]
	if !exists {
		state = &connectionState{conn: domain.DestinationConnection{Destination: dest}}
		r.connections[dest.ID] = state
	}
	state.conn.Status = status
	notify := r.onStatusChange
	r.mu.Unlock()

	if notify != nil {
		notify(dest.ID, status, "")
	}
}

func (r *RouterService) setError(dest domain.Destination, reason string) {
	r.mu.Lock()
	state, exists := r.connections[dest.ID]
	if !exists {
		state = &connectionState{conn: domain.DestinationConnection{Destination: dest}}
		r.connections[dest.ID] = state
	}
	if state.cancelTimer != nil {
		state.cancelTimer()
		state.cancelTimer = nil
	}
	state.conn.Status = domain.StatusError
	state.conn.Error = reason
	notify := r.onStatusChange
	r.mu.Unlock()

	if notify != nil {
		notify(dest.ID, domain.StatusError, reason)
	}
}
