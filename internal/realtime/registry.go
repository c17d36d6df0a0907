package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by SendToUser for a user with no connection.
var ErrNotConnected = errors.New("user not connected")

const DefaultSendTimeout = 250 * time.Millisecond

// Registry maps each user to its single active connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn

	sendTimeout time.Duration
	metrics     Metrics
	log         *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithSendTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

func WithMetrics(m Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

func NewRegistry(log *zap.Logger, opts ...RegistryOption) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		conns:       make(map[string]Conn),
		sendTimeout: DefaultSendTimeout,
		metrics:     nopMetrics{},
		log:         log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register makes c the user's connection. A previous connection is closed.
// The mapping is dropped automatically once c is done.
func (r *Registry) Register(userID string, c Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = c
	n := len(r.conns)
	r.mu.Unlock()

	r.metrics.ConnectionsChanged(n)
	if prev != nil && prev != c {
		r.log.Debug("replacing connection", zap.String("user_id", userID))
		_ = prev.Close()
	}
	go func() {
		<-c.Done()
		r.Release(userID, c)
	}()
}

// Unregister removes and closes the user's connection, if any.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	c := r.conns[userID]
	delete(r.conns, userID)
	n := len(r.conns)
	r.mu.Unlock()

	if c != nil {
		r.metrics.ConnectionsChanged(n)
		_ = c.Close()
	}
}

// Release removes the user's mapping only if it still points at c, so a
// replaced connection tearing down cannot evict its successor.
func (r *Registry) Release(userID string, c Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	n := len(r.conns)
	r.mu.Unlock()

	r.metrics.ConnectionsChanged(n)
	return true
}

// SendToUser queues ev on the user's connection, waiting at most the send
// timeout. A connection that cannot accept the event is released and closed
// and the event is dropped.
func (r *Registry) SendToUser(ctx context.Context, userID string, ev Event) error {
	r.mu.RLock()
	c := r.conns[userID]
	r.mu.RUnlock()
	if c == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	if err := c.Send(ctx, ev); err != nil {
		r.metrics.EventDropped(ev.Type, "send_failed")
		r.Release(userID, c)
		_ = c.Close()
		return err
	}
	r.metrics.EventDelivered(ev.Type)
	return nil
}

// Connected reports whether the user has a registered connection.
func (r *Registry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	r.metrics.ConnectionsChanged(0)
}
