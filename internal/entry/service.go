// Package entry implements the cache-aside secret entry service and the
// cache administration service in front of a single secret backend.
package entry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/systmms/secretproxy/internal/cache"
	dserrors "github.com/systmms/secretproxy/internal/errors"
	"github.com/systmms/secretproxy/internal/logging"
	"github.com/systmms/secretproxy/internal/metrics"
	"github.com/systmms/secretproxy/internal/workpool"
	"github.com/systmms/secretproxy/pkg/backend"
)

// Entry is a key and its secret value.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Backend operation names used in errors, logs and metrics.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
)

// Service reads through and writes through the entry cache.
type Service struct {
	backend backend.SecretBackend
	cache   *cache.Cache
	pool    *workpool.Pool

	// Mutations of one key hold its lock across the backend call and the
	// cache update, so the cache always ends with the last write applied
	// to the backend.
	mutations *keyLocks

	timeout time.Duration
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each backend call. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithMetrics records backend call metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates the entry service. All backend calls go through pool.
func NewService(b backend.SecretBackend, c *cache.Cache, pool *workpool.Pool, opts ...Option) *Service {
	s := &Service{
		backend:   b,
		cache:     c,
		pool:      pool,
		mutations: newKeyLocks(),
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key, from the cache when present and from the
// backend otherwise. Absent keys yield a *NotFoundError and are not cached.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if isBlank(key) {
		return "", blankKey()
	}

	value, found, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (string, bool, error) {
		s.logger.Debug("Cache miss, fetching from %s: key = %s", s.backend.Name(), key)

		var v string
		err := s.call(ctx, OpGet, key, func(ctx context.Context) error {
			var err error
			v, err = s.backend.Get(ctx, key)
			return err
		})
		switch {
		case backend.IsNotFound(err):
			return "", false, nil
		case err != nil:
			return "", false, err
		case v == "":
			return "", false, nil
		}
		return v, true, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", notFound(key)
	}
	return value, nil
}

// Put stores value in the backend and, once that succeeds, in the cache.
func (s *Service) Put(ctx context.Context, key, value string) error {
	if isBlank(key) {
		return blankKey()
	}
	if isBlank(value) {
		return blankValue()
	}

	unlock, err := s.mutations.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.call(ctx, OpSet, key, func(ctx context.Context) error {
		return s.backend.Set(ctx, key, value)
	})
	if err != nil {
		return err
	}

	s.cache.Put(key, value)
	s.logger.Debug("Entry stored: key = %s value = %s", key, logging.Secret(value))
	return nil
}

// Delete removes key from the backend and, once that succeeds, from the
// cache.
func (s *Service) Delete(ctx context.Context, key string) error {
	if isBlank(key) {
		return blankKey()
	}

	unlock, err := s.mutations.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.call(ctx, OpDelete, key, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})
	if err != nil && !backend.IsNotFound(err) {
		return err
	}

	s.cache.Invalidate(key)
	s.logger.Debug("Entry deleted: key = %s", key)
	return nil
}

// call runs fn on a pool slot. The per-call timeout covers both the wait
// for a slot and the backend call itself.
func (s *Service) call(ctx context.Context, op, key string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err := s.pool.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		err := fn(ctx)

		outcome := metrics.OutcomeOK
		switch {
		case backend.IsNotFound(err):
			outcome = metrics.OutcomeNotFound
		case err != nil:
			outcome = metrics.OutcomeError
		}
		s.metrics.BackendCall(s.backend.Name(), op, outcome, time.Since(start))
		return err
	})
	if err == nil {
		return nil
	}
	// Absence on read and on delete is not a failure.
	if backend.IsNotFound(err) && (op == OpGet || op == OpDelete) {
		return err
	}
	var invalid *backend.InvalidKeyError
	if errors.As(err, &invalid) {
		return invalidKey(invalid)
	}

	if dserrors.IsRetryable(err) {
		s.logger.Warn("Backend %s failed, likely transient: op = %s key = %s: %v", s.backend.Name(), op, key, err)
	} else {
		s.logger.Warn("Backend %s failed: op = %s key = %s: %v", s.backend.Name(), op, key, err)
	}
	return &BackendError{
		Backend: s.backend.Name(),
		Op:      op,
		Key:     key,
		Err:     err,
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
