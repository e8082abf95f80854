package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/secretproxy/pkg/backend"
)

// FakeBackend is an in-memory backend.SecretBackend with controllable
// failures, latency and absence reporting.
//
//	fake := fakes.NewFakeBackend().
//	    WithEntry("prod_app_db", "s3cr3t").
//	    WithError("prod_app_api", errors.New("connection refused")).
//	    WithDelay(10 * time.Millisecond)
type FakeBackend struct {
	mu sync.RWMutex

	entries map[string]string
	failOn  map[string]error
	opFail  map[string]error
	calls   map[string]int

	delay        time.Duration
	notFoundErrs bool
	policy       backend.DeletePolicy
	gate         chan struct{}
}

// NewFakeBackend creates an empty fake that reports absence as ("", nil).
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		entries: make(map[string]string),
		failOn:  make(map[string]error),
		opFail:  make(map[string]error),
		calls:   make(map[string]int),
	}
}

// WithEntry seeds a value.
func (f *FakeBackend) WithEntry(key, value string) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
	return f
}

// WithError makes every operation on key fail with err.
func (f *FakeBackend) WithError(key string, err error) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[key] = err
	return f
}

// WithOpError makes every call of op ("Get", "Set" or "Delete") fail.
func (f *FakeBackend) WithOpError(op string, err error) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opFail[op] = err
	return f
}

// WithDelay adds latency to every call.
func (f *FakeBackend) WithDelay(d time.Duration) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// WithNotFoundErrors makes Get of a missing key return *backend.NotFoundError
// the way the Vault backend does.
func (f *FakeBackend) WithNotFoundErrors() *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notFoundErrs = true
	return f
}

// WithDeletePolicy sets the reported delete policy.
func (f *FakeBackend) WithDeletePolicy(p backend.DeletePolicy) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
	return f
}

// WithGate blocks every call until gate is closed or the call's context
// ends.
func (f *FakeBackend) WithGate(gate chan struct{}) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
	return f
}

func (f *FakeBackend) Name() string { return "fake" }

func (f *FakeBackend) Type() backend.Type { return backend.TypeInMemory }

func (f *FakeBackend) DeletePolicy() backend.DeletePolicy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.policy
}

// Get returns the stored value.
func (f *FakeBackend) Get(ctx context.Context, key string) (string, error) {
	if err := f.enter(ctx, "Get", key); err != nil {
		return "", err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.entries[key]
	if !ok && f.notFoundErrs {
		return "", &backend.NotFoundError{Backend: f.Name(), Key: key}
	}
	return v, nil
}

// Set stores value.
func (f *FakeBackend) Set(ctx context.Context, key, value string) error {
	if err := f.enter(ctx, "Set", key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
	return nil
}

// Delete removes key.
func (f *FakeBackend) Delete(ctx context.Context, key string) error {
	if err := f.enter(ctx, "Delete", key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

// CallCount returns how many times op was invoked.
func (f *FakeBackend) CallCount(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[op]
}

// Value returns what the fake currently stores for key.
func (f *FakeBackend) Value(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.entries[key]
	return v, ok
}

func (f *FakeBackend) enter(ctx context.Context, op, key string) error {
	f.mu.Lock()
	f.calls[op]++
	delay, gate := f.delay, f.gate
	keyErr, opErr := f.failOn[key], f.opFail[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if keyErr != nil {
		return keyErr
	}
	return opErr
}
