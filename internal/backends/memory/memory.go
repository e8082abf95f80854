// Package memory provides the process-local backends: IN_MEMORY starts
// empty, EPHEMERAL is seeded from the configuration file. Neither survives
// a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/systmms/secretproxy/pkg/backend"
)

// Backend stores entries in a mutex-guarded map.
type Backend struct {
	name string
	typ  backend.Type

	mu     sync.RWMutex
	values map[string]string
}

// NewInMemory creates an empty IN_MEMORY backend.
func NewInMemory() *Backend {
	return &Backend{
		name:   "in-memory",
		typ:    backend.TypeInMemory,
		values: make(map[string]string),
	}
}

// NewEphemeral creates an EPHEMERAL backend seeded from the "content"
// property. Non-string values are rendered with %v so numeric YAML scalars
// are accepted.
func NewEphemeral(configMap map[string]interface{}) (*Backend, error) {
	b := &Backend{
		name:   "ephemeral",
		typ:    backend.TypeEphemeral,
		values: make(map[string]string),
	}

	raw, ok := configMap["content"]
	if !ok || raw == nil {
		return b, nil
	}

	content, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("ephemeral content must be a mapping, got %T", raw)
	}
	for k, v := range content {
		switch val := v.(type) {
		case string:
			b.values[k] = val
		case nil:
			// an explicit null seeds nothing
		default:
			b.values[k] = fmt.Sprintf("%v", val)
		}
	}

	return b, nil
}

// Name returns the backend name
func (b *Backend) Name() string {
	return b.name
}

// Type returns IN_MEMORY or EPHEMERAL
func (b *Backend) Type() backend.Type {
	return b.typ
}

// DeletePolicy reports native deletion: the key is removed from the map.
func (b *Backend) DeletePolicy() backend.DeletePolicy {
	return backend.DeleteNative
}

// Get returns the stored value or "" when the key is absent.
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[key], nil
}

// Set stores value under key
func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.values[key] = value
	b.mu.Unlock()
	return nil
}

// Delete removes key
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.values, key)
	b.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}
