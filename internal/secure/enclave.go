package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when revealing a Value after Destroy.
var ErrDestroyed = errors.New("secure: value destroyed")

// Value holds one secret string sealed in a memguard enclave. The
// plaintext only exists in locked memory while Reveal runs and in the
// string it returns.
type Value struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// Seal copies s into an encrypted enclave. An empty s yields a Value with
// no enclave that reveals as "".
func Seal(s string) *Value {
	if s == "" {
		return &Value{}
	}
	// NewEnclave wipes its argument, which here is a private copy.
	return &Value{enclave: memguard.NewEnclave([]byte(s))}
}

// Reveal decrypts the value.
func (v *Value) Reveal() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed {
		return "", ErrDestroyed
	}
	if v.enclave == nil {
		return "", nil
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	// Copy out; locked memory is wiped by Destroy.
	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. Safe to call more than once.
func (v *Value) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.enclave = nil
	v.destroyed = true
}

// Purge wipes every enclave key and locked buffer. Call once on shutdown.
func Purge() {
	memguard.Purge()
}
