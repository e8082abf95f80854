// Package fakes provides in-memory stand-ins for the cloud SDK clients and
// for backend.SecretBackend, used across the test suites.
//
// Fakes are safe for concurrent use, count calls per operation and can be
// primed with per-key errors or replaced wholesale through the *Func
// fields.
package fakes
