// Package secure keeps cached secret values encrypted in process memory.
//
// It wraps github.com/awnumar/memguard. A sealed Value is encrypted with
// XSalsa20Poly1305 under a key that memguard keeps in locked, guarded
// pages, so cached secrets do not appear in plaintext in swap or core
// dumps.
//
//	v := secure.Seal("s3cr3t")
//	plain, err := v.Reveal()
//	v.Destroy()
//
// The entry cache uses this package when cache.protect_memory is set.
// Reveal returns an ordinary Go string, so the plaintext handed back to
// HTTP clients is not protected once it leaves the cache.
//
// On Linux, mlock is subject to RLIMIT_MEMLOCK. memguard falls back to
// unlocked memory when the limit is reached; values stay encrypted.
package secure
