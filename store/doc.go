// Package store is an RCU-protected key/value store built on the
// deferred-reclamation allocator. Readers are lock-free: Get follows a
// per-key atomic pointer to an immutable version. Writers install a
// new version and retire the old one into an SPSC ring; a reclaimer
// goroutine drains the ring into the allocator, which holds every
// retired version for the configured grace period before destroying
// it. A reader that finishes its read section within that period can
// never observe reclaimed storage.
package store
