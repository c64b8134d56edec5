// Package memory provides the low-level primitives for deferred memory
// reclamation. Its centerpiece is the Allocator adaptor, which wraps an
// Underlying allocator and postpones object destruction and storage
// release until a configured timeout has elapsed since deallocation was
// requested. This is the "wait a fixed grace period" variant of RCU:
// when every reader is known to drop its references within a bounded
// window after being denied new access, delaying reclamation by at
// least that window is enough to keep readers off reclaimed memory.
//
// The package also carries the RetireRing, a lock-free SPSC ring used
// to hand retired objects from a writer to the reclaimer without
// blocking the write path.
package memory
