package memory

import (
	"errors"
	"fmt"
	"time"
)

// PurgeMode selects how far Purge drains the delay list.
type PurgeMode int

const (
	// Opportunistic stops at the first buffer whose timeout has not
	// elapsed yet. It never blocks.
	Opportunistic PurgeMode = iota

	// Exhaustive drains the whole delay list, sleeping until each
	// buffer's deadline as required.
	Exhaustive
)

// DefaultBufferCapacity is the number of entries a delay buffer holds
// when Options does not say otherwise.
const DefaultBufferCapacity = 100

// Options configures an Allocator.
type Options[H, V any] struct {
	// Underlying is the wrapped allocator. Required.
	Underlying Underlying[H, V]

	// Timeout is the minimum duration between a Deallocate call and
	// the reclamation of its storage. Required, must be positive.
	Timeout time.Duration

	// BufferCapacity is the entry count of a single delay buffer.
	// Zero means DefaultBufferCapacity; anything else must be >= 1.
	// Larger buffers coarsen the effective timeout but amortize list
	// traffic and purge passes.
	BufferCapacity int

	// Bytes supplies delay-buffer storage. When nil, the Underlying
	// is used if it implements ByteSource, otherwise the Go heap.
	Bytes ByteSource

	// Clock overrides the monotonic time source.
	Clock Clock
}

// Allocator defers object destruction and storage release until Timeout
// has elapsed since deallocation was requested. It is an adaptor: all
// storage and object lifecycle operations delegate to the Underlying.
//
// An Allocator is not safe for concurrent use of one instance; callers
// serialize access (the data it protects is what becomes safe to read
// without locks). Allocate, Construct, Destroy and opportunistic Purge
// never block. Deallocate blocks only on the allocation-failure
// recovery path; exhaustive Purge and Close sleep as required.
type Allocator[H, V any] struct {
	underlying Underlying[H, V]
	bytes      ByteSource
	clock      Clock
	timeout    time.Duration

	// now caches the last observed clock reading; refreshed at
	// sealing and at purge entry to avoid redundant clock reads.
	now time.Time

	capacity int
	size     int             // fill of current, in [0, capacity)
	current  *delayBuffer[H] // nil iff moved-from or closed
	list     delayList[H]
}

// New builds an Allocator and allocates its initial delay buffer.
func New[H, V any](opts Options[H, V]) (*Allocator[H, V], error) {
	if opts.Underlying == nil {
		return nil, errors.New("memory: an underlying allocator is required")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("memory: timeout must be positive, got %v", opts.Timeout)
	}
	capacity := opts.BufferCapacity
	if capacity == 0 {
		capacity = DefaultBufferCapacity
	}
	if capacity < 1 {
		return nil, fmt.Errorf("memory: delay buffer capacity must be at least 1, got %d", capacity)
	}
	bytes := opts.Bytes
	if bytes == nil {
		if bs, ok := opts.Underlying.(ByteSource); ok {
			bytes = bs
		} else {
			bytes = heapBytes{}
		}
	}
	clk := opts.Clock
	if clk == nil {
		clk = MonotonicClock{}
	}

	a := &Allocator[H, V]{
		underlying: opts.Underlying,
		bytes:      bytes,
		clock:      clk,
		timeout:    opts.Timeout,
		now:        clk.Now(),
		capacity:   capacity,
	}
	buf, err := a.newBuffer()
	if err != nil {
		return nil, fmt.Errorf("memory: allocate initial delay buffer: %w", err)
	}
	a.current = buf
	return a, nil
}

// Timeout returns the configured grace period.
func (a *Allocator[H, V]) Timeout() time.Duration { return a.timeout }

// BufferCapacity returns the entry count of a single delay buffer.
func (a *Allocator[H, V]) BufferCapacity() int { return a.capacity }

// PendingEntries returns the number of entries currently in the
// pipeline: every sealed buffer is full, plus the current buffer's
// fill level.
func (a *Allocator[H, V]) PendingEntries() int {
	if a.current == nil {
		return 0
	}
	return a.list.len()*a.capacity + a.size
}

// Allocate forwards to the underlying allocator.
//
// Storage obtained here must be constructed through Construct before it
// may ever be deallocated: deallocation implies deferred destruction,
// and destroying a never-constructed object is a caller error.
func (a *Allocator[H, V]) Allocate(n int) (H, error) {
	a.mustBeLive()
	return a.underlying.Allocate(n)
}

// Construct forwards to the underlying allocator's Construct.
func (a *Allocator[H, V]) Construct(h H, i int, v V) {
	a.mustBeLive()
	a.underlying.Construct(h, i, v)
}

// Destroy does nothing: destruction is deferred until reclamation.
//
// Because the object is still alive after this call, constructing a new
// object in the same storage afterwards is a caller error.
func (a *Allocator[H, V]) Destroy(H, int) {
	a.mustBeLive()
}

// Equal reports whether storage allocated by one allocator may be fed
// to the other: the underlying allocators compare equal and the
// timeouts match. Buffer capacity is a performance knob and does not
// participate.
func (a *Allocator[H, V]) Equal(b *Allocator[H, V]) bool {
	return a.timeout == b.timeout && a.underlying.Equal(b.underlying)
}

// Deallocate marks the range for delayed destruction and deallocation.
// The range must come from a matching Allocate on this allocator (or an
// Equal one) and must have been fully constructed.
//
// The entry joins the current delay buffer. When the buffer fills, it
// is sealed with the current time and handed to the delay list, and the
// allocator arranges a fresh current buffer: first by recycling one
// freed by an opportunistic purge, then by allocating, and as a last
// resort by sleeping until the list head expires and recycling it. An
// allocation failure is therefore never surfaced; the only errors
// returned are destructor failures from entries reclaimed along the
// way.
func (a *Allocator[H, V]) Deallocate(h H, n int) error {
	a.mustBeLive()
	// The buffer is drained below capacity before every return, so
	// there is always room here.
	a.current.entries[a.size] = entry[H]{handle: h, count: n}
	a.size++
	if a.size < a.capacity {
		return nil
	}

	// Seal. One clock read serves as both the buffer timestamp and
	// the cached now for the purge below.
	a.now = a.clock.Now()
	a.current.timestamp = a.now
	a.list.pushBack(a.current)
	a.current = nil

	reuse, err := a.purgeWithhold()
	if reuse == nil {
		var allocErr error
		reuse, allocErr = a.newBuffer()
		if allocErr != nil {
			// The buffer sealed above is on the list, so waiting
			// out the head is guaranteed to yield a recyclable
			// buffer eventually.
			var waitErr error
			reuse, waitErr = a.waitAndRecycle()
			err = errors.Join(err, waitErr)
		}
	}
	a.current = reuse
	a.size = 0
	return err
}

// Purge reclaims expired buffers from the head of the delay list.
// Reclamation order is strictly FIFO by sealing time. The current
// buffer is never touched: it has no meaningful timestamp yet, and
// reclaiming it could cut an entry's grace period short.
//
// The returned error aggregates destructor failures; the sweep itself
// always leaves the list consistent.
func (a *Allocator[H, V]) Purge(mode PurgeMode) error {
	if mode != Opportunistic && mode != Exhaustive {
		panic("memory: unknown purge mode")
	}
	a.mustBeLive()

	a.now = a.clock.Now()
	var errs []error
	for !a.list.empty() {
		head := a.list.head
		deadline := head.timestamp.Add(a.timeout)

		if a.now.After(deadline) {
			a.list.popFront()
			if err := a.reclaim(head.entries); err != nil {
				errs = append(errs, err)
			}
			a.freeBuffer(head)
			continue
		}
		if mode == Opportunistic {
			break
		}
		a.clock.SleepUntil(deadline)
		a.list.popFront()
		if err := a.reclaim(head.entries); err != nil {
			errs = append(errs, err)
		}
		a.freeBuffer(head)
		// We slept to at least the deadline; no clock reread needed.
		a.now = deadline
	}
	return errors.Join(errs...)
}

// Clone copies the underlying allocator and the timeout and capacity
// settings. The delay buffer and delay list are never shared: the clone
// starts with a fresh, empty pipeline. Each entry lives in exactly one
// pipeline, which is what makes Equal allocators safe to cross-feed.
func (a *Allocator[H, V]) Clone() (*Allocator[H, V], error) {
	a.mustBeLive()
	return New(Options[H, V]{
		Underlying:     a.underlying,
		Timeout:        a.timeout,
		BufferCapacity: a.capacity,
		Bytes:          a.bytes,
		Clock:          a.clock,
	})
}

// Move transfers the whole pipeline (current buffer, its fill level and
// the delay list) to a newly returned allocator and marks the receiver
// moved-from. On a moved-from allocator Close is a no-op, PendingEntries
// reports 0 and Timeout and BufferCapacity still answer; every other
// operation panics.
func (a *Allocator[H, V]) Move() *Allocator[H, V] {
	a.mustBeLive()
	m := &Allocator[H, V]{
		underlying: a.underlying,
		bytes:      a.bytes,
		clock:      a.clock,
		timeout:    a.timeout,
		now:        a.clock.Now(),
		capacity:   a.capacity,
		size:       a.size,
		current:    a.current,
		list:       a.list,
	}
	a.current = nil
	a.size = 0
	a.list = delayList[H]{}
	return m
}

// Close drains the pipeline completely, honoring every entry's grace
// period, and releases the current buffer. It sleeps as required: first
// through an exhaustive purge of the delay list, then for the current
// buffer's own deadline if it holds entries. The current buffer cannot
// ride the delay list because list members are full by invariant, so
// its live prefix is reclaimed separately.
//
// Closing a moved-from (or already closed) allocator is a no-op.
func (a *Allocator[H, V]) Close() error {
	if a.current == nil {
		return nil
	}
	a.current.timestamp = a.clock.Now()

	err := a.Purge(Exhaustive)

	var prefixErr error
	if a.size > 0 {
		a.clock.SleepUntil(a.current.timestamp.Add(a.timeout))
		prefixErr = a.reclaim(a.current.entries[:a.size])
	}
	a.freeBuffer(a.current)
	a.current = nil
	a.size = 0
	return errors.Join(err, prefixErr)
}

// Rebound builds an adaptor over a differently-typed underlying
// allocator, carrying over the receiver's timeout, capacity and clock.
// It is the rebinding operation of the allocator contract.
func Rebound[H2, V2, H, V any](a *Allocator[H, V], u Underlying[H2, V2]) (*Allocator[H2, V2], error) {
	a.mustBeLive()
	return New(Options[H2, V2]{
		Underlying:     u,
		Timeout:        a.timeout,
		BufferCapacity: a.capacity,
		Clock:          a.clock,
	})
}

func (a *Allocator[H, V]) mustBeLive() {
	if a.current == nil {
		panic("memory: use of moved-from or closed allocator")
	}
}

// reclaim destroys every object of every entry, then deallocates each
// range through the underlying allocator. It never consults timestamps;
// eligibility is the caller's concern. A failing destructor does not
// stop the sweep: every entry is still deallocated and the failures
// come back joined.
func (a *Allocator[H, V]) reclaim(ents []entry[H]) error {
	var errs []error
	for i := range ents {
		e := ents[i]
		for j := 0; j < e.count; j++ {
			if err := a.underlying.Destroy(e.handle, j); err != nil {
				errs = append(errs, err)
			}
		}
		a.underlying.Deallocate(e.handle, e.count)
	}
	return errors.Join(errs...)
}

// purgeWithhold is the opportunistic purge of the deallocate pipeline.
// It runs against the cached now (set at sealing) and withholds the
// first buffer it frees for reuse as the next current buffer; buffers
// freed after that go back to the byte source. The withheld buffer is
// the oldest one, i.e. the earliest sealed.
func (a *Allocator[H, V]) purgeWithhold() (*delayBuffer[H], error) {
	var reuse *delayBuffer[H]
	var errs []error
	for !a.list.empty() {
		head := a.list.head
		if !a.now.After(head.timestamp.Add(a.timeout)) {
			break
		}
		a.list.popFront()
		if err := a.reclaim(head.entries); err != nil {
			errs = append(errs, err)
		}
		if reuse == nil {
			reuse = head
		} else {
			a.freeBuffer(head)
		}
	}
	return reuse, errors.Join(errs...)
}

// waitAndRecycle is the allocation-failure recovery path: sleep until
// the list head's deadline, refresh the cached now, and purge with
// withholding. The loop guards against a clock reading that lands
// exactly on the deadline; in the worst case the buffer recycled is the
// one sealed by the very Deallocate call that got us here.
func (a *Allocator[H, V]) waitAndRecycle() (*delayBuffer[H], error) {
	var errs []error
	for {
		head := a.list.head
		a.clock.SleepUntil(head.timestamp.Add(a.timeout))
		a.now = a.clock.Now()
		b, err := a.purgeWithhold()
		if err != nil {
			errs = append(errs, err)
		}
		if b != nil {
			return b, errors.Join(errs...)
		}
	}
}

func (a *Allocator[H, V]) newBuffer() (*delayBuffer[H], error) {
	raw, err := a.bytes.AllocateBytes(bufferFootprint[H](a.capacity))
	if err != nil {
		return nil, err
	}
	return &delayBuffer[H]{
		carrier: raw,
		entries: make([]entry[H], a.capacity),
	}, nil
}

func (a *Allocator[H, V]) freeBuffer(b *delayBuffer[H]) {
	a.bytes.DeallocateBytes(b.carrier)
	b.carrier = nil
	b.next = nil
}
