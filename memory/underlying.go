package memory

import "sync"

// Underlying is the allocator an Allocator adaptor wraps. H is the
// handle type used to refer to allocated ranges; it does not have to be
// a machine address (an offset into a shared segment works just as
// well), and the adaptor never converts handles to addresses itself.
// V is the value type constructed in allocated storage.
//
// Destroy may fail when destruction is a user-visible operation (for
// example flushing or unmapping); deallocation cannot fail.
type Underlying[H, V any] interface {
	// Allocate obtains storage for n contiguous objects.
	Allocate(n int) (H, error)

	// Deallocate releases storage previously obtained from Allocate
	// with the same n.
	Deallocate(h H, n int)

	// Construct places v as the i-th object of the range h.
	Construct(h H, i int, v V)

	// Destroy tears down the i-th object of the range h.
	Destroy(h H, i int) error

	// Equal reports whether storage allocated by the receiver may be
	// deallocated through other, and vice versa.
	Equal(other Underlying[H, V]) bool
}

// ByteSource is the byte-granularity rebinding of an underlying
// allocator. The delay pipeline charges all of its buffer storage to a
// ByteSource, so an underlying allocator that implements it sees the
// pipeline's own memory demand and may refuse it.
type ByteSource interface {
	AllocateBytes(n int) ([]byte, error)
	DeallocateBytes(b []byte)
}

// heapBytes is the fallback ByteSource: plain Go heap allocations that
// the collector reclaims on its own.
type heapBytes struct{}

func (heapBytes) AllocateBytes(n int) ([]byte, error) { return make([]byte, n), nil }

func (heapBytes) DeallocateBytes([]byte) {}

// HeapAllocator is an Underlying over the Go heap. Ranges are ordinary
// slices and the handle is the slice itself. OnDestroy, when set, runs
// for every object being destroyed; it is how callers observe the end
// of an object's grace period.
//
// All HeapAllocators of one value type are interchangeable for
// deallocation, so they always compare equal.
type HeapAllocator[V any] struct {
	OnDestroy func(*V) error
}

func (HeapAllocator[V]) Allocate(n int) ([]V, error) { return make([]V, n), nil }

func (HeapAllocator[V]) Deallocate(h []V, n int) {}

func (HeapAllocator[V]) Construct(h []V, i int, v V) { h[i] = v }

func (a HeapAllocator[V]) Destroy(h []V, i int) error {
	if a.OnDestroy != nil {
		if err := a.OnDestroy(&h[i]); err != nil {
			return err
		}
	}
	var zero V
	h[i] = zero
	return nil
}

func (HeapAllocator[V]) Equal(other Underlying[[]V, V]) bool {
	_, ok := other.(HeapAllocator[V])
	return ok
}

// PoolAllocator is an Underlying that recycles objects through a
// sync.Pool. Its handle is a []*V of pooled objects: Destroy resets an
// object and Deallocate returns the range to the pool.
type PoolAllocator[V any] struct {
	pool  *sync.Pool
	reset func(*V)
}

// NewPoolAllocator builds a pool-backed underlying allocator. reset,
// when non-nil, runs on every object as it is destroyed, before the
// object goes back to the pool.
func NewPoolAllocator[V any](reset func(*V)) *PoolAllocator[V] {
	return &PoolAllocator[V]{
		pool:  &sync.Pool{New: func() any { return new(V) }},
		reset: reset,
	}
}

func (p *PoolAllocator[V]) Allocate(n int) ([]*V, error) {
	h := make([]*V, n)
	for i := range h {
		h[i] = p.pool.Get().(*V)
	}
	return h, nil
}

func (p *PoolAllocator[V]) Deallocate(h []*V, n int) {
	for i := 0; i < n; i++ {
		p.pool.Put(h[i])
	}
}

func (p *PoolAllocator[V]) Construct(h []*V, i int, v V) { *h[i] = v }

func (p *PoolAllocator[V]) Destroy(h []*V, i int) error {
	if p.reset != nil {
		p.reset(h[i])
	}
	return nil
}

// Equal is true only for the same pool instance: objects must go back
// to the pool they came from.
func (p *PoolAllocator[V]) Equal(other Underlying[[]*V, V]) bool {
	q, ok := other.(*PoolAllocator[V])
	return ok && q.pool == p.pool
}
