package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"lethe/memory"
	"lethe/spin"
)

// Version is one immutable revision of a key. Readers obtained it from
// Get and may dereference it until their read section ends; the store
// guarantees the storage outlives every section shorter than the
// configured grace period.
type Version struct {
	Key  string
	Data []byte
	Seq  uint64
}

// Config configures a Store.
type Config struct {
	// Timeout is the grace period granted to readers after a version
	// is overwritten or deleted. Required.
	Timeout time.Duration

	// BufferCapacity is forwarded to the allocator; zero keeps the
	// allocator default.
	BufferCapacity int

	// RingSize is the retire ring capacity, a power of two. Zero
	// means 1024.
	RingSize uint64

	// OnReclaim, when set, runs for every version whose grace period
	// has ended, just before its storage is released.
	OnReclaim func(*Version) error
}

// Store is the RCU key/value map. Get is lock-free and safe for any
// number of concurrent readers. Put, Delete, Reclaim and Purge
// serialize internally on a spin mutex, so any number of goroutines
// may call them, but the critical sections are short and must stay
// that way.
type Store struct {
	mu    spin.Mutex
	alloc *memory.Allocator[[]Version, Version]
	ring  *memory.RetireRing[[]Version]

	slots   sync.Map // string -> *slot
	count   atomic.Int64
	retired atomic.Uint64
	readers atomic.Int64
}

// slot is the per-key publication point. A nil pointer is a deleted
// key whose slot has not been dropped from the map yet.
type slot struct {
	ptr atomic.Pointer[Version]
}

// New builds a Store over a heap underlying allocator with the given
// grace period.
func New(cfg Config) (*Store, error) {
	ringSize := cfg.RingSize
	if ringSize == 0 {
		ringSize = 1024
	}
	alloc, err := memory.New(memory.Options[[]Version, Version]{
		Underlying:     memory.HeapAllocator[Version]{OnDestroy: cfg.OnReclaim},
		Timeout:        cfg.Timeout,
		BufferCapacity: cfg.BufferCapacity,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		alloc: alloc,
		ring:  memory.NewRetireRing[[]Version](ringSize),
	}, nil
}

// Timeout returns the reader grace period.
func (s *Store) Timeout() time.Duration { return s.alloc.Timeout() }

// Get returns the current version of key. The pointer stays valid for
// the duration of the caller's read section.
func (s *Store) Get(key string) (*Version, bool) {
	v, ok := s.slots.Load(key)
	if !ok {
		return nil, false
	}
	ver := v.(*slot).ptr.Load()
	if ver == nil {
		return nil, false
	}
	return ver, true
}

// Put installs a new version of key and retires the previous one, if
// any. seq must come from the update sequencer.
func (s *Store) Put(key string, data []byte, seq uint64) error {
	s.mu.Lock()
	h, err := s.alloc.Allocate(1)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.alloc.Construct(h, 0, Version{Key: key, Data: data, Seq: seq})

	v, _ := s.slots.LoadOrStore(key, &slot{})
	sl := v.(*slot)
	old := sl.ptr.Swap(&h[0])
	if old == nil {
		s.count.Add(1)
	}
	err = s.retire(old)
	s.mu.Unlock()
	return err
}

// Delete removes key and retires its last version. It reports whether
// the key existed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	v, ok := s.slots.Load(key)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	sl := v.(*slot)
	old := sl.ptr.Swap(nil)
	if old == nil {
		s.mu.Unlock()
		return false, nil
	}
	s.slots.Delete(key)
	s.count.Add(-1)
	err := s.retire(old)
	s.mu.Unlock()
	return true, err
}

// retire hands a replaced version to the reclaimer. Callers hold mu.
// When the ring is full the version goes straight into the allocator
// instead, so a stalled reclaimer slows writers down rather than
// losing retirements.
func (s *Store) retire(old *Version) error {
	if old == nil {
		return nil
	}
	s.retired.Add(1)
	h := unsafe.Slice(old, 1)
	if s.ring.Enqueue(h) {
		return nil
	}
	return s.alloc.Deallocate(h, 1)
}

// Reclaim drains the retire ring into the allocator's delay pipeline.
// Call it from a single reclaimer goroutine.
func (s *Store) Reclaim() error {
	var errs []error
	for {
		h, ok := s.ring.Dequeue()
		if !ok {
			break
		}
		s.mu.Lock()
		err := s.alloc.Deallocate(h, 1)
		s.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Purge releases retired versions whose grace period has elapsed.
func (s *Store) Purge(mode memory.PurgeMode) error {
	s.mu.Lock()
	err := s.alloc.Purge(mode)
	s.mu.Unlock()
	return err
}

// Stats is a point-in-time snapshot of store occupancy.
type Stats struct {
	Keys           int64
	Retired        uint64
	RingBacklog    int
	PendingEntries int
	ActiveReaders  int64
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	pending := s.alloc.PendingEntries()
	s.mu.Unlock()
	return Stats{
		Keys:           s.count.Load(),
		Retired:        s.retired.Load(),
		RingBacklog:    s.ring.Len(),
		PendingEntries: pending,
		ActiveReaders:  s.readers.Load(),
	}
}

// Close drains the retire ring and then the whole delay pipeline,
// sleeping out every remaining grace period.
func (s *Store) Close() error {
	drainErr := s.Reclaim()
	s.mu.Lock()
	closeErr := s.alloc.Close()
	s.mu.Unlock()
	return errors.Join(drainErr, closeErr)
}
