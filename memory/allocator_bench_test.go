package memory

import (
	"testing"
	"time"
)

func BenchmarkDeallocate(b *testing.B) {
	a, err := New(Options[[]int, int]{
		Underlying:     HeapAllocator[int]{},
		Timeout:        time.Microsecond,
		BufferCapacity: 256,
	})
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	handles := make([][]int, b.N)
	for i := range handles {
		h, err := a.Allocate(1)
		if err != nil {
			b.Fatalf("Allocate: %v", err)
		}
		a.Construct(h, 0, i)
		handles[i] = h
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := a.Deallocate(handles[i], 1); err != nil {
			b.Fatalf("Deallocate: %v", err)
		}
	}
	b.StopTimer()

	if err := a.Close(); err != nil {
		b.Fatalf("Close: %v", err)
	}
}

func BenchmarkOpportunisticPurge(b *testing.B) {
	a, err := New(Options[[]int, int]{
		Underlying:     HeapAllocator[int]{},
		Timeout:        time.Microsecond,
		BufferCapacity: 64,
	})
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := a.Allocate(1)
		if err != nil {
			b.Fatalf("Allocate: %v", err)
		}
		a.Construct(h, 0, i)
		if err := a.Deallocate(h, 1); err != nil {
			b.Fatalf("Deallocate: %v", err)
		}
		if i%256 == 0 {
			if err := a.Purge(Opportunistic); err != nil {
				b.Fatalf("Purge: %v", err)
			}
		}
	}
	b.StopTimer()

	if err := a.Close(); err != nil {
		b.Fatalf("Close: %v", err)
	}
}
