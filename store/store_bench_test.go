package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lethe/memory"
)

func newBenchStore(b *testing.B) *Store {
	b.Helper()
	s, err := New(Config{
		Timeout:        time.Millisecond,
		BufferCapacity: 256,
		RingSize:       1 << 16,
	})
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	return s
}

func BenchmarkPut(b *testing.B) {
	s := newBenchStore(b)
	data := []byte("payload")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("k%d", i%1024)
		if err := s.Put(key, data, uint64(i+1)); err != nil {
			b.Fatalf("Put: %v", err)
		}
		// drain occasionally so the retire ring doesn't fill
		if i%512 == 0 {
			_ = s.Reclaim()
			_ = s.Purge(memory.Opportunistic)
		}
	}
}

func BenchmarkGet(b *testing.B) {
	s := newBenchStore(b)
	for i := 0; i < 1024; i++ {
		if err := s.Put(fmt.Sprintf("k%d", i), []byte("payload"), uint64(i+1)); err != nil {
			b.Fatalf("Put: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := s.Get(fmt.Sprintf("k%d", i%1024)); !ok {
			b.Fatal("Get missed a preloaded key")
		}
	}
}

func BenchmarkParallelGet(b *testing.B) {
	s := newBenchStore(b)
	for i := 0; i < 1024; i++ {
		if err := s.Put(fmt.Sprintf("k%d", i), []byte("payload"), uint64(i+1)); err != nil {
			b.Fatalf("Put: %v", err)
		}
	}

	var idx int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			n := atomic.AddInt64(&idx, 1)
			if _, ok := s.Get(fmt.Sprintf("k%d", n%1024)); !ok {
				b.Fatal("Get missed a preloaded key")
			}
		}
	})
}

// Not a benchmark, but simulates production: one writer, one reader,
// one reclaimer, all running against the same store.
func TestConcurrentModel(t *testing.T) {
	s, err := New(Config{
		Timeout:        time.Millisecond,
		BufferCapacity: 64,
		RingSize:       1 << 12,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50_000; i++ {
			key := fmt.Sprintf("k%d", i%256)
			if err := s.Put(key, []byte("v"), uint64(i+1)); err != nil {
				t.Errorf("Put: %v", err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		r := s.NewReader()
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.Begin()
			for i := 0; i < 256; i++ {
				s.Get(fmt.Sprintf("k%d", i))
			}
			r.End()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Reclaim()
			_ = s.Purge(memory.Opportunistic)
			time.Sleep(100 * time.Microsecond)
		}
	}()

	<-done
	close(stop)
	wg.Wait()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
