package call

import (
	"testing"
	"time"
)

func TestAtMost(t *testing.T) {
	f := NewAtMost(3)
	ran := 0
	for i := 0; i < 10; i++ {
		Do(f, func() { ran++ })
	}
	if ran != 3 {
		t.Fatalf("ran = %d, want 3", ran)
	}
}

func TestOnce(t *testing.T) {
	f := Once()
	ran := 0
	for i := 0; i < 5; i++ {
		Do(f, func() { ran++ })
	}
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
}

func TestAtMostEveryFirstCallIsActive(t *testing.T) {
	f := NewAtMostEvery(time.Hour)
	if !f.Active() {
		t.Fatal("first call must be active")
	}
	if f.Active() {
		t.Fatal("second call within the interval must be inactive")
	}
}

func TestAtMostEveryReactivates(t *testing.T) {
	f := NewAtMostEvery(10 * time.Millisecond)
	if !f.Active() {
		t.Fatal("first call must be active")
	}
	time.Sleep(15 * time.Millisecond)
	if !f.Active() {
		t.Fatal("call after the interval must be active")
	}
}

func TestDoReportsWhetherItRan(t *testing.T) {
	f := NewAtMost(1)
	if !Do(f, func() {}) {
		t.Fatal("Do = false on an active flag")
	}
	if Do(f, func() {}) {
		t.Fatal("Do = true on an exhausted flag")
	}
}
