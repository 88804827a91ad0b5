package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBudget_ConsumesUnits(t *testing.T) {
	b := NewBudget(3, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, ok := b.TryAcquire(); !ok {
			t.Fatalf("TryAcquire() %d rejected with budget remaining", i+1)
		}
	}

	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}

	retryAfter, ok := b.TryAcquire()
	if ok {
		t.Fatal("TryAcquire() admitted a request past capacity")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}
}

func TestBudget_RefillsAfterWindow(t *testing.T) {
	b := NewBudget(1, time.Minute, zerolog.Nop())

	base := time.Now()
	b.SetClock(func() time.Time { return base })
	b.Reset()

	if _, ok := b.TryAcquire(); !ok {
		t.Fatal("first TryAcquire() rejected")
	}
	if _, ok := b.TryAcquire(); ok {
		t.Fatal("TryAcquire() admitted past capacity")
	}

	b.SetClock(func() time.Time { return base.Add(61 * time.Second) })

	if _, ok := b.TryAcquire(); !ok {
		t.Error("TryAcquire() rejected after window elapsed")
	}
}

func TestBudget_CooldownBlocksDespiteCapacity(t *testing.T) {
	b := NewBudget(10, time.Minute, zerolog.Nop())

	base := time.Now()
	b.SetClock(func() time.Time { return base })
	b.Reset()

	b.ApplyCooldown(30 * time.Second)

	retryAfter, ok := b.TryAcquire()
	if ok {
		t.Fatal("TryAcquire() admitted a request during cool-down")
	}
	if retryAfter <= 0 || retryAfter > 30*time.Second {
		t.Errorf("retryAfter = %v, want within (0, 30s]", retryAfter)
	}

	// Once the cool-down passes, requests flow again.
	b.SetClock(func() time.Time { return base.Add(31 * time.Second) })
	if _, ok := b.TryAcquire(); !ok {
		t.Error("TryAcquire() rejected after cool-down elapsed")
	}
}

func TestBudget_CooldownDefaultsAndNeverShrinks(t *testing.T) {
	b := NewBudget(10, time.Minute, zerolog.Nop())

	base := time.Now()
	b.SetClock(func() time.Time { return base })
	b.Reset()

	b.ApplyCooldown(0) // no Retry-After hint

	retryAfter, ok := b.TryAcquire()
	if ok {
		t.Fatal("TryAcquire() admitted a request during default cool-down")
	}
	if retryAfter > DefaultCooldown || retryAfter < DefaultCooldown-time.Second {
		t.Errorf("retryAfter = %v, want about %v", retryAfter, DefaultCooldown)
	}

	// A shorter hint must not shrink the deadline already in force.
	b.ApplyCooldown(5 * time.Second)

	retryAfter, ok = b.TryAcquire()
	if ok {
		t.Fatal("TryAcquire() admitted after shorter cool-down hint")
	}
	if retryAfter < 30*time.Second {
		t.Errorf("retryAfter = %v shrank below the original deadline", retryAfter)
	}
}

func TestBudget_NeverOverdrawnUnderConcurrency(t *testing.T) {
	const capacity = 10
	b := NewBudget(capacity, time.Minute, zerolog.Nop())

	var admitted atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := b.TryAcquire(); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != capacity {
		t.Errorf("admitted %d requests, want exactly %d", got, capacity)
	}
	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestBudget_DefaultParameters(t *testing.T) {
	b := NewBudget(0, 0, zerolog.Nop())

	if got := b.Remaining(); got != DefaultCapacity {
		t.Errorf("Remaining() = %d, want default capacity %d", got, DefaultCapacity)
	}
}

func TestBudget_Reset(t *testing.T) {
	b := NewBudget(2, time.Minute, zerolog.Nop())

	b.TryAcquire()
	b.TryAcquire()
	b.ApplyCooldown(time.Hour)

	b.Reset()

	if got := b.Remaining(); got != 2 {
		t.Errorf("Remaining() after Reset = %d, want 2", got)
	}
	if _, ok := b.TryAcquire(); !ok {
		t.Error("TryAcquire() rejected after Reset")
	}
}
