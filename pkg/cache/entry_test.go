package cache

import (
	"testing"
	"time"
)

func TestEntry_Expiry(t *testing.T) {
	entry := NewEntry([]byte(`{"data": []}`), 200, time.Minute)

	if entry.IsExpired() {
		t.Error("fresh entry reported expired")
	}
	if ttl := entry.TTL(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL() = %v, want within (0, 1m]", ttl)
	}
}

func TestEntry_Expired(t *testing.T) {
	entry := NewEntry([]byte(`{"data": []}`), 200, -time.Second)

	if !entry.IsExpired() {
		t.Error("past-expiry entry reported fresh")
	}
	if ttl := entry.TTL(); ttl != 0 {
		t.Errorf("TTL() = %v, want 0 for expired entry", ttl)
	}
}
