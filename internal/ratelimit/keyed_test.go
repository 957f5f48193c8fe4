package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNew_BurstCoercion_AndReuse(t *testing.T) {
	k := New(2, 0)
	if k.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", k.burst)
	}
	lim := k.limiter("u1")
	if got := k.limiter("u1"); got != lim {
		t.Fatal("expected the same bucket to be reused")
	}
}

func TestAllow_PerKeyBuckets(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k := New(1, 2)
	k.now = func() time.Time { return base }

	if !k.Allow("u1") || !k.Allow("u1") {
		t.Fatal("burst of 2 should allow two events")
	}
	if k.Allow("u1") {
		t.Fatal("third event in the same instant should be limited")
	}
	if !k.Allow("u2") {
		t.Fatal("other keys have their own bucket")
	}

	k.now = func() time.Time { return base.Add(time.Second) }
	if !k.Allow("u1") {
		t.Fatal("a token should be replenished after one second")
	}
}

func TestAllow_DisabledAndNil(t *testing.T) {
	var nilK *Keyed
	if !nilK.Allow("x") {
		t.Fatal("nil limiter allows everything")
	}
	k := New(0, 1)
	for i := 0; i < 10; i++ {
		if !k.Allow("x") {
			t.Fatal("rps<=0 disables limiting")
		}
	}
	if k.Len() != 0 {
		t.Fatal("disabled limiter should not track keys")
	}
}

func TestLimiter_EvictsIdleBuckets(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k := New(1, 1)
	k.ttl = time.Minute
	k.now = func() time.Time { return base }

	k.limiter("old")
	k.now = func() time.Time { return base.Add(2 * time.Minute) }
	k.lookups = gcEvery - 1
	k.limiter("fresh")

	if k.Len() != 1 {
		t.Fatalf("expected idle bucket evicted, have %d keys", k.Len())
	}
}

func TestAllow_Concurrent(t *testing.T) {
	k := New(1000, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k.Allow(fmt.Sprintf("u%d", i%4))
			}
		}(i)
	}
	wg.Wait()
	if k.Len() != 4 {
		t.Fatalf("expected 4 keys, got %d", k.Len())
	}
}
