package timedlist

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestListExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	l := NewWithClock[string](5*time.Minute, clk.Now)

	l.Add("ann")
	if !l.Contains("ann") {
		t.Fatal("ann should be present right after Add")
	}
	clk.Advance(4*time.Minute + 59*time.Second)
	if !l.Contains("ann") {
		t.Fatal("ann should still be present before the interval ends")
	}
	clk.Advance(time.Second)
	if l.Contains("ann") {
		t.Fatal("ann should have expired at now+interval")
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestListAddRefreshesExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	l := NewWithClock[string](time.Minute, clk.Now)

	l.Add("bob")
	clk.Advance(50 * time.Second)
	l.Add("bob")
	clk.Advance(50 * time.Second)
	if !l.Contains("bob") {
		t.Fatal("re-adding must push the expiry forward")
	}
}

func TestListAddForAndRemove(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	l := NewWithClock[int](time.Minute, clk.Now)

	l.AddFor(1, time.Hour)
	l.Add(2)
	l.Add(3)
	l.Remove(3)
	clk.Advance(2 * time.Minute)

	keys := l.Keys()
	sort.Ints(keys)
	if len(keys) != 1 || keys[0] != 1 {
		t.Errorf("Keys = %v, want [1]", keys)
	}
	if l.Interval() != time.Minute {
		t.Errorf("Interval = %v", l.Interval())
	}
}

func TestListConcurrent(t *testing.T) {
	l := New[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Add(i)
			_ = l.Contains(i)
			_ = l.Keys()
		}(i)
	}
	wg.Wait()
	if l.Len() != 50 {
		t.Errorf("Len = %d, want 50", l.Len())
	}
}

func TestLocalSet(t *testing.T) {
	ctx := context.Background()
	s := Local(New[string](time.Minute))
	if err := s.Add(ctx, "ann"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Contains(ctx, "ann"); !ok {
		t.Error("ann should be present")
	}
	_ = s.Remove(ctx, "ann")
	if ok, _ := s.Contains(ctx, "ann"); ok {
		t.Error("ann should be removed")
	}
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisSet(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	s := NewRedisSet(client, "warned", 5*time.Minute)

	if ok, err := s.Contains(ctx, "ann"); err != nil || ok {
		t.Fatalf("Contains before Add = %v, %v", ok, err)
	}
	if err := s.Add(ctx, "ann"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("twitchbot:warned:ann") {
		t.Error("expected prefixed key in redis")
	}
	if ttl := mr.TTL("twitchbot:warned:ann"); ttl != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", ttl)
	}
	if ok, _ := s.Contains(ctx, "ann"); !ok {
		t.Error("ann should be present")
	}

	mr.FastForward(5 * time.Minute)
	if ok, _ := s.Contains(ctx, "ann"); ok {
		t.Error("ann should expire with the TTL")
	}

	_ = s.Add(ctx, "bob")
	if err := s.Remove(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Contains(ctx, "bob"); ok {
		t.Error("bob should be removed")
	}
}

func TestRedisSetUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()
	s := NewRedisSet(client, "allowed", time.Minute)
	if _, err := s.Contains(context.Background(), "ann"); err == nil {
		t.Error("expected error from closed redis")
	}
}

func TestDialRedis(t *testing.T) {
	_, mr := setupTestRedis(t)
	client, err := DialRedis(context.Background(), mr.Addr(), "", 0, 1)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	_ = client.Close()
}
