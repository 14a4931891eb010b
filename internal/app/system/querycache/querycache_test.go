package querycache_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/querycache"
	"github.com/redis/go-redis/v9"
)

func newLRUCache() (*querycache.Cache, *querycache.LRU) {
	b := querycache.NewLRU(128, time.Minute)
	return querycache.New(b, time.Minute, nil), b
}

func TestFetch_CachesValue(t *testing.T) {
	c, _ := newLRUCache()
	ctx := context.Background()

	var loads int
	loader := func(context.Context) ([]string, error) {
		loads++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := querycache.Fetch(ctx, c, "donors:list:all", loader)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(v) != 2 || v[1] != "b" {
			t.Errorf("value = %v", v)
		}
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	c, _ := newLRUCache()
	ctx := context.Background()

	boom := errors.New("boom")
	calls := 0
	loader := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}

	if _, err := querycache.Fetch(ctx, c, "k", loader); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	v, err := querycache.Fetch(ctx, c, "k", loader)
	if err != nil || v != 7 {
		t.Errorf("second Fetch = %v, %v", v, err)
	}
}

func TestFetch_ConcurrentCallersShareOneLoad(t *testing.T) {
	c, _ := newLRUCache()
	ctx := context.Background()

	var loads atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (int, error) {
		loads.Add(1)
		<-release
		return 42, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = querycache.Fetch(ctx, c, "donor:1", loader)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
	for i, r := range results {
		if r != 42 {
			t.Errorf("result %d = %d", i, r)
		}
	}
}

func TestInvalidate_DropsPrefix(t *testing.T) {
	c, b := newLRUCache()
	ctx := context.Background()

	load := func(v int) func(context.Context) (int, error) {
		return func(context.Context) (int, error) { return v, nil }
	}
	querycache.Fetch(ctx, c, "donors:list:all", load(1))
	querycache.Fetch(ctx, c, "donors:search:am", load(2))
	querycache.Fetch(ctx, c, "donor:abc", load(3))
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}

	if err := c.Invalidate(ctx, "donors:"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("Len after invalidate = %d, want 1", b.Len())
	}

	v, _ := querycache.Fetch(ctx, c, "donors:list:all", load(10))
	if v != 10 {
		t.Errorf("reloaded value = %d, want 10", v)
	}
	v, _ = querycache.Fetch(ctx, c, "donor:abc", load(30))
	if v != 3 {
		t.Errorf("untouched key = %d, want 3", v)
	}
}

func TestInvalidate_StaleLoadIsNotStored(t *testing.T) {
	c, b := newLRUCache()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int)
	go func() {
		v, _ := querycache.Fetch(ctx, c, "donors:list:all", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()

	<-started
	c.Invalidate(ctx, "donors:")
	close(release)

	if v := <-done; v != 1 {
		t.Errorf("in-flight caller got %d, want 1", v)
	}
	if b.Len() != 0 {
		t.Error("a load that raced an invalidation must not be stored")
	}
}

// racingBackend runs an Invalidate while the first Set is in flight, before
// the value reaches the underlying LRU.
type racingBackend struct {
	*querycache.LRU
	cache *querycache.Cache
	once  sync.Once
}

func (b *racingBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	b.once.Do(func() { b.cache.Invalidate(ctx, "donors:") })
	return b.LRU.Set(ctx, key, val, ttl)
}

func TestInvalidate_DuringSetDropsStoredValue(t *testing.T) {
	ctx := context.Background()
	b := &racingBackend{LRU: querycache.NewLRU(16, time.Minute)}
	c := querycache.New(b, time.Minute, nil)
	b.cache = c

	v, err := querycache.Fetch(ctx, c, "donors:list:all", func(context.Context) (string, error) { return "old", nil })
	if err != nil || v != "old" {
		t.Fatalf("first Fetch = %q, %v", v, err)
	}
	if b.Len() != 0 {
		t.Errorf("value stored across an invalidation: %d entries", b.Len())
	}

	v, err = querycache.Fetch(ctx, c, "donors:list:all", func(context.Context) (string, error) { return "new", nil })
	if err != nil {
		t.Fatal(err)
	}
	if v != "new" {
		t.Errorf("Fetch after invalidation = %q, want %q", v, "new")
	}
}

func TestNilCache_PassesThrough(t *testing.T) {
	var c *querycache.Cache
	v, err := querycache.Fetch(context.Background(), c, "k", func(context.Context) (string, error) { return "x", nil })
	if err != nil || v != "x" {
		t.Errorf("Fetch = %q, %v", v, err)
	}
	if err := c.Invalidate(context.Background(), "k"); err != nil {
		t.Errorf("Invalidate: %v", err)
	}
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("DONORHUB_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: time.Second})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable (%s): %v", addr, err)
	}

	ns := "donorhub_test_" + time.Now().Format("150405.000000")
	b := querycache.NewRedis(client, ns)
	t.Cleanup(func() { b.DeletePrefix(context.Background(), "") })

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, querycache.ErrMiss) {
		t.Errorf("Get(missing) err = %v, want ErrMiss", err)
	}

	c := querycache.New(b, time.Minute, nil)
	loads := 0
	loader := func(context.Context) (map[string]int, error) {
		loads++
		return map[string]int{"total": 5}, nil
	}
	for i := 0; i < 2; i++ {
		v, err := querycache.Fetch(ctx, c, "donors:summary", loader)
		if err != nil || v["total"] != 5 {
			t.Fatalf("Fetch = %v, %v", v, err)
		}
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}

	if err := c.Invalidate(ctx, "donors:"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := b.Get(ctx, "donors:summary"); !errors.Is(err, querycache.ErrMiss) {
		t.Errorf("after invalidate err = %v, want ErrMiss", err)
	}
}
