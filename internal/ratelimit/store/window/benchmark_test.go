package window

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"lifeline/internal/ratelimit/models"
)

var benchLimit = models.Limit{MaxRequests: 1000, Window: time.Minute}

// BenchmarkAllow measures single-threaded throughput
func BenchmarkAllow(b *testing.B) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	for b.Loop() {
		_, _ = store.Allow(ctx, "bench-key", benchLimit, now)
	}
}

// BenchmarkAllow_Parallel measures contention on a single hot identifier
func BenchmarkAllow_Parallel(b *testing.B) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Allow(ctx, "bench-key", benchLimit, now)
		}
	})
}

// BenchmarkAllow_HighCardinality_Parallel spreads load over many identifiers,
// where sharding should keep throughput close to linear.
func BenchmarkAllow_HighCardinality_Parallel(b *testing.B) {
	store := New()
	ctx := context.Background()
	now := time.Now()
	var counter atomic.Int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("rl:emergency:10.0.%d.%d", (i/256)%256, i%256)
			_, _ = store.Allow(ctx, key, benchLimit, now)
		}
	})
}

func BenchmarkSweep(b *testing.B) {
	store := New()
	ctx := context.Background()
	now := time.Now()
	for i := range 100_000 {
		_, _ = store.Allow(ctx, fmt.Sprintf("k:%d", i), benchLimit, now)
	}

	for b.Loop() {
		_, _ = store.Sweep(ctx, now)
	}
}
