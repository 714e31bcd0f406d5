package dispatch

import (
	"context"
	"testing"

	"github.com/jonwraymond/guardrail/resilience"
)

func benchDispatcher(b *testing.B) *Dispatcher {
	b.Helper()
	d, err := New(Config{
		Name:    "bench",
		Limiter: resilience.TokenBucketConfig{Capacity: 1 << 20, RefillRate: 1 << 20},
		Queue:   QueueConfig{Capacity: 1 << 16},
		Retry:   resilience.Policy{MaxAttempts: 1, JitterFraction: -1},
		Workers: 8,
	})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	b.Cleanup(func() { d.Shutdown(false) })
	return d
}

func BenchmarkSubmitWait(b *testing.B) {
	d := benchDispatcher(b)
	work := func(ctx context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := d.Submit(work, 0)
		if _, err := f.Wait(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSubmitWait_Parallel(b *testing.B) {
	d := benchDispatcher(b)
	work := func(ctx context.Context) error { return nil }

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			f := d.Submit(work, 0)
			if _, err := f.Wait(context.Background()); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkQueue_EnqueueDequeue(b *testing.B) {
	q, err := NewQueue[int](QueueConfig{Capacity: 1024})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.TryEnqueue(i)
		q.TryDequeue()
	}
}
