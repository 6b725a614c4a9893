package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPoolRunsEveryJob(t *testing.T) {
	p := NewPool(zerolog.Nop(), "test", 3, 2)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var g gauge
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		err := p.Submit(context.Background(), func(ctx context.Context) {
			g.enter()
			defer g.leave()
			time.Sleep(2 * time.Millisecond)
			ran.Add(1)
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	p.Close()

	if ran.Load() != 20 {
		t.Errorf("expected 20 jobs, ran %d", ran.Load())
	}
	if g.peak.Load() > 3 {
		t.Errorf("concurrency %d exceeds pool size", g.peak.Load())
	}
}

func TestPoolSubmitBlocksUntilCancelled(t *testing.T) {
	p := NewPool(zerolog.Nop(), "test", 1, 0)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	if err := p.Submit(context.Background(), func(ctx context.Context) {
		defer wg.Done()
		<-release
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(ctx context.Context) { t.Error("job should not run") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while the only worker is busy, got %v", err)
	}

	close(release)
	wg.Wait()
	p.Close()
}

func TestPoolLifecycleErrors(t *testing.T) {
	p := NewPool(zerolog.Nop(), "test", 1, 1)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	p.Close()
	p.Close()

	if err := p.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}
