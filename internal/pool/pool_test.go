package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	p := New(t.Context(), 2)

	var ran atomic.Int32
	next := func(d time.Duration) Job {
		return func(context.Context) time.Time {
			ran.Add(1)
			return time.Now().Add(d)
		}
	}

	p.Add("sample", next(100*time.Millisecond))
	p.Add("warm", next(-100*time.Millisecond))
	p.Add("publish", next(200*time.Millisecond))

	time.Sleep(300 * time.Millisecond)

	// If a worker had gotten stuck the late-deadline jobs would not run again.
	if n := ran.Load(); n < 5 {
		t.Fatalf("expected at least 5 runs, got %d", n)
	}
}

type run struct {
	left     int
	ran      atomic.Int32
	sleep    time.Duration
	deadline time.Duration
}

func (r *run) Execute(context.Context) time.Time {
	if r.left > 0 {
		time.Sleep(r.sleep)
		r.left--
		r.ran.Add(1)
		return time.Now().Add(r.deadline)
	}

	return time.Time{} // remove from the pool
}

func TestTrigger(t *testing.T) {
	t.Run("trigger pulls queued job to the front", func(t *testing.T) {
		p := New(t.Context(), 2)

		rx := &run{left: 3, deadline: 200 * time.Millisecond}

		p.Add("t", rx.Execute) // run #1, then queued for 200ms
		time.Sleep(10 * time.Millisecond)

		_ = p.Trigger("t") // run #2
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t")                 // run #3
		time.Sleep(300 * time.Millisecond) // no runs left, job removed

		if exp, act := int32(3), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger reruns executing job right away", func(t *testing.T) {
		p := New(t.Context(), 2)

		// Without the trigger there would be no second run within a second.
		rx := &run{left: 3, sleep: 100 * time.Millisecond, deadline: time.Second}

		p.Add("t", rx.Execute)
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t") // run #2 once run #1 is done

		time.Sleep(300 * time.Millisecond)

		if exp, act := int32(2), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		p := New(t.Context(), 1)
		if err := p.Trigger("missing"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestEvery(t *testing.T) {
	p := New(t.Context(), 1)

	var ran atomic.Int32
	p.Every("sample", 20*time.Millisecond, func(context.Context) { ran.Add(1) })

	time.Sleep(110 * time.Millisecond)

	if n := ran.Load(); n < 3 {
		t.Fatalf("expected at least 3 runs, got %d", n)
	}
}

func TestStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(ctx, 3)

	var ran atomic.Int32
	p.Every("sample", time.Hour, func(context.Context) { ran.Add(1) })
	time.Sleep(20 * time.Millisecond)

	cancel()

	stopped := make(chan struct{})
	go func() {
		p.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected workers to stop")
	}

	if n := ran.Load(); n != 1 {
		t.Fatalf("expected 1 run, got %d", n)
	}
}
