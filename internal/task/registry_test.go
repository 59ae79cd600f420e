package task

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	r := NewRegistry()

	if !r.Acquire("t1") {
		t.Fatal("first Acquire should succeed")
	}
	if r.Acquire("t1") {
		t.Error("second Acquire for same id should fail")
	}
	if !r.Acquire("t2") {
		t.Error("distinct ids must not block each other")
	}

	r.Release("t1")
	if !r.Acquire("t1") {
		t.Error("Acquire after Release should succeed")
	}
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Release("never-acquired")
	if r.InFlight("never-acquired") {
		t.Error("unheld id should not be in flight")
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	r := NewRegistry()

	const workers = 64
	var won atomic.Int32
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			if r.Acquire("t1") {
				won.Add(1)
			}
		}()
	}
	start.Done()
	done.Wait()

	if got := won.Load(); got != 1 {
		t.Errorf("winners = %d, want exactly 1", got)
	}
}
