package cache

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackground_RunsAndCounts(t *testing.T) {
	bg := NewBackground(2)
	var ran atomic.Int32
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		i := i
		bg.WaitUntil(func() error {
			ran.Add(1)
			if i == 3 {
				return boom
			}
			return nil
		})
	}
	if err := bg.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait() error = %v, want %v", err, boom)
	}
	if ran.Load() != 5 || bg.Started() != 5 {
		t.Errorf("ran=%d started=%d, want 5", ran.Load(), bg.Started())
	}
	if bg.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", bg.Failures())
	}
}

func TestBackground_Limit(t *testing.T) {
	bg := NewBackground(1)
	var active, peak atomic.Int32
	for i := 0; i < 4; i++ {
		bg.WaitUntil(func() error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	if err := bg.Wait(); err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}
