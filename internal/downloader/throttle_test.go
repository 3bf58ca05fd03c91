package downloader

import (
	"testing"
	"time"

	"github.com/shaiso/Downloader/internal/domain"
)

// --- Throttler Tests ---

func TestThrottler_KeepsLatestInWindow(t *testing.T) {
	th := newThrottler(50 * time.Millisecond)
	defer th.stop()

	if s, ok := th.offer(domain.Downloading(0, 100)); !ok || s.BytesWritten != 0 {
		t.Fatalf("first value should pass, got %v %v", s, ok)
	}
	if _, ok := th.offer(domain.Downloading(10, 100)); ok {
		t.Fatal("second value inside window should be held")
	}
	if _, ok := th.offer(domain.Downloading(20, 100)); ok {
		t.Fatal("third value inside window should be held")
	}
	if th.C() == nil {
		t.Fatal("window timer should be armed")
	}

	select {
	case <-th.C():
	case <-time.After(time.Second):
		t.Fatal("window did not close")
	}

	s, ok := th.fire()
	if !ok || s.BytesWritten != 20 {
		t.Errorf("expected latest value 20, got %v %v", s, ok)
	}
	if th.C() != nil {
		t.Error("timer should be cleared after fire")
	}
}

func TestThrottler_SuppressesDuplicates(t *testing.T) {
	th := newThrottler(-1)

	if _, ok := th.offer(domain.Downloading(10, 100)); !ok {
		t.Fatal("first value should pass")
	}
	if _, ok := th.offer(domain.Downloading(10, 100)); ok {
		t.Error("duplicate should be suppressed")
	}
	if _, ok := th.offer(domain.Downloading(11, 100)); !ok {
		t.Error("new value should pass without window")
	}
}

func TestThrottler_SeedConsumesWindow(t *testing.T) {
	th := newThrottler(50 * time.Millisecond)
	defer th.stop()
	th.seed(domain.Downloading(0, 0))

	if _, ok := th.offer(domain.Downloading(0, 0)); ok {
		t.Error("seeded value should be suppressed")
	}
	if _, ok := th.offer(domain.Downloading(1, 10)); ok {
		t.Fatal("value right after seed should wait for the next window")
	}

	select {
	case <-th.C():
	case <-time.After(time.Second):
		t.Fatal("window did not close")
	}
	if s, ok := th.fire(); !ok || s != domain.Downloading(1, 10) {
		t.Errorf("expected held value, got %v %v", s, ok)
	}
}

func TestThrottler_SeedWithoutWindow(t *testing.T) {
	th := newThrottler(-1)
	th.seed(domain.Downloading(0, 0))

	if _, ok := th.offer(domain.Downloading(1, 10)); !ok {
		t.Error("value should pass without window")
	}
}

func TestThrottler_PendingDroppedWhenBackToLast(t *testing.T) {
	th := newThrottler(20 * time.Millisecond)
	defer th.stop()

	th.offer(domain.Downloading(5, 100))
	th.offer(domain.Downloading(6, 100))
	th.offer(domain.Downloading(5, 100))

	<-th.C()
	if s, ok := th.fire(); ok {
		t.Errorf("nothing new to emit, got %v", s)
	}
}
