package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shaiso/Downloader/internal/domain"
)

// --- Topic Tests ---

func TestTopic_FanOut(t *testing.T) {
	topic := NewTopic[int](8)
	a := topic.Subscribe()
	b := topic.Subscribe()
	defer a.Close()
	defer b.Close()

	topic.Publish(1)
	topic.Publish(2)

	for _, s := range []*Subscription[int]{a, b} {
		for _, want := range []int{1, 2} {
			select {
			case got := <-s.C():
				if got != want {
					t.Errorf("expected %d, got %d", want, got)
				}
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for value")
			}
		}
	}
}

func TestTopic_NoReplay(t *testing.T) {
	topic := NewTopic[int](8)
	topic.Publish(1)

	s := topic.Subscribe()
	defer s.Close()

	select {
	case v := <-s.C():
		t.Fatalf("late subscriber should not see %d", v)
	default:
	}
}

func TestTopic_DropsOldestWhenFull(t *testing.T) {
	topic := NewTopic[int](2)
	s := topic.Subscribe()
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			topic.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if got := <-s.C(); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	if got := <-s.C(); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	if s.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", s.Dropped())
	}
}

func TestTopic_CloseSubscription(t *testing.T) {
	topic := NewTopic[int](1)
	s := topic.Subscribe()

	s.Close()
	s.Close()

	if _, ok := <-s.C(); ok {
		t.Error("channel should be closed")
	}
	if topic.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers, got %d", topic.Subscribers())
	}

	topic.Publish(1)
}

func TestTopic_Close(t *testing.T) {
	topic := NewTopic[int](1)
	s := topic.Subscribe()

	topic.Close()

	if _, ok := <-s.C(); ok {
		t.Error("subscription should be closed with topic")
	}

	late := topic.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("subscription to closed topic should be closed")
	}
	late.Close()
}

func TestTopic_LosslessKeepsEverything(t *testing.T) {
	topic := NewTopic[int](2)
	lossy := topic.Subscribe()
	lossless := topic.SubscribeLossless()
	defer lossy.Close()
	defer lossless.Close()

	const n = 1000
	for i := 1; i <= n; i++ {
		topic.Publish(i)
	}

	for want := 1; want <= n; want++ {
		select {
		case got := <-lossless.C():
			if got != want {
				t.Fatalf("expected %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("value %d was not delivered", want)
		}
	}
	if lossless.Dropped() != 0 {
		t.Errorf("lossless subscription should not drop, got %d", lossless.Dropped())
	}
	if lossy.Dropped() != n-2 {
		t.Errorf("expected %d dropped on lossy subscription, got %d", n-2, lossy.Dropped())
	}
}

func TestTopic_LosslessClose(t *testing.T) {
	topic := NewTopic[int](1)
	s := topic.SubscribeLossless()
	if topic.LosslessSubscribers() != 1 {
		t.Fatalf("expected 1 lossless subscriber, got %d", topic.LosslessSubscribers())
	}

	topic.Publish(1)
	topic.Publish(2)
	s.Close()
	s.Close()

	if topic.LosslessSubscribers() != 0 {
		t.Errorf("expected 0 lossless subscribers, got %d", topic.LosslessSubscribers())
	}

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-s.C():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel should be closed")
		}
	}
}

func TestTopic_LosslessClosedWithTopic(t *testing.T) {
	topic := NewTopic[int](1)
	s := topic.SubscribeLossless()
	topic.Close()

	select {
	case _, ok := <-s.C():
		if ok {
			t.Error("no values were published")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription should be closed with topic")
	}

	late := topic.SubscribeLossless()
	if _, ok := <-late.C(); ok {
		t.Error("subscription to closed topic should be closed")
	}
	if topic.LosslessSubscribers() != 0 {
		t.Errorf("expected 0 lossless subscribers, got %d", topic.LosslessSubscribers())
	}
}

// --- Commands Tests ---

func TestCommands_SendOrderPerSubscriber(t *testing.T) {
	c := NewCommands(16)
	defer c.Close()

	s := c.SubscribeLossless()

	ctx := context.Background()
	c.Send(ctx, domain.EnqueueCommand(domain.Request{ID: "a"}))
	c.Send(ctx, domain.CancelCommand("a"))
	c.Send(ctx, domain.CancelAllCommand())

	want := []domain.CommandKind{domain.CommandEnqueue, domain.CommandCancel, domain.CommandCancelAll}
	for _, kind := range want {
		cmd := <-s.C()
		if cmd.Kind != kind {
			t.Errorf("expected %s, got %s", kind, cmd.Kind)
		}
	}
}

func TestCommands_EnqueueNeedsLosslessReceiver(t *testing.T) {
	c := NewCommands(16)
	defer c.Close()

	ctx := context.Background()
	lossy := c.Subscribe()
	defer lossy.Close()

	err := c.Send(ctx, domain.EnqueueCommand(domain.Request{ID: "a"}))
	if !errors.Is(err, ErrNoReceiver) {
		t.Fatalf("expected ErrNoReceiver, got %v", err)
	}
	if err := c.Send(ctx, domain.CancelCommand("a")); err != nil {
		t.Errorf("cancel should not need a receiver, got %v", err)
	}

	s := c.SubscribeLossless()
	defer s.Close()
	if err := c.Send(ctx, domain.EnqueueCommand(domain.Request{ID: "a"})); err != nil {
		t.Errorf("Send() error: %v", err)
	}
}

func TestCommands_EnqueueBurstIsNotDropped(t *testing.T) {
	c := NewCommands(4)
	defer c.Close()

	s := c.SubscribeLossless()

	ctx := context.Background()
	const n = 500
	for i := range n {
		if err := c.Send(ctx, domain.EnqueueCommand(domain.Request{ID: fmt.Sprint(i)})); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}

	for i := range n {
		select {
		case cmd := <-s.C():
			if cmd.Request.ID != fmt.Sprint(i) {
				t.Fatalf("expected %d, got %s", i, cmd.Request.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("command %d was not delivered", i)
		}
	}
}
