package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testMessage struct {
	n int
}

func (m *testMessage) Type() string {
	return "test"
}

// recordingActor records every message it receives
type recordingActor struct {
	id          string
	mu          sync.Mutex
	received    []int
	startCalled atomic.Bool
	stopCalled  atomic.Bool
	failOn      int
	block       chan struct{}
}

func newRecordingActor(id string) *recordingActor {
	return &recordingActor{id: id, failOn: -1}
}

func (a *recordingActor) ID() string { return a.id }

func (a *recordingActor) Start(ctx context.Context) error {
	a.startCalled.Store(true)
	return nil
}

func (a *recordingActor) Stop(ctx context.Context) error {
	a.stopCalled.Store(true)
	return nil
}

func (a *recordingActor) Receive(ctx context.Context, msg Message) error {
	if a.block != nil {
		<-a.block
	}
	m := msg.(*testMessage)
	a.mu.Lock()
	a.received = append(a.received, m.n)
	a.mu.Unlock()
	if m.n == a.failOn {
		return errors.New("test error")
	}
	return nil
}

func (a *recordingActor) snapshot() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.received...)
}

func stopRef(t *testing.T, ref *Ref) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ref.Stop(ctx); err != nil {
		t.Fatalf("failed to stop actor: %v", err)
	}
}

func TestRefStartStop(t *testing.T) {
	a := newRecordingActor("table")
	ref := NewRef("table", a, 4)

	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	if !a.startCalled.Load() {
		t.Error("Start() was not called on the actor")
	}
	if err := ref.Start(context.Background()); err == nil {
		t.Error("expected error starting twice")
	}

	stopRef(t, ref)
	if !a.stopCalled.Load() {
		t.Error("Stop() was not called on the actor")
	}

	select {
	case <-ref.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}

func TestRefProcessesInOrder(t *testing.T) {
	a := newRecordingActor("ordered")
	ref := NewRef("ordered", a, 8)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}

	for i := 0; i < 50; i++ {
		if err := ref.Send(context.Background(), &testMessage{n: i}); err != nil {
			t.Fatalf("failed to send message %d: %v", i, err)
		}
	}
	stopRef(t, ref)

	got := a.snapshot()
	if len(got) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(got))
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("message %d out of order: got %d", i, n)
		}
	}
}

func TestRefStopDrainsMailbox(t *testing.T) {
	a := newRecordingActor("drain")
	a.block = make(chan struct{})
	ref := NewRef("drain", a, 4)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := ref.Send(context.Background(), &testMessage{n: i}); err != nil {
			t.Fatalf("failed to send message %d: %v", i, err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := ref.Stop(ctx); err != nil {
			t.Errorf("failed to stop actor: %v", err)
		}
	}()

	close(a.block)
	<-stopped

	if got := len(a.snapshot()); got != 4 {
		t.Errorf("expected all 4 queued messages processed, got %d", got)
	}
}

func TestRefSendAfterStop(t *testing.T) {
	ref := NewRef("stopped", newRecordingActor("stopped"), 1)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	stopRef(t, ref)

	if err := ref.Send(context.Background(), &testMessage{}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if err := ref.TrySend(&testMessage{}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped from TrySend, got %v", err)
	}
}

func TestRefBackpressure(t *testing.T) {
	a := newRecordingActor("slow")
	a.block = make(chan struct{})
	ref := NewRef("slow", a, 1)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	defer func() {
		close(a.block)
		stopRef(t, ref)
	}()

	// First message is picked up by the blocked run loop, second fills the mailbox.
	_ = ref.Send(context.Background(), &testMessage{n: 0})
	deadline := time.Now().Add(time.Second)
	for ref.TrySend(&testMessage{n: 1}) != nil {
		if time.Now().After(deadline) {
			t.Fatal("mailbox never accepted second message")
		}
		time.Sleep(time.Millisecond)
	}

	if err := ref.TrySend(&testMessage{n: 2}); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("expected ErrMailboxFull, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ref.Send(ctx, &testMessage{n: 3}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected Send to block until deadline, got %v", err)
	}
}

func TestRefCountsErrors(t *testing.T) {
	a := newRecordingActor("errors")
	a.failOn = 1
	ref := NewRef("errors", a, 4)
	if err := ref.Start(context.Background()); err != nil {
		t.Fatalf("failed to start actor: %v", err)
	}
	for i := 0; i < 3; i++ {
		_ = ref.Send(context.Background(), &testMessage{n: i})
	}
	stopRef(t, ref)

	stats := ref.Stats()
	if stats.Processed != 3 {
		t.Errorf("expected 3 processed, got %d", stats.Processed)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error, got %d", stats.Errors)
	}
}
