// Package actor runs a piece of state behind a single goroutine. Other
// goroutines never touch the state directly; they send messages to the
// actor's mailbox and the run loop applies them one at a time, in order.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codefionn/vtsclient/internal/logger"
)

// ErrStopped is returned when sending to a stopped actor
var ErrStopped = errors.New("actor stopped")

// ErrMailboxFull is returned by TrySend when the mailbox has no room
var ErrMailboxFull = errors.New("actor mailbox is full")

// Message represents a message sent to an actor
type Message interface {
	Type() string
}

// Actor represents an actor in the actor model
type Actor interface {
	// Receive processes incoming messages
	Receive(ctx context.Context, msg Message) error
	// Start is called before the run loop starts
	Start(ctx context.Context) error
	// Stop is called after the run loop has processed the last message
	Stop(ctx context.Context) error
	// ID returns the actor's unique identifier
	ID() string
}

// Stats is a snapshot of an actor's counters
type Stats struct {
	Processed    uint64
	Errors       uint64
	MailboxDepth int
}

// Ref is a reference to a running actor
type Ref struct {
	id      string
	mailbox chan Message
	actor   Actor
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}

	// mu is held for reading by every in-flight Send, so Stop cannot mark
	// the actor stopped while a message is on its way into the mailbox.
	mu      sync.RWMutex
	started bool
	stopped bool

	processed atomic.Uint64
	errors    atomic.Uint64
}

// NewRef creates a reference with the given mailbox size. The actor does not
// process messages until Start is called.
func NewRef(id string, actor Actor, mailboxSize int) *Ref {
	return &Ref{
		id:      id,
		actor:   actor,
		mailbox: make(chan Message, mailboxSize),
		done:    make(chan struct{}),
	}
}

// ID returns the actor's ID
func (ref *Ref) ID() string {
	return ref.id
}

// Send delivers msg to the mailbox, waiting for room if it is full. Every
// message accepted by Send is processed, even if Stop follows immediately.
func (ref *Ref) Send(ctx context.Context, msg Message) error {
	ref.mu.RLock()
	defer ref.mu.RUnlock()

	if ref.stopped {
		return fmt.Errorf("actor %s: %w", ref.id, ErrStopped)
	}

	select {
	case ref.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend delivers msg without waiting
func (ref *Ref) TrySend(msg Message) error {
	ref.mu.RLock()
	defer ref.mu.RUnlock()

	if ref.stopped {
		return fmt.Errorf("actor %s: %w", ref.id, ErrStopped)
	}

	select {
	case ref.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("actor %s: %w", ref.id, ErrMailboxFull)
	}
}

// Start starts the actor's message processing loop. ctx bounds the actor's
// lifetime; cancel it only through Stop, or messages sent concurrently with
// the cancellation may never be processed.
func (ref *Ref) Start(ctx context.Context) error {
	ref.mu.Lock()
	defer ref.mu.Unlock()

	if ref.started {
		return fmt.Errorf("actor %s already started", ref.id)
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := ref.actor.Start(ctx); err != nil {
		cancel()
		return err
	}

	ref.cancel = cancel
	ref.started = true
	ref.wg.Add(1)
	go ref.run(ctx)
	return nil
}

// Stop rejects further messages, lets the run loop finish what is already
// in the mailbox and then calls the actor's Stop.
func (ref *Ref) Stop(ctx context.Context) error {
	ref.mu.Lock()
	if ref.stopped {
		ref.mu.Unlock()
		return nil
	}
	ref.stopped = true
	started := ref.started
	ref.mu.Unlock()

	if !started {
		close(ref.done)
		return ref.actor.Stop(ctx)
	}

	ref.cancel()

	// Wait for actor to finish processing
	finished := make(chan struct{})
	go func() {
		ref.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		err := ref.actor.Stop(ctx)
		close(ref.done)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the actor has fully stopped
func (ref *Ref) Done() <-chan struct{} {
	return ref.done
}

// Stats returns the actor's counters
func (ref *Ref) Stats() Stats {
	return Stats{
		Processed:    ref.processed.Load(),
		Errors:       ref.errors.Load(),
		MailboxDepth: len(ref.mailbox),
	}
}

// run is the actor's main message processing loop
func (ref *Ref) run(ctx context.Context) {
	defer ref.wg.Done()

	for {
		select {
		case <-ctx.Done():
			ref.drain(ctx)
			return
		case msg := <-ref.mailbox:
			ref.receive(ctx, msg)
		}
	}
}

// drain processes messages that were accepted before Stop.
func (ref *Ref) drain(ctx context.Context) {
	for {
		select {
		case msg := <-ref.mailbox:
			ref.receive(ctx, msg)
		default:
			return
		}
	}
}

func (ref *Ref) receive(ctx context.Context, msg Message) {
	ref.processed.Add(1)
	if err := ref.actor.Receive(ctx, msg); err != nil {
		// Log error but continue processing
		ref.errors.Add(1)
		logger.Error("Actor %s error processing %s message: %v", ref.id, msg.Type(), err)
	}
}
