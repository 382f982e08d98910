// Package syncstate publishes sync progress to any number of observers.
package syncstate

import (
	"context"
	"sync"
)

// Progress counts processed items of a sync step.
type Progress struct {
	Current int
	Total   int
}

// State is an immutable snapshot of sync status.
type State struct {
	IsSyncing bool
	Message   string
	Progress  *Progress
}

func (s State) clone() State {
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	return s
}

// Patch updates part of the shared state.
type Patch func(*State)

// Syncing sets the in-flight flag.
func Syncing(v bool) Patch { return func(s *State) { s.IsSyncing = v } }

// Message sets the status text.
func Message(msg string) Patch { return func(s *State) { s.Message = msg } }

// Step sets the progress counters.
func Step(current, total int) Patch {
	return func(s *State) { s.Progress = &Progress{Current: current, Total: total} }
}

// ClearProgress removes the progress counters.
func ClearProgress() Patch { return func(s *State) { s.Progress = nil } }

// Observer receives state snapshots.
type Observer func(State)

type subscription struct {
	id int
	fn Observer
}

// Broadcaster holds the latest State and the registered observers.
// Observers run synchronously on the publishing goroutine and must not call
// Publish or Subscribe themselves.
type Broadcaster struct {
	// deliver serializes publications so observers see states in order
	deliver sync.Mutex

	mu     sync.Mutex
	state  State
	subs   []subscription
	nextID int
}

// New returns a Broadcaster in the idle state.
func New() *Broadcaster {
	return &Broadcaster{}
}

// Current returns the latest state.
func (b *Broadcaster) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// Publish merges patches into the shared state and notifies every observer.
func (b *Broadcaster) Publish(patches ...Patch) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	next := b.state.clone()
	for _, p := range patches {
		p(&next)
	}
	b.state = next
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(next.clone())
	}
}

// Subscribe registers fn, immediately delivers the current state to it, and
// returns a function that removes it.
func (b *Broadcaster) Subscribe(fn Observer) (unsubscribe func()) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	cur := b.state.clone()
	b.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// WaitIdle blocks until the state reports no sync in flight or ctx is done.
func (b *Broadcaster) WaitIdle(ctx context.Context) error {
	idle := make(chan struct{}, 1)
	unsubscribe := b.Subscribe(func(s State) {
		if !s.IsSyncing {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
