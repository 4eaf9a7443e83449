package pipeline

import (
	"reflect"
	"sync"
)

// subscriberBuffer is the channel depth handed to each observer. Progress
// updates may be dropped for a lagging subscriber; the terminal snapshot
// never is.
const subscriberBuffer = 16

// fanout distributes job snapshots to zero or more passive observers.
// Observers are read-only consumers; the coordinator is the only writer.
type fanout struct {
	mu     sync.RWMutex
	subs   []chan JobSnapshot
	closed bool
}

// subscribe returns a channel that immediately carries the current snapshot,
// then subsequent updates in order. Subscribing to an already-terminal job
// yields the final snapshot and a closed channel.
func (f *fanout) subscribe(current JobSnapshot) <-chan JobSnapshot {
	ch := make(chan JobSnapshot, subscriberBuffer)
	ch <- current

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

// unsubscribe removes a subscriber channel.
func (f *fanout) unsubscribe(ch <-chan JobSnapshot) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subs {
		if reflect.ValueOf(sub).Pointer() == target {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			close(sub)
			break
		}
	}
}

// publish sends a snapshot to all subscribers without blocking the
// coordinator. A full subscriber drops the update; since progress is
// monotone the subscriber still observes a non-decreasing sequence.
func (f *fanout) publish(snap JobSnapshot) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	for _, sub := range f.subs {
		select {
		case sub <- snap:
		default: // Drop if channel full
		}
	}
}

// publishTerminal delivers the final snapshot and closes all subscriber
// channels. A full subscriber has its oldest buffered update displaced so
// the terminal state is never lost.
func (f *fanout) publishTerminal(snap JobSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	for _, sub := range f.subs {
		select {
		case sub <- snap:
		default:
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- snap:
			default:
			}
		}
		close(sub)
	}
	f.subs = nil
}
