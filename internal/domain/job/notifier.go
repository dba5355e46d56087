package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the store signals that a queue gained work.
type Waiter interface {
	WaitForNotification(ctx context.Context, queue model.JobType) error
}

// Notifier fans queue wakeups out to subscribed stage runners. Workers poll
// opportunistically on wakeup instead of busy-looping against the store.
type Notifier interface {
	Subscribe(queue model.JobType) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier implementation.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// queueState tracks the listener goroutine and subscribers for one queue.
type queueState struct {
	cancel context.CancelFunc
	subs   map[chan struct{}]struct{}
}

// QueueNotifier is the default Notifier. It runs one listener goroutine per
// queue with at least one subscriber and tears the listener down when the
// last subscriber leaves.
type QueueNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu     sync.Mutex
	queues map[model.JobType]*queueState
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*QueueNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &QueueNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		queues:     make(map[model.JobType]*queueState),
	}, nil
}

// Subscribe registers interest in a queue's wakeups. The returned channel
// carries at most one buffered signal; the returned func unsubscribes.
func (n *QueueNotifier) Subscribe(queue model.JobType) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	state, ok := n.queues[queue]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		state = &queueState{cancel: cancel, subs: make(map[chan struct{}]struct{})}
		n.queues[queue] = state
		go n.listenLoop(ctx, queue)
	}

	ch := make(chan struct{}, 1)
	state.subs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		state, ok := n.queues[queue]
		if !ok {
			return
		}
		if _, ok := state.subs[ch]; !ok {
			return
		}
		delete(state.subs, ch)
		drainAndClose(ch)
		if len(state.subs) == 0 {
			state.cancel()
			delete(n.queues, queue)
		}
	}
	return unsub, ch
}

// StopAll cancels every listener and closes every subscriber channel.
func (n *QueueNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for queue, state := range n.queues {
		state.cancel()
		for ch := range state.subs {
			drainAndClose(ch)
		}
		delete(n.queues, queue)
	}
}

func (n *QueueNotifier) listenLoop(ctx context.Context, queue model.JobType) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, queue)
		cancel()

		// Broadcast on error too: a timed-out wait is indistinguishable
		// from a missed notification, and a spurious poll is harmless.
		n.broadcast(queue)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-timer.C:
			}
		}
	}
}

func (n *QueueNotifier) broadcast(queue model.JobType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	state, ok := n.queues[queue]
	if !ok {
		return
	}
	for ch := range state.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notification before closing so receivers
// observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*QueueNotifier)(nil)
