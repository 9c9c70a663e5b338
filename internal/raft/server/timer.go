package server

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

// electionTimer is the one-shot ElectionTimeout timer from Section 5.2 from the
// [Raft paper](https://raft.github.io/raft.pdf). Each arming gets a new epoch; a callback that fires for an
// epoch other than the current one lost a race with reset or stop and must do nothing.
// It is guarded by the node mutex.
type electionTimer struct {
	clock clock.Clock
	timer *clock.Timer
	// done releases the goroutine waiting on timer once it is stopped
	done  chan struct{}
	epoch uint64
}

// reset stops any pending timer and arms a new one that calls fire with the new epoch after d. fire runs on its own
// goroutine, never on the clock's, so it may take the node lock and reset or stop the timer again.
func (t *electionTimer) reset(d time.Duration, fire func(epoch uint64)) uint64 {
	t.stop()
	epoch := t.epoch
	timer := t.clock.Timer(d)
	done := make(chan struct{})
	t.timer, t.done = timer, done

	go func() {
		select {
		case <-timer.C:
			fire(epoch)
		case <-done:
		}
	}()
	return epoch
}

// stop disarms the timer. Bumping the epoch also invalidates a callback that is already running.
func (t *electionTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		close(t.done)
		t.timer, t.done = nil, nil
	}
	t.epoch++
}

func (t *electionTimer) armed() bool {
	return t.timer != nil
}

// randomTimeout draws an election timeout uniformly from [min, max). Randomizing it is what keeps split votes
// rare, as per Section 5.2 from the [Raft paper](https://raft.github.io/raft.pdf).
func randomTimeout(r *rand.Rand, min, max time.Duration) time.Duration {
	return min + time.Duration(r.Int63n(int64(max-min)))
}
