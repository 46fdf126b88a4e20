package reasoning

import (
	"sync"
	"time"

	"github.com/c360studio/semreason/forest"
	"github.com/cenkalti/backoff/v4"
)

// obligation is deferred work: either an entry to recompute or a change
// whose affected entries could not be looked up.
type obligation struct {
	entryURI string
	change   *forest.Change
	policy   backoff.BackOff
	attempts int
	due      time.Time
}

// retrySet holds obligations until their backoff delay has passed.
type retrySet struct {
	mu        sync.Mutex
	newPolicy func() backoff.BackOff
	entries   map[string]*obligation
	changes   []*obligation
}

func newRetrySet(cfg Config) *retrySet {
	return &retrySet{
		newPolicy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.RetryInitialInterval
			b.MaxInterval = cfg.RetryMaxInterval
			b.MaxElapsedTime = 0
			b.Reset()
			return backoff.WithMaxRetries(b, uint64(cfg.RetryMaxAttempts))
		},
		entries: make(map[string]*obligation),
	}
}

// schedule defers o. It returns false when o has used up its attempts.
func (r *retrySet) schedule(o *obligation, now time.Time) bool {
	if o.policy == nil {
		o.policy = r.newPolicy()
	}
	next := o.policy.NextBackOff()
	if next == backoff.Stop {
		return false
	}
	o.attempts++
	o.due = now.Add(next)

	r.mu.Lock()
	defer r.mu.Unlock()
	if o.change != nil {
		r.changes = append(r.changes, o)
		return true
	}
	if _, pending := r.entries[o.entryURI]; !pending {
		r.entries[o.entryURI] = o
	}
	return true
}

// due removes and returns every obligation whose delay has passed.
func (r *retrySet) due(now time.Time) []*obligation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*obligation
	for uri, o := range r.entries {
		if !o.due.After(now) {
			out = append(out, o)
			delete(r.entries, uri)
		}
	}
	kept := r.changes[:0]
	for _, o := range r.changes {
		if o.due.After(now) {
			kept = append(kept, o)
		} else {
			out = append(out, o)
		}
	}
	r.changes = kept
	return out
}

// nextIn returns the delay until the earliest obligation falls due.
func (r *retrySet) nextIn(now time.Time) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var earliest time.Time
	found := false
	consider := func(o *obligation) {
		if !found || o.due.Before(earliest) {
			earliest = o.due
			found = true
		}
	}
	for _, o := range r.entries {
		consider(o)
	}
	for _, o := range r.changes {
		consider(o)
	}
	if !found {
		return 0, false
	}
	d := earliest.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func (r *retrySet) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) + len(r.changes)
}
