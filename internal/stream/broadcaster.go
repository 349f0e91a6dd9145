// Package stream fans job status updates out to live subscribers. The
// Broadcaster owns per-job subscription sets plus a global pool; the Bridge
// feeds it from job goroutines without blocking them.
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultHeartbeat is the longest a subscriber waits without output.
	DefaultHeartbeat = 30 * time.Second
	// DefaultEventRateLimit throttles repeated named global events.
	DefaultEventRateLimit = 5 * time.Minute
)

// Event is one element of a subscription's sequence: a job payload, a named
// global event, or a heartbeat marker.
type Event struct {
	Name      string
	Payload   map[string]any
	Heartbeat bool
}

// Subscription is one subscriber's unbounded FIFO mailbox. Next blocks for
// the next element; publishers never block on a slow consumer.
type Subscription struct {
	id    string
	jobID string
	b     *Broadcaster

	mu    sync.Mutex
	items []Event
	ended bool
	wake  chan struct{}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Next returns the next element: a queued event, or a heartbeat when the
// heartbeat interval passes with nothing queued. It returns false once the
// queue is drained and the subscription has ended, or when ctx is done.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	timer := time.NewTimer(s.b.heartbeat)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			ev := s.items[0]
			s.items = s.items[1:]
			s.mu.Unlock()
			return ev, true
		}
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return Event{}, false
		}

		select {
		case <-s.wake:
		case <-timer.C:
			return Event{Heartbeat: true}, true
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// Cancel detaches the subscription from the broadcaster. Safe to call more
// than once; the HTTP layer defers it on disconnect.
func (s *Subscription) Cancel() {
	s.b.remove(s)
	s.end()
}

func (s *Subscription) push(ev Event) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items, ev)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Subscription) end() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Broadcaster tracks live subscriptions and delivers payloads to them.
type Broadcaster struct {
	heartbeat time.Duration
	now       func() time.Time

	mu        sync.Mutex
	jobs      map[string]map[*Subscription]struct{}
	global    map[*Subscription]struct{}
	lastEvent map[string]time.Time
	shutdown  bool
}

func New() *Broadcaster {
	return NewWithNow(DefaultHeartbeat, time.Now)
}

// NewWithNow injects the heartbeat interval and clock for tests.
func NewWithNow(heartbeat time.Duration, now func() time.Time) *Broadcaster {
	return &Broadcaster{
		heartbeat: heartbeat,
		now:       now,
		jobs:      make(map[string]map[*Subscription]struct{}),
		global:    make(map[*Subscription]struct{}),
		lastEvent: make(map[string]time.Time),
	}
}

// Subscribe opens a subscription for one job's events.
func (b *Broadcaster) Subscribe(jobID string) *Subscription {
	sub := b.newSubscription(jobID)
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		sub.end()
		return sub
	}
	set, ok := b.jobs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.jobs[jobID] = set
	}
	set[sub] = struct{}{}
	n := len(set)
	b.mu.Unlock()
	log.Printf("stream: subscription %s opened for job %s (subscribers=%d)", sub.id, jobID, n)
	return sub
}

// SubscribeGlobal opens a subscription that receives only named global
// events.
func (b *Broadcaster) SubscribeGlobal() *Subscription {
	sub := b.newSubscription("")
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		sub.end()
		return sub
	}
	b.global[sub] = struct{}{}
	n := len(b.global)
	b.mu.Unlock()
	log.Printf("stream: global subscription %s opened (subscribers=%d)", sub.id, n)
	return sub
}

func (b *Broadcaster) newSubscription(jobID string) *Subscription {
	return &Subscription{
		id:    ulid.Make().String(),
		jobID: jobID,
		b:     b,
		wake:  make(chan struct{}, 1),
	}
}

// Broadcast delivers payload to every open subscription for the job and
// returns how many received it. No-op when nobody is listening.
func (b *Broadcaster) Broadcast(jobID string, payload map[string]any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sent := 0
	for sub := range b.jobs[jobID] {
		if sub.push(Event{Payload: payload}) {
			sent++
		}
	}
	return sent
}

// Close ends every subscription for the job. Queued events are still
// drained by their consumers; later subscriptions to the same id start
// fresh.
func (b *Broadcaster) Close(jobID string) {
	b.mu.Lock()
	set := b.jobs[jobID]
	delete(b.jobs, jobID)
	b.mu.Unlock()
	for sub := range set {
		sub.end()
	}
	if len(set) > 0 {
		log.Printf("stream: closed %d subscription(s) for job %s", len(set), jobID)
	}
}

// BroadcastEvent wraps payload in a named envelope and delivers it to all
// job subscriptions plus the global pool. Repeats of the same name inside
// rateLimit are dropped and report zero recipients; the rate-limit window
// only advances on delivery. rateLimit <= 0 selects the default.
func (b *Broadcaster) BroadcastEvent(name string, payload map[string]any, rateLimit time.Duration) int {
	if rateLimit <= 0 {
		rateLimit = DefaultEventRateLimit
	}

	b.mu.Lock()
	now := b.now()
	if last, ok := b.lastEvent[name]; ok && now.Sub(last) < rateLimit {
		b.mu.Unlock()
		log.Printf("stream: event %s rate limited (last broadcast %s ago)", name, now.Sub(last).Round(time.Second))
		return 0
	}
	b.lastEvent[name] = now

	ev := Event{Name: name, Payload: payload}
	sent := 0
	for _, set := range b.jobs {
		for sub := range set {
			if sub.push(ev) {
				sent++
			}
		}
	}
	for sub := range b.global {
		if sub.push(ev) {
			sent++
		}
	}
	b.mu.Unlock()

	log.Printf("stream: event %s sent to %d subscriber(s)", name, sent)
	return sent
}

// SubscriberCount reports open subscriptions for a job ("" counts the
// global pool).
func (b *Broadcaster) SubscriberCount(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if jobID == "" {
		return len(b.global)
	}
	return len(b.jobs[jobID])
}

// Shutdown ends every subscription and refuses new ones.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	b.shutdown = true
	var subs []*Subscription
	for _, set := range b.jobs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	for sub := range b.global {
		subs = append(subs, sub)
	}
	b.jobs = make(map[string]map[*Subscription]struct{})
	b.global = make(map[*Subscription]struct{})
	b.mu.Unlock()
	for _, sub := range subs {
		sub.end()
	}
}

// remove detaches a cancelled subscription from whichever set holds it.
func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.jobID == "" {
		delete(b.global, sub)
		return
	}
	if set, ok := b.jobs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.jobs, sub.jobID)
		}
	}
}
