package stream

import (
	"log"
	"sync"
	"time"
)

type delivery struct {
	jobID      string
	payload    map[string]any
	closeAfter bool

	event     bool
	name      string
	rateLimit time.Duration
}

// Bridge hands deliveries from job goroutines to the broadcaster. A single
// consumer goroutine applies them in submission order, so for any job the
// running broadcast always lands before the terminal one, and callers never
// wait on delivery. A nil broadcaster turns every publish into a logged
// no-op so the orchestrator works without a streaming layer attached.
type Bridge struct {
	b *Broadcaster

	mu      sync.Mutex
	queue   []delivery
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func NewBridge(b *Broadcaster) *Bridge {
	br := &Bridge{
		b:    b,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if b == nil {
		close(br.done)
		return br
	}
	go br.loop()
	return br
}

// Publish queues a job payload, optionally closing the job's subscriptions
// after it is delivered.
func (br *Bridge) Publish(jobID string, payload map[string]any, closeAfter bool) {
	br.submit(delivery{jobID: jobID, payload: payload, closeAfter: closeAfter})
}

// PublishEvent queues a named global event.
func (br *Bridge) PublishEvent(name string, payload map[string]any, rateLimit time.Duration) {
	br.submit(delivery{event: true, name: name, payload: payload, rateLimit: rateLimit})
}

func (br *Bridge) submit(d delivery) {
	if br.b == nil {
		log.Printf("stream: no broadcaster configured, dropping delivery for %s", deliveryTarget(d))
		return
	}
	br.mu.Lock()
	if br.stopped {
		br.mu.Unlock()
		// The consumer is gone; apply on the caller as a best effort.
		br.apply(d)
		return
	}
	br.queue = append(br.queue, d)
	br.mu.Unlock()
	select {
	case br.wake <- struct{}{}:
	default:
	}
}

// Shutdown drains the queue, stops the consumer, and waits for it to exit.
func (br *Bridge) Shutdown() {
	if br.b == nil {
		return
	}
	br.mu.Lock()
	if br.stopped {
		br.mu.Unlock()
		<-br.done
		return
	}
	br.stopped = true
	br.mu.Unlock()
	select {
	case br.wake <- struct{}{}:
	default:
	}
	<-br.done
}

func (br *Bridge) loop() {
	defer close(br.done)
	for {
		br.mu.Lock()
		if len(br.queue) > 0 {
			d := br.queue[0]
			br.queue = br.queue[1:]
			br.mu.Unlock()
			br.apply(d)
			continue
		}
		stopped := br.stopped
		br.mu.Unlock()
		if stopped {
			return
		}
		<-br.wake
	}
}

func (br *Bridge) apply(d delivery) {
	if d.event {
		br.b.BroadcastEvent(d.name, d.payload, d.rateLimit)
		return
	}
	br.b.Broadcast(d.jobID, d.payload)
	if d.closeAfter {
		br.b.Close(d.jobID)
	}
}

func deliveryTarget(d delivery) string {
	if d.event {
		return "event " + d.name
	}
	return "job " + d.jobID
}
