// Package framepub is the hand-off buffer between the detection pipeline
// and the HTTP stream consumers. Delivery is lossy by design: each
// subscriber holds a small bounded buffer, the producer never blocks, and
// when a subscriber falls behind its oldest unread frame is dropped to
// make room for the newest.
package framepub

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Buffer depth per subscriber. Two frames absorbs consumer jitter without
// letting a stalled stream hold stale frames.
const subscriberBuffer = 2

var (
	// ErrTimeout is returned by Next when no frame arrives in time.
	ErrTimeout = errors.New("framepub: timed out waiting for frame")
	// ErrClosed is returned by Next after the publisher shuts down.
	ErrClosed = errors.New("framepub: publisher closed")
)

// Frame is one encoded JPEG ready for streaming.
type Frame struct {
	Seq      uint64
	Captured time.Time
	JPEG     []byte
}

// Publisher fans frames out to any number of subscribers.
type Publisher struct {
	mu        sync.Mutex
	subs      map[string]*Subscriber
	closed    bool
	published uint64
}

// New creates an empty publisher.
func New() *Publisher {
	return &Publisher{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new consumer. The subscriber sees only frames
// published after this call. Callers must Close the subscriber when done.
func (p *Publisher) Subscribe() *Subscriber {
	s := &Subscriber{
		id:   randomID(),
		ch:   make(chan Frame, subscriberBuffer),
		done: make(chan struct{}),
		pub:  p,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(s.done)
		return s
	}
	p.subs[s.id] = s
	return s
}

// Publish offers the frame to every subscriber without blocking. A
// subscriber with a full buffer loses its oldest unread frame, never the
// new one.
func (p *Publisher) Publish(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.published++
	for _, s := range p.subs {
		deliver(s, f)
	}
}

func deliver(s *Subscriber, f Frame) {
	for {
		select {
		case s.ch <- f:
			s.delivered.Add(1)
			return
		default:
		}
		// Buffer full: evict the oldest and try again. The consumer may
		// also drain concurrently, in which case the send above succeeds
		// on the next pass.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// Close shuts down the publisher and all subscribers. Pending frames may
// still be drained; afterwards Next returns ErrClosed.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, s := range p.subs {
		close(s.done)
		delete(p.subs, id)
	}
}

// Stats is a point-in-time view of publisher throughput for the debug
// endpoint.
type Stats struct {
	Published   uint64            `json:"published"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

// SubscriberStats counts per-subscriber delivery outcomes.
type SubscriberStats struct {
	ID        string `json:"id"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Stats snapshots current counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{Published: p.published, Subscribers: make([]SubscriberStats, 0, len(p.subs))}
	for _, s := range p.subs {
		st.Subscribers = append(st.Subscribers, SubscriberStats{
			ID:        s.id,
			Delivered: s.delivered.Load(),
			Dropped:   s.dropped.Load(),
		})
	}
	return st
}

// Subscriber is one consumer's view of the stream.
type Subscriber struct {
	id   string
	ch   chan Frame
	done chan struct{}
	pub  *Publisher

	delivered atomic.Uint64
	dropped   atomic.Uint64

	closeOnce sync.Once
}

// ID returns the subscriber's identifier, used in stats and logs.
func (s *Subscriber) ID() string { return s.id }

// Next blocks until a frame is available, the timeout elapses, or the
// publisher closes. Buffered frames are drained before ErrClosed is
// reported.
func (s *Subscriber) Next(timeout time.Duration) (Frame, error) {
	select {
	case f := <-s.ch:
		return f, nil
	default:
	}

	select {
	case f := <-s.ch:
		return f, nil
	case <-s.done:
		return Frame{}, ErrClosed
	case <-time.After(timeout):
		return Frame{}, ErrTimeout
	}
}

// Close detaches the subscriber from the publisher. Safe to call more
// than once and after the publisher itself has closed.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.pub.mu.Lock()
		if _, ok := s.pub.subs[s.id]; ok {
			delete(s.pub.subs, s.id)
			close(s.done)
		}
		s.pub.mu.Unlock()
	})
}

func randomID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sub-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
