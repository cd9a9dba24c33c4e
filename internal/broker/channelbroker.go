// Package broker hands the event channel of a running investigation to the HTTP handler that streams it.
package broker

import "context"

type publication[TID comparable, TPayload any] struct {
	id     TID
	events <-chan TPayload
}

type subscription[TID comparable, TPayload any] struct {
	id    TID
	reply chan (<-chan TPayload)
}

// ChannelBroker passes the event channel of a producer to its first consumer.
//
// The producer is the goroutine that runs an investigation submitted with HTTP POST. The first consumer is the
// HTTP handler that returns the SSE stream of pipeline events. Later consumers are likely reconnects. They wait
// until the producer unpublishes and then read the persisted investigation instead.
type ChannelBroker[TID comparable, TPayload any] struct {
	done        chan struct{}
	publish     chan publication[TID, TPayload]
	unpublish   chan TID
	subscribe   chan subscription[TID, TPayload]
	unsubscribe chan subscription[TID, TPayload]
}

func NewChannelBroker[TID comparable, TPayload any]() *ChannelBroker[TID, TPayload] {
	return &ChannelBroker[TID, TPayload]{
		done:        make(chan struct{}),
		publish:     make(chan publication[TID, TPayload]),
		unpublish:   make(chan TID),
		subscribe:   make(chan subscription[TID, TPayload]),
		unsubscribe: make(chan subscription[TID, TPayload]),
	}
}

type topic[TID comparable, TPayload any] struct {
	events  <-chan TPayload
	claimed bool
	waiting []chan (<-chan TPayload)
}

// Run serves publications and subscriptions until ctx is done. Afterwards every call returns immediately and
// subscribers get nothing.
func (b *ChannelBroker[TID, TPayload]) Run(ctx context.Context) {
	defer close(b.done)
	topics := map[TID]*topic[TID, TPayload]{}
	for {
		select {
		case <-ctx.Done():
			for _, t := range topics {
				for _, w := range t.waiting {
					close(w)
				}
			}
			return

		case p := <-b.publish:
			topics[p.id] = &topic[TID, TPayload]{events: p.events, claimed: false, waiting: nil}

		case s := <-b.subscribe:
			t, ok := topics[s.id]
			switch {
			case !ok:
				// Finished or never started.
				close(s.reply)
			case !t.claimed:
				t.claimed = true
				s.reply <- t.events
			default:
				t.waiting = append(t.waiting, s.reply)
			}

		case s := <-b.unsubscribe:
			if t, ok := topics[s.id]; ok {
				for i, w := range t.waiting {
					if w == s.reply {
						t.waiting = append(t.waiting[:i], t.waiting[i+1:]...)
						close(w)
						break
					}
				}
			}

		case id := <-b.unpublish:
			if t, ok := topics[id]; ok {
				for _, w := range t.waiting {
					close(w)
				}
				delete(topics, id)
			}
		}
	}
}

// Publish makes events available to the first subscriber of id.
func (b *ChannelBroker[TID, TPayload]) Publish(id TID, events <-chan TPayload) {
	select {
	case b.publish <- publication[TID, TPayload]{id: id, events: events}:
	case <-b.done:
	}
}

// Unpublish releases the subscribers waiting for id once the producer is finished. Later subscribers get
// nothing.
func (b *ChannelBroker[TID, TPayload]) Unpublish(id TID) {
	select {
	case b.unpublish <- id:
	case <-b.done:
	}
}

// Subscribe returns the events of id and true for the first subscriber. Other subscribers block until the
// producer unpublishes or ctx is done and then get false, as do subscribers of an unknown id.
func (b *ChannelBroker[TID, TPayload]) Subscribe(ctx context.Context, id TID) (<-chan TPayload, bool) {
	s := subscription[TID, TPayload]{id: id, reply: make(chan (<-chan TPayload), 1)}
	select {
	case b.subscribe <- s:
	case <-b.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
	select {
	case events, ok := <-s.reply:
		return events, ok
	case <-ctx.Done():
		select {
		case b.unsubscribe <- s:
		case <-b.done:
		}
		// The broker may have replied before the unsubscription arrived.
		select {
		case events, ok := <-s.reply:
			return events, ok
		default:
			return nil, false
		}
	case <-b.done:
		return nil, false
	}
}
