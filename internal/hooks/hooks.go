// Package hooks implements the in-process typed publish/subscribe bus:
// emit fans a HookEvent out to every subscriber and awaits the async ones,
// isolating a failing subscriber so it never affects its siblings or the
// emitting call.
package hooks

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

// Subscriber receives every event published on the topic it was registered
// for.
type Subscriber interface {
	Handle(ctx context.Context, event types.HookEvent)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event types.HookEvent)

func (f SubscriberFunc) Handle(ctx context.Context, event types.HookEvent) { f(ctx, event) }

// Bus is the typed in-process pub/sub registry. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	logger      zerolog.Logger
}

// New constructs an empty Bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers sub to receive every event whose TopicName matches
// topic.
func (b *Bus) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
}

// Emit fans event out to every subscriber of its topic concurrently and
// waits for all of them to finish. A subscriber that panics is recovered,
// logged, and does not affect its siblings or the caller.
func (b *Bus) Emit(ctx context.Context, event types.HookEvent) {
	topic := event.TopicName()

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s Subscriber) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().
						Str("topic", topic).
						Interface("panic", r).
						Msg("hook subscriber panicked, isolating")
				}
			}()
			s.Handle(ctx, event)
		}(sub)
	}
	wg.Wait()
}
