package hooks_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/babur-hussain/toon-fleet-server/internal/hooks"
	"github.com/babur-hussain/toon-fleet-server/pkg/types"
)

func TestEmit_DeliversToAllSubscribersOfTopic(t *testing.T) {
	bus := hooks.New(zerolog.Nop())

	var gotA, gotB int32
	bus.Subscribe("onEventIngested", hooks.SubscriberFunc(func(ctx context.Context, e types.HookEvent) {
		atomic.AddInt32(&gotA, 1)
	}))
	bus.Subscribe("onEventIngested", hooks.SubscriberFunc(func(ctx context.Context, e types.HookEvent) {
		atomic.AddInt32(&gotB, 1)
	}))

	bus.Emit(context.Background(), &types.EventIngested{EventID: "e1", OccurredAt: time.Now()})

	assert.Equal(t, int32(1), atomic.LoadInt32(&gotA))
	assert.Equal(t, int32(1), atomic.LoadInt32(&gotB))
}

func TestEmit_OnlyMatchingTopicReceives(t *testing.T) {
	bus := hooks.New(zerolog.Nop())

	var gotIngested, gotDuplicate int32
	bus.Subscribe("onEventIngested", hooks.SubscriberFunc(func(ctx context.Context, e types.HookEvent) {
		atomic.AddInt32(&gotIngested, 1)
	}))
	bus.Subscribe("onDuplicateEvent", hooks.SubscriberFunc(func(ctx context.Context, e types.HookEvent) {
		atomic.AddInt32(&gotDuplicate, 1)
	}))

	bus.Emit(context.Background(), &types.EventIngested{EventID: "e1"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&gotIngested))
	assert.Equal(t, int32(0), atomic.LoadInt32(&gotDuplicate))
}

func TestEmit_NoSubscribersIsNoop(t *testing.T) {
	bus := hooks.New(zerolog.Nop())
	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), &types.EventIngested{EventID: "e1"})
	})
}

// A panicking subscriber must not affect its siblings or the caller.
func TestEmit_FailingSubscriberIsIsolated(t *testing.T) {
	bus := hooks.New(zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	var healthySubscriberRan bool

	bus.Subscribe("onDeviceRevoked", hooks.SubscriberFunc(func(ctx context.Context, e types.HookEvent) {
		panic("simulated subscriber failure")
	}))
	bus.Subscribe("onDeviceRevoked", hooks.SubscriberFunc(func(ctx context.Context, e types.HookEvent) {
		defer wg.Done()
		healthySubscriberRan = true
	}))

	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), &types.DeviceRevokedEvent{DeviceID: "dev-1"})
	})
	wg.Wait()
	assert.True(t, healthySubscriberRan)
}
