package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestEventDispatcher_PublishesQueuedEvents(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("domain.Event")).Return(nil)

	d := NewEventDispatcher(pub, 16, zap.NewNop())
	d.Start(3)
	for i := 0; i < 10; i++ {
		require.True(t, d.Emit(domain.Event{Type: domain.EventItemCreated, DeliveryID: "d-1"}))
	}
	d.Close()

	pub.AssertNumberOfCalls(t, "Publish", 10)
}

func TestEventDispatcher_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	// workers start after the queue is saturated
	d := NewEventDispatcher(pub, 1, zap.New(core))
	assert.True(t, d.Emit(domain.Event{Type: domain.EventItemCreated}))
	assert.False(t, d.Emit(domain.Event{Type: domain.EventItemReceived}))
	assert.Equal(t, 1, logs.FilterMessage("event queue full, dropping event").Len())

	d.Start(1)
	d.Close()
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestEventDispatcher_PublisherFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	d := NewEventDispatcher(pub, 4, zap.New(core))
	d.Start(1)
	assert.True(t, d.Emit(domain.Event{Type: domain.EventItemResolved, DeliveryID: "d-9"}))
	d.Close()

	entries := logs.FilterMessage("failed to publish event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "d-9", entries[0].ContextMap()["delivery_id"])
}

func TestEventDispatcher_Closed(t *testing.T) {
	pub := new(mockPublisher)
	d := NewEventDispatcher(pub, 4, nil)
	d.Start(2)
	d.Close()
	d.Close()

	assert.False(t, d.Emit(domain.Event{Type: domain.EventItemCreated}))

	var nilDispatcher *EventDispatcher
	assert.False(t, nilDispatcher.Emit(domain.Event{}))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
