package indego

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	Topic    string
	Payload  string
	Retained bool
}

type fakeMessenger struct {
	mu        sync.Mutex
	published []published
	subs      map[string]func([]byte)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{subs: make(map[string]func([]byte))}
}

func (f *fakeMessenger) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

func (f *fakeMessenger) Subscribe(topic string, cb func([]byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, topic)
	}, nil
}

func (f *fakeMessenger) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].Topic == topic {
			return f.published[i], true
		}
	}
	return published{}, false
}

func (f *fakeMessenger) deliver(topic, payload string) {
	f.mu.Lock()
	cb := f.subs[topic]
	f.mu.Unlock()
	if cb != nil {
		cb([]byte(payload))
	}
}

func TestBridgeMQTTPublishesState(t *testing.T) {
	vendor := newFakeVendor(t)
	mower := vendor.mower(MowerConfig{Name: "Front lawn", AwaitLogin: true})
	messenger := newFakeMessenger()

	unsubscribe, err := BridgeMQTT(messenger, "home/indego", mower)
	require.NoError(t, err)

	vendor.setCode(514)
	require.NoError(t, mower.Poller.Poll(context.Background()))

	msg, ok := messenger.last("home/indego/Front_lawn/mowing")
	require.True(t, ok)
	assert.Equal(t, "true", msg.Payload)
	assert.True(t, msg.Retained)

	msg, ok = messenger.last("home/indego/Front_lawn/state")
	require.True(t, ok)
	var state mqttState
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &state))
	assert.Equal(t, "Front lawn", state.Mower)
	assert.Equal(t, "mowing", state.State)
	assert.True(t, state.Mowing)
	require.NotNil(t, state.Code)
	assert.Equal(t, 514, *state.Code)
	assert.Equal(t, "1234567", state.Serial)
	assert.True(t, state.Authenticated)
	assert.NotEmpty(t, state.UpdatedAt)

	unsubscribe()
	assert.Empty(t, messenger.subs)
}

func TestBridgeMQTTCommands(t *testing.T) {
	vendor := newFakeVendor(t)
	mower := authenticatedMower(t, vendor, MowerConfig{Name: "Lawn"})
	messenger := newFakeMessenger()
	_, err := BridgeMQTT(messenger, "indego", mower)
	require.NoError(t, err)

	vendor.setCode(513)
	require.NoError(t, mower.Poller.Poll(context.Background()))

	messenger.deliver("indego/Lawn/set", "toggle")
	mower.Accessory.Wait()
	messenger.deliver("indego/Lawn/set", "mow")
	mower.Accessory.Wait()
	messenger.deliver("indego/Lawn/set", "dance")
	mower.Accessory.Wait()

	puts := vendor.recorded(http.MethodPut)
	require.Len(t, puts, 2)
	assert.JSONEq(t, `{"state":"returnToDock"}`, puts[0].Body)
	assert.JSONEq(t, `{"state":"mow"}`, puts[1].Body)
}
