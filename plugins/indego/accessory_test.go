package indego

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	mu      sync.Mutex
	mowing  []bool
	serials []string
}

func (f *fakeSurface) SetMowing(mowing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mowing = append(f.mowing, mowing)
}

func (f *fakeSurface) SetSerial(serial string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serials = append(f.serials, serial)
}

func (f *fakeSurface) values() ([]bool, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.mowing...), append([]string(nil), f.serials...)
}

func newTestAccessory(t *testing.T, vendor *fakeVendor, interval time.Duration) (*Accessory, *Poller, *fakeSurface) {
	t.Helper()
	client := vendor.client()
	session := NewSession(Credentials{Email: "user@example.com", Password: "secret"}, client, zerolog.Nop())
	poller := NewPoller(session, client, true, zerolog.Nop())
	surface := &fakeSurface{}
	return NewAccessory("Lawn", poller, session, surface, interval, zerolog.Nop()), poller, surface
}

func TestHandleGetServesCacheAndRefreshes(t *testing.T) {
	vendor := newFakeVendor(t)
	vendor.setCode(513)
	acc, poller, surface := newTestAccessory(t, vendor, 0)

	assert.False(t, acc.HandleGet())
	acc.Wait()

	assert.Equal(t, StateMowing, poller.LastKnown())
	mowing, serials := surface.values()
	assert.Equal(t, []bool{true}, mowing)
	assert.Equal(t, []string{"1234567"}, serials)

	assert.True(t, acc.HandleGet())
	acc.Wait()
	assert.Equal(t, 2, vendor.count(http.MethodGet))
}

func TestHandleGetSkipsRefreshWhileInFlight(t *testing.T) {
	vendor := newFakeVendor(t)
	release := make(chan struct{})
	vendor.state = func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, map[string]any{"state": 258})
	}
	acc, poller, _ := newTestAccessory(t, vendor, 0)

	acc.HandleGet()
	require.Eventually(t, func() bool { return vendor.count(http.MethodGet) == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, poller.InFlight())

	assert.False(t, acc.HandleGet())
	close(release)
	acc.Wait()

	assert.Equal(t, 1, vendor.count(http.MethodGet))
	assert.Equal(t, StateIdle, poller.LastKnown())
}

func TestHandleSetTogglesFromCachedState(t *testing.T) {
	vendor := newFakeVendor(t)
	vendor.setCode(513)
	acc, poller, _ := newTestAccessory(t, vendor, 0)
	require.NoError(t, poller.Poll(context.Background()))
	require.Equal(t, StateMowing, poller.LastKnown())

	// The requested value is ignored; a mowing mower is sent home.
	assert.Equal(t, ActionReturnToDock, acc.HandleSet(true))
	acc.Wait()

	puts := vendor.recorded(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/alms/1234567/state", puts[0].Path)
	assert.JSONEq(t, `{"state":"returnToDock"}`, puts[0].Body)

	vendor.setCode(258)
	require.NoError(t, poller.Poll(context.Background()))
	assert.Equal(t, ActionMow, acc.HandleSet(false))
	acc.Wait()

	puts = vendor.recorded(http.MethodPut)
	require.Len(t, puts, 2)
	assert.JSONEq(t, `{"state":"mow"}`, puts[1].Body)
}

func TestHandleSetUnknownStateSendsMow(t *testing.T) {
	vendor := newFakeVendor(t)
	acc, _, _ := newTestAccessory(t, vendor, 0)

	assert.Equal(t, ActionMow, acc.HandleSet(false))
	acc.Wait()
	puts := vendor.recorded(http.MethodPut)
	require.Len(t, puts, 1)
	assert.JSONEq(t, `{"state":"mow"}`, puts[0].Body)
}

func TestRunZeroIntervalDisablesTimer(t *testing.T) {
	vendor := newFakeVendor(t)
	acc, _, _ := newTestAccessory(t, vendor, 0)

	done := make(chan struct{})
	go func() {
		acc.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when the interval is zero")
	}
	assert.Zero(t, vendor.count(http.MethodGet))
}

func TestRunPollsUntilCanceled(t *testing.T) {
	vendor := newFakeVendor(t)
	acc, poller, _ := newTestAccessory(t, vendor, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		acc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return vendor.count(http.MethodGet) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, StateIdle, poller.LastKnown())
}

func TestHomeKitBinding(t *testing.T) {
	vendor := newFakeVendor(t)
	vendor.setCode(772)
	mower := vendor.mower(MowerConfig{Name: "Back lawn", Model: "Indego S+ 500"})

	info := mower.HomeKit.A.Info
	assert.Equal(t, "Back lawn", info.Name.Value())
	assert.Equal(t, "Bosch", info.Manufacturer.Value())
	assert.Equal(t, "Indego S+ 500", info.Model.Value())
	assert.Equal(t, "1", info.SerialNumber.Value())

	value, code := mower.HomeKit.Motion.MotionDetected.ValueRequestFunc(nil)
	assert.Equal(t, false, value)
	assert.Equal(t, hapStatusSuccess, code)
	mower.Accessory.Wait()

	assert.True(t, mower.HomeKit.Motion.MotionDetected.Value())
	assert.True(t, mower.HomeKit.Switch.On.Value())
	assert.Equal(t, "1234567", info.SerialNumber.Value())

	value, _ = mower.HomeKit.Switch.On.ValueRequestFunc(nil)
	assert.Equal(t, true, value)
	mower.Accessory.Wait()

	mower.HomeKit.SetMowing(false)
	assert.False(t, mower.HomeKit.Motion.MotionDetected.Value())
	assert.False(t, mower.HomeKit.Switch.On.Value())
}
