package indego

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultUpdateInterval is used when a mower config omits update_interval.
const DefaultUpdateInterval = 1200000 * time.Millisecond

// Surface is the host-framework side of a mower accessory.
type Surface interface {
	SetMowing(mowing bool)
	SetSerial(serial string)
}

// Accessory translates host get/set events into poller calls and pushes
// learned state back to the surface.
type Accessory struct {
	name     string
	poller   *Poller
	surface  Surface
	interval time.Duration
	log      zerolog.Logger

	pending sync.WaitGroup
}

func NewAccessory(name string, poller *Poller, session *Session, surface Surface, interval time.Duration, logger zerolog.Logger) *Accessory {
	a := &Accessory{
		name:     name,
		poller:   poller,
		surface:  surface,
		interval: interval,
		log:      logger,
	}
	poller.OnUpdate(surface.SetMowing)
	session.OnLogin(func(info SessionInfo) {
		surface.SetSerial(info.Serial)
	})
	return a
}

func (a *Accessory) Name() string {
	return a.name
}

// HandleGet serves the cached value and schedules a refresh for the next read.
func (a *Accessory) HandleGet() bool {
	state := a.poller.LastKnown()
	update := !a.poller.InFlight()
	a.log.Debug().Str("last_state", state.String()).Bool("update", update).Msg("get state")
	if update {
		a.dispatch(func(ctx context.Context) {
			_ = a.poller.Poll(ctx)
		})
	}
	return state.Mowing()
}

// HandleSet toggles the mower based on the cached state, ignoring the requested
// value. It returns once the command has been dispatched.
func (a *Accessory) HandleSet(on bool) Action {
	action := a.poller.NextAction()
	a.log.Debug().Bool("requested", on).Str("action", string(action)).Msg("set state")
	a.dispatch(func(ctx context.Context) {
		_ = a.poller.SetDesiredState(ctx, action)
	})
	return action
}

// Run polls on the configured interval until ctx is done. A zero interval
// disables the timer; polls then only follow get events.
func (a *Accessory) Run(ctx context.Context) {
	if a.interval <= 0 {
		a.log.Info().Msg("periodic polling disabled")
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.poller.Poll(ctx)
		}
	}
}

// Wait blocks until dispatched requests have settled.
func (a *Accessory) Wait() {
	a.pending.Wait()
}

func (a *Accessory) dispatch(fn func(ctx context.Context)) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		fn(context.Background())
	}()
}
