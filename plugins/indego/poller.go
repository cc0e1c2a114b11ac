package indego

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptrace"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	opPoll    = "poll"
	opCommand = "command"
)

// PollSnapshot is a read-only view of the poller for metrics and RPCs.
type PollSnapshot struct {
	State        MowerState
	RawCode      int
	HasRawCode   bool
	InFlight     bool
	Session      SessionInfo
	LastSuccess  time.Time
	LastError    error
	LastCommand  Action
	Outcomes     map[string]uint64
	LoginsOK     uint64
	LoginsFailed uint64
}

// Poller reads and changes mower state with at most one request outstanding.
type Poller struct {
	session    *Session
	client     *Client
	log        zerolog.Logger
	awaitLogin bool

	inFlight atomic.Bool

	mu          sync.Mutex
	lastKnown   MowerState
	rawCode     int
	hasRawCode  bool
	lastSuccess time.Time
	lastErr     error
	lastCommand Action
	outcomes    map[string]uint64
	observers   []func(bool)
}

func NewPoller(session *Session, client *Client, awaitLogin bool, logger zerolog.Logger) *Poller {
	return &Poller{
		session:    session,
		client:     client,
		log:        logger,
		awaitLogin: awaitLogin,
		outcomes:   make(map[string]uint64),
	}
}

// OnUpdate registers fn to receive every newly learned mowing value.
func (p *Poller) OnUpdate(fn func(mowing bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Poller) InFlight() bool {
	return p.inFlight.Load()
}

// LastKnown returns the cached state; StateUnknown until a mapped code was seen.
func (p *Poller) LastKnown() MowerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastKnown
}

// NextAction is the command a switch toggle sends given the cached state.
func (p *Poller) NextAction() Action {
	if p.LastKnown() == StateMowing {
		return ActionReturnToDock
	}
	return ActionMow
}

func (p *Poller) Snapshot() PollSnapshot {
	p.mu.Lock()
	snap := PollSnapshot{
		State:       p.lastKnown,
		RawCode:     p.rawCode,
		HasRawCode:  p.hasRawCode,
		LastSuccess: p.lastSuccess,
		LastError:   p.lastErr,
		LastCommand: p.lastCommand,
		Outcomes:    make(map[string]uint64, len(p.outcomes)),
	}
	for key, value := range p.outcomes {
		snap.Outcomes[key] = value
	}
	p.mu.Unlock()

	snap.InFlight = p.inFlight.Load()
	snap.Session = p.session.Snapshot()
	snap.LoginsOK, snap.LoginsFailed = p.session.LoginCounts()
	return snap
}

// Poll refreshes the mower state. It returns ErrBusy without side effects when
// another request is in flight; every other error has already been logged.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug().Msg("poll skipped, previous request still in flight")
		return ErrBusy
	}
	defer p.inFlight.Store(false)

	err := p.poll(ctx)
	p.finish(opPoll, err)
	return err
}

func (p *Poller) poll(ctx context.Context) error {
	session := p.session.Snapshot()

	var loginDone chan struct{}
	if !session.Authenticated {
		if p.awaitLogin {
			info, err := p.session.Authenticate(ctx)
			if err != nil {
				return err
			}
			session = info
		} else {
			// The state request goes out with the context held before login,
			// but only once the login request is on the wire.
			loginDone = make(chan struct{})
			loginSent := make(chan struct{})
			var sent sync.Once
			trace := &httptrace.ClientTrace{
				WroteRequest: func(httptrace.WroteRequestInfo) {
					sent.Do(func() { close(loginSent) })
				},
			}
			go func() {
				defer close(loginDone)
				_, _ = p.session.Authenticate(httptrace.WithClientTrace(ctx, trace))
			}()
			select {
			case <-loginSent:
			case <-loginDone:
			case <-ctx.Done():
			}
		}
	}

	code, err := p.client.State(ctx, session)
	if loginDone != nil {
		<-loginDone
	}
	if err != nil {
		if errors.Is(err, ErrAuthExpired) {
			p.session.InvalidateContext(session.ContextID)
		}
		return err
	}
	return p.observe(code)
}

func (p *Poller) observe(code int) error {
	state := MapStatus(code)

	p.mu.Lock()
	p.rawCode = code
	p.hasRawCode = true
	p.lastSuccess = time.Now()
	if !state.Known() {
		p.mu.Unlock()
		return &RequestError{Op: "get state", Err: ErrUnknownStatus, Cause: fmt.Errorf("code %d (%s)", code, StatusName(code))}
	}
	p.lastKnown = state
	observers := slices.Clone(p.observers)
	p.mu.Unlock()

	p.log.Debug().Int("code", code).Str("status", StatusName(code)).Bool("mowing", state.Mowing()).Msg("indego state")
	for _, fn := range observers {
		fn(state.Mowing())
	}
	return nil
}

// SetDesiredState sends a command under the same in-flight guard as Poll.
func (p *Poller) SetDesiredState(ctx context.Context, action Action) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug().Str("action", string(action)).Msg("command skipped, previous request still in flight")
		return ErrBusy
	}
	defer p.inFlight.Store(false)

	session := p.session.Snapshot()
	err := p.client.SetState(ctx, session, action)
	if errors.Is(err, ErrAuthExpired) {
		p.session.InvalidateContext(session.ContextID)
	}
	if err == nil {
		p.mu.Lock()
		p.lastCommand = action
		p.mu.Unlock()
		p.log.Debug().Str("action", string(action)).Msg("indego command sent")
	}
	p.finish(opCommand, err)
	return err
}

func (p *Poller) finish(op string, err error) {
	result := outcome(err)

	p.mu.Lock()
	p.outcomes[op+"/"+result]++
	p.lastErr = err
	p.mu.Unlock()

	if err == nil {
		return
	}
	event := p.log.Debug().Err(err).Str("op", op)
	switch result {
	case "unknown_status":
		event.Msg("received value is not valid, keeping last state")
	case "auth_expired":
		event.Msg("session rejected, login on next poll")
	default:
		event.Msg("indego request failed")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "error"
	}
}
