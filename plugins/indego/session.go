package indego

import (
	"context"
	"encoding/base64"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

const (
	placeholderSerial    = "1"
	placeholderUserID    = "0"
	placeholderContextID = "0"
)

// Credentials are the account used to log in. They never change after startup.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) basicToken() string {
	return base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.Password))
}

// SessionInfo is a copy of the session context at one point in time.
type SessionInfo struct {
	Serial        string
	UserID        string
	ContextID     string
	Authenticated bool
}

// Session holds the login context for one mower account.
type Session struct {
	client *Client
	token  string
	log    zerolog.Logger

	mu           sync.Mutex
	info         SessionInfo
	observers    []func(SessionInfo)
	loginsOK     uint64
	loginsFailed uint64
}

func NewSession(creds Credentials, client *Client, logger zerolog.Logger) *Session {
	return &Session{
		client: client,
		token:  creds.basicToken(),
		log:    logger,
		info: SessionInfo{
			Serial:    placeholderSerial,
			UserID:    placeholderUserID,
			ContextID: placeholderContextID,
		},
	}
}

func (s *Session) Snapshot() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Authenticated
}

// Invalidate forces a login on the next poll cycle. Serial and context are kept.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Authenticated = false
}

// InvalidateContext invalidates the session only while contextID is still current,
// so a 401 on a stale context cannot undo a login that finished meanwhile.
func (s *Session) InvalidateContext(contextID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info.ContextID != contextID {
		return false
	}
	s.info.Authenticated = false
	return true
}

// LoginCounts returns the number of successful and failed login attempts.
func (s *Session) LoginCounts() (ok, failed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginsOK, s.loginsFailed
}

// OnLogin registers fn to run after every successful login.
func (s *Session) OnLogin(fn func(SessionInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Authenticate performs a single login attempt. On failure the session is left untouched.
func (s *Session) Authenticate(ctx context.Context) (SessionInfo, error) {
	info, err := s.client.Login(ctx, s.token)
	if err != nil {
		s.mu.Lock()
		s.loginsFailed++
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("indego login failed")
		return s.Snapshot(), err
	}

	s.mu.Lock()
	s.info = info
	s.loginsOK++
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	s.log.Debug().Str("serial", info.Serial).Str("user_id", info.UserID).Msg("indego login ok")
	for _, fn := range observers {
		fn(info)
	}
	return info, nil
}
