package indego

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordedRequest struct {
	Method        string
	Path          string
	ContextID     string
	Authorization string
	ContentType   string
	Body          string
}

// fakeVendor is an in-process stand-in for the Indego cloud API.
type fakeVendor struct {
	t   *testing.T
	srv *httptest.Server

	login   http.HandlerFunc
	state   http.HandlerFunc
	command http.HandlerFunc

	mu       sync.Mutex
	requests []recordedRequest
	code     int
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()
	v := &fakeVendor{t: t, code: 258}
	v.login = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"alm_sn": "1234567", "userId": 42, "contextId": "ctx-1"})
	}
	v.state = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"state": v.stateCode()})
	}
	v.command = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	v.srv = httptest.NewServer(http.HandlerFunc(v.serve))
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVendor) serve(w http.ResponseWriter, r *http.Request) {
	// Requests are recorded in arrival order, before their bodies are read.
	v.mu.Lock()
	idx := len(v.requests)
	v.requests = append(v.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		ContextID:     r.Header.Get(contextHeader),
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
	})
	v.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	v.mu.Lock()
	v.requests[idx].Body = string(body)
	v.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/authenticate":
		v.login(w, r)
	case r.Method == http.MethodGet:
		v.state(w, r)
	case r.Method == http.MethodPut:
		v.command(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (v *fakeVendor) setCode(code int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.code = code
}

func (v *fakeVendor) stateCode() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.code
}

func (v *fakeVendor) recorded(method string) []recordedRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []recordedRequest
	for _, req := range v.requests {
		if req.Method == method {
			out = append(out, req)
		}
	}
	return out
}

// methods lists request methods in arrival order.
func (v *fakeVendor) methods() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.requests))
	for _, req := range v.requests {
		out = append(out, req.Method)
	}
	return out
}

func (v *fakeVendor) count(method string) int {
	return len(v.recorded(method))
}

func (v *fakeVendor) client() *Client {
	return NewClient(v.srv.URL, v.srv.Client())
}

func (v *fakeVendor) mower(cfg MowerConfig) *Mower {
	if cfg.Name == "" {
		cfg.Name = "Lawn"
	}
	if cfg.Model == "" {
		cfg.Model = "Indego 1000"
	}
	if cfg.Credentials == (Credentials{}) {
		cfg.Credentials = Credentials{Email: "user@example.com", Password: "secret"}
	}
	return NewMower(cfg, v.client(), zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
