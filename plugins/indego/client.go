package indego

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultBaseURL = "https://api.indego.iot.bosch-si.com/api/v1"
	requestTimeout = 3 * time.Second
	contextHeader  = "x-im-context-id"
)

// loginRequest is the fixed device descriptor the vendor app sends on login.
var loginRequest = map[string]string{
	"device":     "",
	"os_type":    "Android",
	"os_version": "4.0",
	"dvc_manuf":  "unknown",
	"dvc_type":   "unknown",
}

// Action is a desired mower state accepted by the state endpoint.
type Action string

const (
	ActionMow          Action = "mow"
	ActionReturnToDock Action = "returnToDock"
)

// ParseAction accepts the wire names plus a few shorthands.
func ParseAction(value string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mow", "start", "on":
		return ActionMow, nil
	case "returntodock", "return_to_dock", "dock", "off":
		return ActionReturnToDock, nil
	default:
		return "", fmt.Errorf("unknown action %q", value)
	}
}

// Client talks to the Indego cloud API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient, timeout: requestTimeout}
}

// flexString accepts a JSON string or number and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type loginResponse struct {
	Serial    *flexString `json:"alm_sn"`
	UserID    *flexString `json:"userId"`
	ContextID *flexString `json:"contextId"`
}

type stateResponse struct {
	State *int `json:"state"`
}

// Login exchanges basic-auth credentials for a session context.
func (c *Client) Login(ctx context.Context, basicToken string) (SessionInfo, error) {
	const op = "authenticate"
	headers := map[string]string{"Authorization": "Basic " + basicToken}
	status, payload, err := c.do(ctx, http.MethodPost, "/authenticate", loginRequest, headers)
	if err != nil {
		return SessionInfo{}, requestError(op, ErrTransport, 0, err)
	}
	if status < 200 || status >= 300 {
		return SessionInfo{}, requestError(op, ErrProtocol, status, fmt.Errorf("%s", snippet(payload)))
	}

	var resp loginResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return SessionInfo{}, requestError(op, ErrProtocol, status, fmt.Errorf("decode response: %w", err))
	}
	if resp.Serial == nil || resp.UserID == nil || resp.ContextID == nil {
		return SessionInfo{}, requestError(op, ErrProtocol, status, fmt.Errorf("response missing alm_sn, userId or contextId"))
	}

	return SessionInfo{
		Serial:        string(*resp.Serial),
		UserID:        string(*resp.UserID),
		ContextID:     string(*resp.ContextID),
		Authenticated: true,
	}, nil
}

// State reads the raw status code of a mower.
func (c *Client) State(ctx context.Context, session SessionInfo) (int, error) {
	const op = "get state"
	status, payload, err := c.do(ctx, http.MethodGet, statePath(session.Serial), nil, sessionHeaders(session))
	if err != nil {
		return 0, requestError(op, ErrTransport, 0, err)
	}

	var resp stateResponse
	decodeErr := json.Unmarshal(payload, &resp)
	if decodeErr == nil && resp.State == nil {
		decodeErr = fmt.Errorf("response missing state")
	}
	switch {
	case status == http.StatusUnauthorized:
		return 0, requestError(op, ErrAuthExpired, status, decodeErr)
	case status < 200 || status >= 300:
		return 0, requestError(op, ErrProtocol, status, fmt.Errorf("%s", snippet(payload)))
	case decodeErr != nil:
		return 0, requestError(op, ErrProtocol, status, decodeErr)
	}
	return *resp.State, nil
}

// SetState asks the mower to start mowing or return to its dock.
func (c *Client) SetState(ctx context.Context, session SessionInfo, action Action) error {
	const op = "set state"
	body := map[string]string{"state": string(action)}
	status, payload, err := c.do(ctx, http.MethodPut, statePath(session.Serial), body, sessionHeaders(session))
	if err != nil {
		return requestError(op, ErrTransport, 0, err)
	}
	switch {
	case status == http.StatusUnauthorized:
		return requestError(op, ErrAuthExpired, status, nil)
	case status < 200 || status >= 300:
		return requestError(op, ErrProtocol, status, fmt.Errorf("%s", snippet(payload)))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

func statePath(serial string) string {
	return "/alms/" + url.PathEscape(serial) + "/state"
}

func sessionHeaders(session SessionInfo) map[string]string {
	return map[string]string{contextHeader: session.ContextID}
}

const maxSnippet = 200

// snippet trims a response body for error messages, cutting on a rune boundary.
func snippet(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > maxSnippet {
		cut := maxSnippet
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	if text == "" {
		return "empty body"
	}
	return text
}
