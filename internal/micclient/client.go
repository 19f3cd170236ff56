// Package micclient is the Go client of the open-mic service: one method
// per HTTP route, a taxonomy of failures, retries for network errors and
// a Session that keeps one mic in sync over the live channel.
package micclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/iliyamo/open-mic/internal/model"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// AttemptTimeout bounds a single HTTP attempt of the default client.  A
// timed out attempt is a network failure and may be retried.
const AttemptTimeout = 10 * time.Second

// Client calls the open-mic HTTP API.  It is safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	retry RetryPolicy

	mu    sync.RWMutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithRetry replaces DefaultRetry.
func WithRetry(p RetryPolicy) Option { return func(c *Client) { c.retry = p } }

// WithToken starts the client signed in.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// New returns a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = AttemptTimeout
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		http:  hc,
		retry: DefaultRetry,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the server address the client was built with.
func (c *Client) BaseURL() string { return c.base }

// SetToken sets the bearer token sent with every request; "" signs out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do sends one JSON request under the retry policy and decodes a 2xx
// body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		bs, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("micclient: encode %s: %w", path, err)
		}
		payload = bs
	}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.once(ctx, method, path, payload, out)
	})
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("micclient: build %s: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()
	bs, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return networkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, bs)
	}
	if out == nil || len(bs) == 0 {
		return nil
	}
	if err := json.Unmarshal(bs, out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Msg: "malformed response", Err: err}
	}
	return nil
}

type micBody struct {
	MicID uint64 `json:"micId"`
}

type entryBody struct {
	MicID       uint64              `json:"micId"`
	PerformerID uint64              `json:"userId"`
	SetComplete bool                `json:"setComplete,omitempty"`
	Anon        *model.AnonIdentity `json:"anon,omitempty"`
}

type selfBody struct {
	MicID uint64              `json:"micId"`
	Anon  *model.AnonIdentity `json:"anon,omitempty"`
}

// Auth is the result of Login and Register.
type Auth struct {
	User struct {
		ID    uint64 `json:"id"`
		First string `json:"first"`
		Last  string `json:"last"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

// Login signs in and keeps the access token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Auth, error) {
	var a Auth
	err := c.do(ctx, http.MethodPost, "/users/login", map[string]string{"email": email, "password": password}, &a)
	if err == nil {
		c.SetToken(a.Access.Token)
	}
	return a, err
}

// Mics fetches the mic list.
func (c *Client) Mics(ctx context.Context) ([]model.Mic, error) {
	var out []model.Mic
	err := c.do(ctx, http.MethodGet, "/mic/mics", nil, &out)
	return out, err
}

// Mic fetches one mic.
func (c *Client) Mic(ctx context.Context, micID uint64) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/micdetails", micBody{micID}, &m)
	return m, err
}

// Performers fetches the roster ordered by position.
func (c *Client) Performers(ctx context.Context, micID uint64) ([]model.Performer, error) {
	var out []model.Performer
	err := c.do(ctx, http.MethodPost, "/mic/performers", micBody{micID}, &out)
	if out == nil && err == nil {
		out = []model.Performer{}
	}
	return out, err
}

// CreateMic submits a new mic hosted by the signed-in user.
func (c *Client) CreateMic(ctx context.Context, form model.MicForm) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/mic/create", map[string]model.MicForm{"mic": form}, &m)
	return m, err
}

// ManageSignup opens or closes signup.
func (c *Client) ManageSignup(ctx context.Context, micID uint64, open bool) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/mic/managesignupstate", map[string]any{"micId": micID, "micSignupState": open}, &m)
	return m, err
}

// ManageCheckin opens or closes check-in.
func (c *Client) ManageCheckin(ctx context.Context, micID uint64, open bool) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/mic/managecheckin", map[string]any{"micId": micID, "checkinOpen": open}, &m)
	return m, err
}

// Hide hides or shows a mic in the public list.
func (c *Client) Hide(ctx context.Context, micID uint64, hide bool) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/mic/hide", map[string]any{"micId": micID, "hide": hide}, &m)
	return m, err
}

// Signup adds the caller to the roster.  With anon nil the signed-in
// account signs up; otherwise the anonymous route is used.
func (c *Client) Signup(ctx context.Context, micID uint64, anon *model.AnonIdentity, asWaiting bool) (model.Mic, error) {
	path := "/mic/user/signup"
	switch {
	case anon != nil && asWaiting:
		path = "/mic/waitinglist/signup"
	case anon != nil:
		path = "/mic/signup"
	case asWaiting:
		path = "/mic/user/waitinglist/signup"
	}
	var m model.Mic
	err := c.do(ctx, http.MethodPost, path, selfBody{MicID: micID, Anon: anon}, &m)
	return m, err
}

// CheckIn confirms the caller's presence.
func (c *Client) CheckIn(ctx context.Context, micID uint64, anon *model.AnonIdentity) error {
	return c.do(ctx, http.MethodPost, "/mic/checkin", selfBody{MicID: micID, Anon: anon}, nil)
}

// AdminCheckIn checks a performer in on their behalf.
func (c *Client) AdminCheckIn(ctx context.Context, micID, performerID uint64) error {
	return c.do(ctx, http.MethodPost, "/mic/admin/checkin", entryBody{MicID: micID, PerformerID: performerID}, nil)
}

// CompleteSet ends a performer's set.
func (c *Client) CompleteSet(ctx context.Context, micID, performerID uint64) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/mic/completeset", entryBody{MicID: micID, PerformerID: performerID}, &m)
	return m, err
}

// Skip passes over a performer; closeSet records a missed set.
func (c *Client) Skip(ctx context.Context, micID, performerID uint64, closeSet bool) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodPost, "/mic/skip", entryBody{MicID: micID, PerformerID: performerID, SetComplete: closeSet}, &m)
	return m, err
}

// SetNext moves a skipped performer up after curID, the performer the
// caller believes is current (nil when nobody is).
func (c *Client) SetNext(ctx context.Context, micID uint64, curID *uint64, moveID uint64) (model.Mic, error) {
	var m model.Mic
	body := map[string]any{"micId": micID, "curPerfId": curID, "movePerfId": moveID}
	err := c.do(ctx, http.MethodPost, "/mic/performer/setnext", body, &m)
	return m, err
}

// RemoveSelf takes the signed-in caller off the roster.
func (c *Client) RemoveSelf(ctx context.Context, micID uint64) error {
	return c.do(ctx, http.MethodDelete, "/mic/removeself", micBody{micID}, nil)
}

// RemoveAnon removes an anonymous entry, proving ownership with anon.
func (c *Client) RemoveAnon(ctx context.Context, micID, performerID uint64, anon model.AnonIdentity) error {
	return c.do(ctx, http.MethodDelete, "/mic/removeanonuser", entryBody{MicID: micID, PerformerID: performerID, Anon: &anon}, nil)
}

// AdminRemove removes any performer.
func (c *Client) AdminRemove(ctx context.Context, micID, performerID uint64) (model.Mic, error) {
	var m model.Mic
	err := c.do(ctx, http.MethodDelete, "/admin/mic/removeuser", entryBody{MicID: micID, PerformerID: performerID}, &m)
	return m, err
}
