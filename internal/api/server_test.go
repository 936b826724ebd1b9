package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/AnnoyBoT/internal/service"
)

type fakeActivator struct {
	err      error
	requests []service.ActivationRequest
}

func (a *fakeActivator) Activate(_ context.Context, req service.ActivationRequest) error {
	a.requests = append(a.requests, req)
	return a.err
}

func newTestServer(activator Activator, opts Options) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(activator, logger, opts)
}

func postActivation(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, activationPath, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:4242"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestActivation_Success(t *testing.T) {
	activator := &fakeActivator{}
	s := newTestServer(activator, Options{})

	rec, resp := postActivation(t, s, `{"group_id":"-2","group_name":"beta","invite_code":"secret"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, response{Status: statusSuccess, Data: service.MsgActivationSuccess}, resp)
	require.Len(t, activator.requests, 1)
	assert.Equal(t, service.ActivationRequest{GroupID: "-2", GroupName: "beta", InviteCode: "secret"}, activator.requests[0])
}

func TestActivation_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		data   string
	}{
		{fmt.Errorf("%w: missing group", service.ErrBadInput), http.StatusBadRequest, dataBadInput},
		{service.ErrAlreadyActivated, http.StatusBadRequest, dataAlreadyActivated},
		{service.ErrInvalidInviteCode, http.StatusForbidden, dataInvalidInviteCode},
		{errors.New("registry unavailable"), http.StatusInternalServerError, dataInternal},
	}

	for _, tc := range cases {
		t.Run(tc.data, func(t *testing.T) {
			s := newTestServer(&fakeActivator{err: tc.err}, Options{})

			rec, resp := postActivation(t, s, `{"group_id":"-2","invite_code":"x"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, response{Status: statusError, Data: tc.data}, resp)
		})
	}
}

func TestActivation_MalformedBody(t *testing.T) {
	activator := &fakeActivator{}
	s := newTestServer(activator, Options{})

	for _, body := range []string{"", "{", `{"group_id": 12}`} {
		rec, resp := postActivation(t, s, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dataBadInput, resp.Data)
	}
	assert.Empty(t, activator.requests)
}

func TestActivation_RateLimited(t *testing.T) {
	activator := &fakeActivator{err: service.ErrInvalidInviteCode}
	s := newTestServer(activator, Options{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		rec, _ := postActivation(t, s, `{"group_id":"-2","invite_code":"guess"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}

	rec, resp := postActivation(t, s, `{"group_id":"-2","invite_code":"guess"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, dataRateLimited, resp.Data)
	assert.Len(t, activator.requests, 2)
}

func TestActivation_Preflight(t *testing.T) {
	s := newTestServer(&fakeActivator{}, Options{})
	req := httptest.NewRequest(http.MethodOptions, activationPath, nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestDashboard(t *testing.T) {
	s := newTestServer(&fakeActivator{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/dashboard?group_id=-9&group_name=Team+%3Cb%3E", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<mark>Team &lt;b&gt;</mark>")
	assert.NotContains(t, body, "<b>")
	assert.Contains(t, body, `id="activation"`)

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotContains(t, rec.Body.String(), `id="activation"`)
}

func TestHealth(t *testing.T) {
	ready := false
	s := newTestServer(&fakeActivator{}, Options{Ready: func() bool { return ready }})

	check := func() int {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, check())
	ready = true
	assert.Equal(t, http.StatusOK, check())
}

func TestWebhookRoute(t *testing.T) {
	var hits int
	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	})

	s := newTestServer(&fakeActivator{}, Options{Webhook: webhook})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, webhookPath, strings.NewReader("{}")))
	assert.Equal(t, 1, hits)

	s = newTestServer(&fakeActivator{}, Options{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, webhookPath, strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIPLimiter_PerClient(t *testing.T) {
	l := newIPLimiter(0.001, 1)
	now := time.Now()

	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now))
	assert.True(t, l.allow("b", now))

	var disabled *ipLimiter
	assert.True(t, disabled.allow("a", now))
}

func TestClientKey(t *testing.T) {
	proxy := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	cases := []struct {
		name      string
		remote    string
		forwarded []string
		trusted   []netip.Prefix
		want      string
	}{
		{"direct", "203.0.113.7:4242", nil, nil, "203.0.113.7"},
		{"header from untrusted peer", "203.0.113.7:4242", []string{"198.51.100.1"}, proxy, "203.0.113.7"},
		{"header ignored without proxies", "10.0.0.2:80", []string{"198.51.100.1"}, nil, "10.0.0.2"},
		{"trusted proxy", "10.0.0.2:80", []string{"198.51.100.1"}, proxy, "198.51.100.1"},
		{"spoofed left-most entry", "10.0.0.2:80", []string{"1.2.3.4, 198.51.100.1"}, proxy, "198.51.100.1"},
		{"proxy chain", "10.0.0.2:80", []string{"198.51.100.1", "10.0.0.9"}, proxy, "198.51.100.1"},
		{"only proxies", "10.0.0.2:80", []string{"10.0.0.9"}, proxy, "10.0.0.2"},
		{"no header", "10.0.0.2:80", nil, proxy, "10.0.0.2"},
		{"empty remote", "", nil, nil, "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, activationPath, nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, clientKey(req, tc.trusted))
		})
	}
}

func TestActivation_RateLimitedBehindProxy(t *testing.T) {
	activator := &fakeActivator{err: service.ErrInvalidInviteCode}
	s := newTestServer(activator, Options{
		RateLimit:      0.001,
		RateBurst:      1,
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.1/32")},
	})

	post := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, activationPath, strings.NewReader(`{"group_id":"-2","invite_code":"guess"}`))
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, post("198.51.100.1"))
	assert.Equal(t, http.StatusForbidden, post("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.1"))
}
