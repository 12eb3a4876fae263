package calls_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chfgma/clicktocall/calls"
	"github.com/chfgma/clicktocall/config"
)

var testConfig = config.Config{
	AccountSID:   "ACxxxxxx",
	AuthToken:    "yyyyyyyyy",
	CallerID:     "+15558675309",
	Voice:        "alice",
	Announcement: "Hello from the test suite.",
}

type placed struct {
	From, To string
	Callback *url.URL
}

type fakePlacer struct {
	calls []placed
	err   error
}

func (f *fakePlacer) Place(_ context.Context, from, to string, callback *url.URL) (string, error) {
	f.calls = append(f.calls, placed{From: from, To: to, Callback: callback})
	if f.err != nil {
		return "", f.err
	}
	return "CAtesting", nil
}

func factory(p calls.Placer) calls.PlacerFactory {
	return func(cfg config.Config) (calls.Placer, error) {
		if err := cfg.MissingCredential(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func postCall(t *testing.T, h http.Handler, form url.Values) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "http://localhost/call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body: %s", rr.Body.String())
	return rr, body
}

func TestCallHandler(t *testing.T) {
	placer := &fakePlacer{}
	h := calls.NewCallHandler(testConfig, factory(placer), "/outbound", zap.NewNop())

	rr, body := postCall(t, h, url.Values{"phoneNumber": {"+15556667777"}})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"message": "Call incoming!"}, body)

	require.Len(t, placer.calls, 1)
	assert.Equal(t, "+15558675309", placer.calls[0].From)
	assert.Equal(t, "+15556667777", placer.calls[0].To)
	assert.Equal(t, "http://localhost/outbound", placer.calls[0].Callback.String())
}

func TestCallHandlerMissingPhoneNumber(t *testing.T) {
	placer := &fakePlacer{}
	h := calls.NewCallHandler(testConfig, factory(placer), "/outbound", zap.NewNop())

	rr, _ := postCall(t, h, url.Values{})

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, placer.calls, 1)
	assert.Empty(t, placer.calls[0].To)
}

func TestCallHandlerMissingCredentials(t *testing.T) {
	testCases := []struct {
		Name   string
		Mutate func(*config.Config)
		Key    string
	}{
		{Name: "account_sid", Mutate: func(c *config.Config) { c.AccountSID = "" }, Key: config.AccountSIDKey},
		{Name: "auth_token", Mutate: func(c *config.Config) { c.AuthToken = "" }, Key: config.AuthTokenKey},
		{Name: "caller_id", Mutate: func(c *config.Config) { c.CallerID = "" }, Key: config.CallerIDKey},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			cfg := testConfig
			tc.Mutate(&cfg)

			placer := &fakePlacer{}
			h := calls.NewCallHandler(cfg, factory(placer), "/outbound", zap.NewNop())

			rr, body := postCall(t, h, url.Values{"phoneNumber": {"+15556667777"}})

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "Missing configuration variable: "+tc.Key, body["error"])
			assert.NotContains(t, body, "message")
			assert.Empty(t, placer.calls)
		})
	}
}

func TestCallHandlerFactoryError(t *testing.T) {
	broken := func(config.Config) (calls.Placer, error) {
		return nil, errors.New("TWILIO_ACCOUNT_SID")
	}
	h := calls.NewCallHandler(testConfig, broken, "/outbound", zap.NewNop())

	rr, body := postCall(t, h, url.Values{"phoneNumber": {"+15556667777"}})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"error": "Missing configuration variable: TWILIO_ACCOUNT_SID"}, body)
}

func TestCallHandlerProviderError(t *testing.T) {
	placer := &fakePlacer{err: errors.Wrap(errors.New("Test error."), "creating call")}
	h := calls.NewCallHandler(testConfig, factory(placer), "/outbound", zap.NewNop())

	rr, body := postCall(t, h, url.Values{"phoneNumber": {"+15556667777"}})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"error": "Test error."}, body)
	assert.Len(t, placer.calls, 1)
}

func TestResultBody(t *testing.T) {
	assert.Equal(t, map[string]string{"message": "Call incoming!"}, calls.Ok("CA123").Body())
	assert.Equal(t, map[string]string{"error": "boom"}, calls.Err(calls.ProviderRequestError, "boom").Body())

	empty := calls.Err(calls.ProviderRequestError, "").Body()
	assert.Contains(t, empty, "error")
	assert.NotContains(t, empty, "message")

	assert.True(t, calls.Ok("CA123").OK())
	assert.False(t, calls.Err(calls.ConfigurationError, "x").OK())
	assert.Equal(t, "configuration", calls.ConfigurationError.String())
}

func TestCallHandlerMissingHost(t *testing.T) {
	t.Run("missing_credentials_win", func(t *testing.T) {
		cfg := testConfig
		cfg.AccountSID = ""
		placer := &fakePlacer{}
		h := calls.NewCallHandler(cfg, factory(placer), "/outbound", zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader("phoneNumber=%2B15556667777"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Host = ""
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"error": "Missing configuration variable: TWILIO_ACCOUNT_SID"}`, rr.Body.String())
		assert.Empty(t, placer.calls)
	})

	t.Run("public_url_required", func(t *testing.T) {
		placer := &fakePlacer{}
		h := calls.NewCallHandler(testConfig, factory(placer), "/outbound", zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/call", strings.NewReader("phoneNumber=%2B15556667777"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Host = ""
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"error": "Missing configuration variable: PUBLIC_URL"}`, rr.Body.String())
		assert.Empty(t, placer.calls)
	})
}

func TestCallHandlerIgnoresForwardedHeaders(t *testing.T) {
	placer := &fakePlacer{}
	h := calls.NewCallHandler(testConfig, factory(placer), "/outbound", zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "http://demo.example.com/call", strings.NewReader("phoneNumber=%2B15556667777"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Host", "attacker.example")
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Len(t, placer.calls, 1)
	assert.Equal(t, "http://demo.example.com/outbound", placer.calls[0].Callback.String())
}

func TestCallbackURL(t *testing.T) {
	testCases := []struct {
		Name       string
		PublicURL  string
		TrustProxy bool
		Headers    map[string]string
		TLS        bool
		Expected   string
	}{
		{
			Name:     "request_host",
			Expected: "http://example.com/outbound",
		},
		{
			Name:     "tls",
			TLS:      true,
			Expected: "https://example.com/outbound",
		},
		{
			Name: "forwarded_untrusted",
			Headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "attacker.example",
			},
			Expected: "http://example.com/outbound",
		},
		{
			Name:       "forwarded_trusted",
			TrustProxy: true,
			Headers: map[string]string{
				"X-Forwarded-Proto": "https, http",
				"X-Forwarded-Host":  "clicktocall.example.org",
			},
			Expected: "https://clicktocall.example.org/outbound",
		},
		{
			Name:       "public_url",
			PublicURL:  "https://abc123.ngrok.io",
			TrustProxy: true,
			Headers:    map[string]string{"X-Forwarded-Host": "ignored.example.org"},
			Expected:   "https://abc123.ngrok.io/outbound",
		},
		{
			Name:      "public_url_with_prefix",
			PublicURL: "https://example.net/demo/",
			Expected:  "https://example.net/demo/outbound",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://example.com/call", nil)
			for k, v := range tc.Headers {
				req.Header.Set(k, v)
			}
			if tc.TLS {
				req.TLS = &tls.ConnectionState{}
			}

			cfg := testConfig
			cfg.PublicURL = tc.PublicURL
			cfg.TrustProxy = tc.TrustProxy

			u, err := calls.CallbackURL(req, cfg, "/outbound")
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, u.String())
		})
	}
}
