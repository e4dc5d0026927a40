package daemon

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/frame"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/testutil/fakencp"
	"github.com/danmuck/wpanctl/internal/testutil/testlog"
	"github.com/danmuck/wpanctl/internal/testutil/tlstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startService(t *testing.T, mutate ...func(*ServiceConfig)) (*Service, *fakencp.NCP) {
	t.Helper()
	cfg := DefaultServiceConfig()
	cfg.ListenAddr = ""
	for _, m := range mutate {
		m(&cfg)
	}
	dev := fakencp.New()
	s, err := New(cfg, dev, Hardware{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("service did not stop")
		}
	})
	return s, dev
}

func waitReady(t *testing.T, s *Service) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec := do(s, http.MethodGet, "/ready", "")
		return rec.Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func do(s *Service, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewRequiresTransport(t *testing.T) {
	testlog.Start(t)
	_, err := New(DefaultServiceConfig(), nil, Hardware{})
	require.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t)

	rec := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wpan0", decode(t, rec)["service"])

	waitReady(t, s)
	body := decode(t, do(s, http.MethodGet, "/ready", ""))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "offline", body["state"])
}

func TestStatusReportsSnapshot(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "offline", body["state"])
	assert.Equal(t, "fakencp", body["transport"])
	assert.Equal(t, fakencp.Version, body["ncp_version"])
}

func TestMetricsRoute(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wpanctl_")
}

func TestPropertyRoutes(t *testing.T) {
	testlog.Start(t)
	s, dev := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodGet, "/properties", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), schema.KeyNCPChannel)

	rec = do(s, http.MethodGet, "/properties/"+schema.KeyNCPVersion, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, fakencp.Version, decode(t, rec)["value"])

	rec = do(s, http.MethodPut, "/properties/"+schema.KeyNCPChannel, `{"value": 15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v, _ := dev.Prop(spinel.PropPHYChan)
	assert.Equal(t, []byte{15}, v)

	rec = do(s, http.MethodGet, "/properties/"+schema.KeyNCPChannel, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 15, decode(t, rec)["value"])
}

func TestPropertyRouteErrors(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodGet, "/properties/No:Such:Key", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, protocol.StatusPropertyNotFound.String(), decode(t, rec)["status"])

	rec = do(s, http.MethodPut, "/properties/"+schema.KeyNCPChannel, `{"value": "eleven"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPut, "/properties/"+schema.KeyNCPChannel, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermitJoinAction(t *testing.T) {
	testlog.Start(t)
	s, dev := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodPost, "/actions/permit-join", `{"seconds": 60, "port": 1000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v, _ := dev.Prop(spinel.PropThreadAssistingPorts)
	assert.Equal(t, spinel.NewEncoder().Uint16(1000).Bytes(), v)
}

func TestActionErrors(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodPost, "/actions/teleport", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/actions/join", `{"name": "net", "key": "not-hex"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPost, "/actions/join", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPITokenGuardsControlRoutes(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t, func(c *ServiceConfig) { c.APIToken = "s3cret" })
	waitReady(t, s)

	rec := do(s, http.MethodPost, "/actions/permit-join", `{"seconds": 0}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(s, http.MethodPut, "/properties/"+schema.KeyNCPChannel, `{"value": 12}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Reads stay open.
	rec = do(s, http.MethodGet, "/properties/"+schema.KeyNCPChannel, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/actions/permit-join", strings.NewReader(`{"seconds": 0}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUpgradeFirmwareWithoutCommand(t *testing.T) {
	testlog.Start(t)
	s, _ := startService(t)
	waitReady(t, s)

	rec := do(s, http.MethodPost, "/actions/upgrade-firmware", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[protocol.Status]int{
		protocol.StatusOk:                     http.StatusOK,
		protocol.StatusInProgress:             http.StatusAccepted,
		protocol.StatusInvalidRange:           http.StatusBadRequest,
		protocol.StatusPropertyEmpty:          http.StatusNotFound,
		protocol.StatusInvalidForCurrentState: http.StatusConflict,
		protocol.StatusFeatureNotImplemented:  http.StatusNotImplemented,
		protocol.StatusTimeout:                http.StatusGatewayTimeout,
		protocol.StatusCanceled:               http.StatusServiceUnavailable,
		protocol.StatusJoinFailedAtScan:       http.StatusBadGateway,
	}
	for status, want := range cases {
		assert.Equal(t, want, httpStatus(status), status.String())
	}
}

func TestServeMutualTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "wpanctl-test-ca")
	server := ca.IssueServer(t, dir, "wpanctl")
	client := ca.IssueClient(t, dir, "operator")

	s, _ := startService(t, func(c *ServiceConfig) {
		c.ListenAddr = "127.0.0.1:0"
		c.TLS = TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CertFile: server.CertFile,
			KeyFile:  server.KeyFile,
			CAFile:   ca.CAFile(),
		}
	})
	require.Eventually(t, func() bool { return s.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	url := "https://" + s.Addr().String() + "/health"

	authed := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, &client)},
	}
	resp, err := authed.Get(url)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	anonymous := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, nil)},
	}
	resp, err = anonymous.Get(url)
	if err == nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultServiceConfig()
	require.NoError(t, cfg.Validate())

	cfg.Socket = " "
	assert.ErrorIs(t, cfg.Validate(), ErrSocketRequired)

	cfg = DefaultServiceConfig()
	cfg.Baud = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidBaud)

	cfg = DefaultServiceConfig()
	cfg.Framing = frame.Framing("slip")
	assert.Error(t, cfg.Validate())

	cfg = DefaultServiceConfig()
	cfg.TLS.Enabled = true
	assert.ErrorIs(t, cfg.Validate(), ErrTLSCertFileRequired)
	cfg.TLS.CertFile = "server.crt"
	assert.ErrorIs(t, cfg.Validate(), ErrTLSKeyFileRequired)
	cfg.TLS.KeyFile = "server.key"
	require.NoError(t, cfg.Validate())
	cfg.TLS.Mutual = true
	assert.ErrorIs(t, cfg.Validate(), ErrTLSCAFileRequired)
}

func TestServerTLSConfigRejectsBadCA(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "ca")
	server := ca.IssueServer(t, dir, "wpanctl")

	s := &Service{cfg: DefaultServiceConfig()}
	s.cfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: server.CertFile, KeyFile: server.KeyFile, CAFile: server.KeyFile}
	_, err := s.serverTLSConfig()
	require.Error(t, err)

	s.cfg.TLS.CAFile = ca.CAFile()
	cfg, err := s.serverTLSConfig()
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}
