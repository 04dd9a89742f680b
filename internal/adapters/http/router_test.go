package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/dkeye/relay/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	r     *gin.Engine
	orch  *orch.Orchestrator
	store *store.InMemoryStore
}

func newTestServer(t *testing.T, devLogin bool) *testServer {
	t.Helper()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.Mode = "test"
	cfg.Auth.DevLogin = devLogin
	cfg.StaticPath = t.TempDir()

	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	st := store.NewInMemoryStore()
	o := orch.New(orch.Options{Store: st, Metrics: metrics.New(reg)})
	r := SetupRouter(context.Background(), cfg, Deps{Orch: o, Gatherer: reg})
	return &testServer{r: r, orch: o, store: st}
}

func (s *testServer) do(method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, user string) []*http.Cookie {
	t.Helper()
	w := s.do(http.MethodPost, "/api/session", `{"user_id":"`+user+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relay_open_connections")
}

func TestDevLoginDisabled(t *testing.T) {
	s := newTestServer(t, false)
	w := s.do(http.MethodPost, "/api/session", `{"user_id":"alice"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthenticatedRoutes(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(http.MethodGet, "/api/calls/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	alice := s.login(t, "alice")
	w = s.do(http.MethodGet, "/api/calls/history", "", alice)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, s.store.RecordCall(context.Background(), domain.CallRecord{
		Caller: "alice", Callee: "bob", Status: domain.CallStatusMissed,
	}))
	w = s.do(http.MethodGet, "/api/calls/history?limit=5", "", alice)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Calls []domain.CallRecord `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Calls, 1)
	assert.Equal(t, domain.CallStatusMissed, got.Calls[0].Status)
}

func TestMembershipAndHistory(t *testing.T) {
	s := newTestServer(t, true)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	w := s.do(http.MethodPut, "/api/rooms/R1/members/alice", `{"role":"admin"}`, alice)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/api/rooms/R1/members/bob", "", bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/rooms/R1/messages", "", bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := s.store.Save(context.Background(), domain.GroupMessage{Room: "R1", Sender: "alice", ContentType: domain.ContentText, Content: "hi"})
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/api/rooms/R1/messages", "", alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"hi"`)

	w = s.do(http.MethodPut, "/api/rooms/R1/members/carol", `{"role":"owner"}`, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicReadRoutes(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(http.MethodGet, "/api/presence", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"users":[]}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/ice-servers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/rooms/R1/connections", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room":"R1","connections":0}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
