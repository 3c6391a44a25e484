package api_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/api"
	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/config"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/llmgateway"
	"github.com/flowforge/orchestrator/pkg/metrics"
	"github.com/flowforge/orchestrator/pkg/orchestrator"
	"github.com/flowforge/orchestrator/test/util"
)

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	s := util.NewTestStore(t)
	bus := events.NewBus(slog.Default())
	art := artifact.New(bus, slog.Default())
	gw := llmgateway.New(map[string]llmgateway.Provider{"mock": &llmgateway.MockProvider{}}, config.DefaultPricing())
	agents := orchestrator.NewAgentRegistry(orchestrator.DefaultAgents())
	cfg, err := config.Load()
	require.NoError(t, err)
	m := metrics.New()
	sched := orchestrator.New(s, bus, gw, agents, art, cfg, slog.Default(), m, nil)
	return api.New(s, bus, sched, art, agents, m, slog.Default())
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "orchestrator_")
}

func TestServer_ProjectChatLifecycle(t *testing.T) {
	srv := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/projects",
		strings.NewReader(`{"name":"demo","path":"/work/demo"}`))
	createReq.Header.Set("Content-Type", "application/json")
	createRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &project))
	require.NotEmpty(t, project.ID)

	chatReq := httptest.NewRequest(http.MethodPost, "/chats",
		strings.NewReader(`{"projectId":"`+project.ID+`","title":"first chat"}`))
	chatReq.Header.Set("Content-Type", "application/json")
	chatRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(chatRec, chatReq)
	require.Equal(t, http.StatusCreated, chatRec.Code)

	var chat struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(chatRec.Body.Bytes(), &chat))
	require.NotEmpty(t, chat.ID)

	listReq := httptest.NewRequest(http.MethodGet, "/projects/"+project.ID+"/chats", nil)
	listRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	require.Contains(t, listRec.Body.String(), chat.ID)
}

func TestServer_ResolveCheckpoint_NoPendingGate(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/settings/checkpoints/resolve",
		strings.NewReader(`{"chatId":"missing","checkpointId":"missing","choice":"approve"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
