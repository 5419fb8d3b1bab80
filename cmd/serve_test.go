//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/bulk"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

func newTestRouter(t *testing.T) (*chiTestEnv, http.Handler) {
	t.Helper()
	cfg = &config.Config{
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24, StalledPausedHours: 12},
	}
	st, err := store.NewSQLite(t.TempDir() + "/sessions.db")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	env := &researchEnv{Store: st}
	registry := newSessionRegistry()
	return &chiTestEnv{store: st}, newRouter(context.Background(), env, registry)
}

type chiTestEnv struct {
	store store.Store
}

func (e *chiTestEnv) seedSession(t *testing.T, status model.SessionStatus) *model.BulkSession {
	t.Helper()
	sess := bulk.NewSession("seeded", model.SelectionConfig{Source: "api"}, []model.Subject{
		{ID: "s1", Name: "Acme Corp"},
	})
	sess.Status = status
	require.NoError(t, e.store.CreateSession(context.Background(), sess))
	return sess
}

func TestSessionRegistry_WaitCoversRunningLoops(t *testing.T) {
	registry := newSessionRegistry()
	registry.add("s1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		registry.remove("s1")
	}()

	assert.True(t, registry.wait(time.Second), "wait returns once the loop deregisters")
	<-done

	// A loop that never checkpoints trips the deadline instead of hanging.
	registry.add("s2")
	assert.False(t, registry.wait(20*time.Millisecond))
	registry.remove("s2")
}

func TestSessionRegistry_PauseAll(t *testing.T) {
	registry := newSessionRegistry()
	t1 := registry.add("s1")
	t2 := registry.add("s2")

	assert.Equal(t, 2, registry.pauseAll())
	assert.True(t, t1.Requested())
	assert.True(t, t2.Requested())

	registry.remove("s1")
	registry.remove("s2")
	assert.True(t, registry.wait(time.Second))
}

func TestSessionRegistry_RemoveUnknownIsNoop(t *testing.T) {
	registry := newSessionRegistry()
	registry.add("s1")
	registry.remove("missing")
	registry.remove("s1")
	registry.remove("s1")

	assert.True(t, registry.wait(time.Second))
}

func TestServe_Health(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_Metrics(t *testing.T) {
	env, router := newTestRouter(t)
	env.seedSession(t, model.SessionStatusReady)
	env.seedSession(t, model.SessionStatusPaused)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.EqualValues(t, 2, snap["sessions_total"])
	assert.EqualValues(t, 1, snap["sessions_paused"])
}

func TestServe_CreateSession(t *testing.T) {
	_, router := newTestRouter(t)

	payload := map[string]any{
		"name": "api batch",
		"subjects": []map[string]string{
			{"id": "s1", "name": "Acme Corp"},
			{"id": "s2", "name": "Globex"},
		},
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var sess model.BulkSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "api batch", sess.Name)
	assert.Equal(t, model.SessionStatusReady, sess.Status)
	assert.Equal(t, 2, sess.Total)
}

func TestServe_CreateSession_InvalidJSON(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestServe_GetSession(t *testing.T) {
	env, router := newTestRouter(t)
	sess := env.seedSession(t, model.SessionStatusReady)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got model.BulkSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, sess.ID, got.ID)
}

func TestServe_GetSession_NotFound(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_PauseWithoutRunningLoop(t *testing.T) {
	env, router := newTestRouter(t)
	sess := env.seedSession(t, model.SessionStatusReady)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/pause", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not running")
}

func TestServe_StartRejectsWrongStatus(t *testing.T) {
	env, router := newTestRouter(t)
	sess := env.seedSession(t, model.SessionStatusPaused)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/start", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not ready")
}

func TestServe_ResumeRejectsWrongStatus(t *testing.T) {
	env, router := newTestRouter(t)
	sess := env.seedSession(t, model.SessionStatusReady)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/resume", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not paused")
}

func TestServe_CancelIdleSession(t *testing.T) {
	env, router := newTestRouter(t)
	sess := env.seedSession(t, model.SessionStatusPaused)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	got, err := env.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, got.Status)
}

func TestServe_ListSessionsFilterByStatus(t *testing.T) {
	env, router := newTestRouter(t)
	env.seedSession(t, model.SessionStatusReady)
	paused := env.seedSession(t, model.SessionStatusPaused)

	req := httptest.NewRequest(http.MethodGet, "/sessions?status=paused", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.BulkSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, paused.ID, got[0].ID)
}
