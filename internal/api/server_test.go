package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkmacro/internal/engine"
	"hkmacro/internal/executor"
	"hkmacro/internal/history"
	"hkmacro/internal/macro"
	"hkmacro/internal/protocol"
	"hkmacro/internal/store"
)

const testToken = "secret"

type testEnv struct {
	eng  *engine.Engine
	srv  *Server
	http *httptest.Server
}

func newTestEnv(t *testing.T, hist *history.Repository) *testEnv {
	t.Helper()
	return newTestEnvWithToken(t, hist, testToken)
}

func newTestEnvWithToken(t *testing.T, hist *history.Repository, token string) *testEnv {
	t.Helper()
	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	srv := NewServer(eng, hist, token, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return &testEnv{eng: eng, srv: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func delayRecord(name string, secs float64) store.Record {
	return store.Record{
		Name:        name,
		RepeatCount: 1,
		Actions: []store.ActionRecord{
			{ActionType: "delay", Parameters: map[string]any{"duration": secs}},
		},
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/api/macros")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/macros", nil).StatusCode)

	resp, err = http.Get(env.http.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "the dashboard page carries no data")

	assert.Equal(t, "http://127.0.0.1:9000/?token=secret", env.srv.DashboardURL(9000))
}

func TestMacroCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := delayRecord("Wait", 0.1)
	rec.Hotkey = "ctrl+alt+w"
	resp := env.do(t, http.MethodPost, "/api/macros", rec)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[macroView](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Wait", created.Name)
	assert.Equal(t, "CTRL+ALT+W", created.Hotkey)

	list := decode[[]summaryView](t, env.do(t, http.MethodGet, "/api/macros", nil))
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ActionCount)

	rec.Name = "Wait longer"
	rec.Actions[0].Parameters["duration"] = 2
	rec.Hotkey = ""
	resp = env.do(t, http.MethodPut, "/api/macros/"+created.ID, rec)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[macroView](t, resp)
	assert.Equal(t, "Wait longer", updated.Name)
	assert.Empty(t, updated.Hotkey)
	assert.Equal(t, created.CreatedDate, updated.CreatedDate)

	resp = env.do(t, http.MethodPost, "/api/macros/"+created.ID+"/clone", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	clone := decode[macroView](t, resp)
	assert.Equal(t, "Wait longer (Copy)", clone.Name)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/macros/"+created.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/macros/"+created.ID, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/macros/"+created.ID, nil).StatusCode)
}

func TestCreateRejectsInvalidMacro(t *testing.T) {
	env := newTestEnv(t, nil)

	bad := store.Record{Name: "bad", Actions: []store.ActionRecord{{ActionType: "teleport"}}}
	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/macros", bad).StatusCode)

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/macros", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	id, err := env.eng.AddMacro(mustMacro(t, delayRecord("Long", 5)))
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/api/macros/"+id+"/execute", protocol.ExecutePayload{Variables: map[string]any{"n": 1}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decode[executeResponse](t, resp)
	assert.NotEmpty(t, started.RunID)

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/macros/"+id+"/execute", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/macros/missing/execute", nil).StatusCode)

	st := decode[protocol.StatusPayload](t, env.do(t, http.MethodGet, "/api/status", nil))
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, started.RunID, st.RunID)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/pause", nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/resume", nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/stop", nil).StatusCode)

	require.Eventually(t, func() bool {
		return env.eng.Statistics().Cancelled == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/stop", nil).StatusCode)

	stats := decode[engine.Statistics](t, env.do(t, http.MethodGet, "/api/stats", nil))
	assert.Equal(t, 1, stats.TotalExecuted)
}

func TestExecuteDisabledMacro(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := delayRecord("Off", 0)
	off := false
	rec.Enabled = &off
	id, err := env.eng.AddMacro(mustMacro(t, rec))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/macros/"+id+"/execute", nil).StatusCode)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/history", nil).StatusCode)

	repo, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	now := time.Now().UTC()
	for i, id := range []string{"a", "b", "a"} {
		require.NoError(t, repo.Record(context.Background(), history.Entry{
			ID:         string(rune('1' + i)),
			MacroID:    id,
			MacroName:  id,
			Status:     executor.Completed.String(),
			StartedAt:  now.Add(time.Duration(i) * time.Second),
			FinishedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	env = newTestEnv(t, repo)
	all := decode[[]history.Entry](t, env.do(t, http.MethodGet, "/api/history", nil))
	assert.Len(t, all, 3)

	forA := decode[[]history.Entry](t, env.do(t, http.MethodGet, "/api/history?macro=a&limit=1", nil))
	require.Len(t, forA, 1)
	assert.Equal(t, "3", forA[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/history?limit=x", nil).StatusCode)
}

func TestWebSocketExecuteStreamsEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	id, err := env.eng.AddMacro(mustMacro(t, delayRecord("Quick", 0.01)))
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	_, _, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err, "dial without a token must be rejected")

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+testToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait until the hub has registered the client before triggering events
	ping, err := protocol.New(protocol.TypePing, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ping))
	var pong protocol.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, protocol.TypePing, pong.Type)

	exec, err := protocol.New(protocol.TypeExecute, protocol.ExecutePayload{MacroID: id})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(exec))

	var seen []string
	for {
		var msg protocol.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != protocol.TypeEvent {
			continue
		}
		var ev protocol.EventPayload
		require.NoError(t, msg.Decode(&ev))
		seen = append(seen, ev.Type)
		if ev.Type == string(executor.EventFinished) {
			assert.Equal(t, "completed", ev.Status)
			break
		}
	}
	assert.Equal(t, string(executor.EventStarted), seen[0])

	bad, err := protocol.New(protocol.TypeExecute, protocol.ExecutePayload{MacroID: "missing"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(bad))
	for {
		var msg protocol.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != protocol.TypeError {
			continue
		}
		var p protocol.ErrorPayload
		require.NoError(t, msg.Decode(&p))
		assert.Equal(t, protocol.TypeExecute, p.Request)
		assert.Contains(t, p.Message, "not found")
		break
	}
}

func TestForeignOriginRejected(t *testing.T) {
	env := newTestEnvWithToken(t, nil, "")
	id, err := env.eng.AddMacro(mustMacro(t, delayRecord("Quick", 0.01)))
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// another local port is a different site
	_, _, err = websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://127.0.0.1:1"}})
	assert.Error(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {env.http.URL}})
	require.NoError(t, err)
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()

	post := func(origin, contentType string) int {
		req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/macros/"+id+"/execute", nil)
		require.NoError(t, err)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusForbidden, post("https://evil.example", "application/json"))
	assert.Equal(t, http.StatusUnsupportedMediaType, post("", "application/x-www-form-urlencoded"))
	assert.Equal(t, http.StatusUnsupportedMediaType, post("", ""))
	assert.Equal(t, http.StatusAccepted, post(env.http.URL, "application/json"))
}

func mustMacro(t *testing.T, rec store.Record) macro.Macro {
	t.Helper()
	m, err := store.FromRecord("id-"+rec.Name, rec)
	require.NoError(t, err)
	return *m
}
