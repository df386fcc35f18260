package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/scriptd/scriptd/internal/config"
	"github.com/scriptd/scriptd/internal/database"
	"github.com/scriptd/scriptd/internal/engine"
	"github.com/scriptd/scriptd/internal/hosted"
)

type testEnv struct {
	srv  *httptest.Server
	base string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Engine.WorkspaceDir = t.TempDir()
	cfg.Engine.Timeout = 10 * time.Second
	cfg.Engine.CleanupDelay = 100 * time.Millisecond
	cfg.Engine.InstallDependencies = false
	cfg.Hosted.InvokeTimeout = 10 * time.Second

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	manager := engine.NewManager(&cfg.Engine, engine.NewStore(db), engine.WithRuntime("shell", &engine.Runtime{
		Name:      "shell",
		Extension: ".sh",
		Command:   []string{"/bin/sh"},
	}))
	t.Cleanup(manager.Shutdown)

	hostedSvc := hosted.NewService(&cfg.Hosted, db, manager)
	t.Cleanup(hostedSvc.Stop)

	s := New(cfg, db, manager, hostedSvc)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, base: ts.URL}
}

func (e *testEnv) request(t *testing.T, method, path, owner string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, e.base+path, reqBody)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (e *testEnv) waitTerminal(t *testing.T, owner, execID string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := e.request(t, http.MethodGet, "/api/executions/"+execID, owner, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		switch body["status"] {
		case "completed", "error", "stopped":
			return body
		}
		time.Sleep(25 * time.Millisecond)
	}

	t.Fatalf("execution %s never reached a terminal state", execID)
	return nil
}

func TestServer_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_SubmitAndGetExecution(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "echo hello",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	execID, _ := body["executionId"].(string)
	require.NotEmpty(t, execID)

	final := env.waitTerminal(t, "alice", execID)
	require.Equal(t, "completed", final["status"])

	logs, _ := final["logs"].([]any)
	require.NotEmpty(t, logs)
}

func TestServer_SubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "cobol",
		"script":   "DISPLAY 'HI'",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ConcurrentExecutionConflict(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "sleep 10",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	execID := body["executionId"].(string)

	// Second submission for the same owner conflicts.
	resp, conflictBody := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "echo never",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	details, _ := conflictBody["details"].(map[string]any)
	require.Equal(t, execID, details["executionId"])

	// A different owner is unaffected.
	resp, _ = env.request(t, http.MethodPost, "/api/executions", "bob", map[string]any{
		"language": "shell",
		"script":   "echo fine",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/executions/"+execID+"/stop", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StopExecution(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "sleep 30",
	})
	execID := body["executionId"].(string)

	// Wait until it's actually running before stopping.
	require.Eventually(t, func() bool {
		_, status := env.request(t, http.MethodGet, "/api/executions/"+execID, "alice", nil)
		return status["status"] == "running"
	}, 10*time.Second, 25*time.Millisecond)

	resp, stopBody := env.request(t, http.MethodPost, "/api/executions/"+execID+"/stop", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, stopBody["ok"])

	_, final := env.request(t, http.MethodGet, "/api/executions/"+execID, "alice", nil)
	require.Equal(t, "stopped", final["status"])

	// Stopping again conflicts.
	resp, _ = env.request(t, http.MethodPost, "/api/executions/"+execID+"/stop", "alice", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_GetExecutionNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodGet, "/api/executions/does-not-exist", "alice", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ExecutionOwnerIsolation(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "echo private",
	})
	execID := body["executionId"].(string)

	resp, _ := env.request(t, http.MethodGet, "/api/executions/"+execID, "bob", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListExecutions(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "echo one",
	})
	env.waitTerminal(t, "alice", body["executionId"].(string))

	resp, listBody := env.request(t, http.MethodGet, "/api/executions", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), listBody["count"])

	// Other owners see nothing.
	resp, listBody = env.request(t, http.MethodGet, "/api/executions", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(0), listBody["count"])
}

func TestServer_StreamExecution(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "echo first\necho second",
	})
	execID := body["executionId"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	wsURL := "ws" + env.base[len("http"):] + "/api/executions/" + execID + "/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{OwnerHeader: []string{"alice"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var logLines []string
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var msg struct {
			Type   string `json:"type"`
			Status string `json:"status"`
			Entry  *struct {
				Message string `json:"message"`
			} `json:"entry"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))

		if msg.Type == "status" {
			require.Equal(t, "completed", msg.Status)
			break
		}
		require.NotNil(t, msg.Entry)
		logLines = append(logLines, msg.Entry.Message)
	}

	require.Contains(t, logLines, "first")
	require.Contains(t, logLines, "second")
}

func TestServer_ExecutionStats(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/executions", "alice", map[string]any{
		"language": "shell",
		"script":   "sleep 10",
	})
	execID := body["executionId"].(string)

	require.Eventually(t, func() bool {
		resp, _ := env.request(t, http.MethodGet, fmt.Sprintf("/api/executions/%s/stats", execID), "alice", nil)
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	resp, stats := env.request(t, http.MethodGet, fmt.Sprintf("/api/executions/%s/stats", execID), "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Greater(t, stats["pid"].(float64), float64(0))

	env.request(t, http.MethodPost, "/api/executions/"+execID+"/stop", "alice", nil)

	// Once stopped, there is no process to report on.
	require.Eventually(t, func() bool {
		resp, _ := env.request(t, http.MethodGet, fmt.Sprintf("/api/executions/%s/stats", execID), "alice", nil)
		return resp.StatusCode == http.StatusNotFound
	}, 10*time.Second, 50*time.Millisecond)
}

func TestServer_HostedScriptLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/hosted-scripts", "alice", map[string]any{
		"name":     "Greeter",
		"language": "shell",
		"script":   `echo "Hello ${NAME}"`,
		"params":   map[string]string{"NAME": "World"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	endpoint := body["endpoint"].(string)
	require.NotEmpty(t, endpoint)
	require.Contains(t, body["url"].(string), "/api/hosted-scripts/run/"+endpoint)

	script := body["script"].(map[string]any)
	scriptID := script["id"].(string)

	// Run with defaults.
	resp, runBody := env.request(t, http.MethodPost, "/api/hosted-scripts/run/"+endpoint, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, runBody["success"])
	require.Contains(t, runBody["output"].(string), "Hello World")

	// Run with a query override.
	resp, runBody = env.request(t, http.MethodGet, "/api/hosted-scripts/run/"+endpoint+"?NAME=Ada", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, runBody["output"].(string), "Hello Ada")

	// List shows it with a bumped counter.
	resp, listBody := env.request(t, http.MethodGet, "/api/hosted-scripts", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), listBody["count"])
	listed := listBody["scripts"].([]any)[0].(map[string]any)
	require.Equal(t, float64(2), listed["executionCount"])

	// Toggle off, endpoint disappears.
	resp, toggleBody := env.request(t, http.MethodPost, "/api/hosted-scripts/"+scriptID+"/toggle", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, toggleBody["isActive"])

	resp, _ = env.request(t, http.MethodPost, "/api/hosted-scripts/run/"+endpoint, "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Delete.
	resp, deleteBody := env.request(t, http.MethodDelete, "/api/hosted-scripts/"+scriptID, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, deleteBody["ok"])

	resp, _ = env.request(t, http.MethodDelete, "/api/hosted-scripts/"+scriptID, "alice", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_HostedScriptUpdate(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/hosted-scripts", "alice", map[string]any{
		"name":     "Updatable",
		"language": "shell",
		"script":   "echo before",
	})
	script := body["script"].(map[string]any)
	scriptID := script["id"].(string)
	slug := body["endpoint"].(string)

	resp, updated := env.request(t, http.MethodPatch, "/api/hosted-scripts/"+scriptID, "alice", map[string]any{
		"script": "echo after",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "echo after", updated["script"])
	require.Equal(t, slug, updated["endpointSlug"])

	resp, runBody := env.request(t, http.MethodPost, "/api/hosted-scripts/run/"+slug, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, runBody["output"].(string), "after")
}

func TestServer_HostedScriptFailureSurfacesExecutionID(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/hosted-scripts", "alice", map[string]any{
		"name":     "Broken",
		"language": "shell",
		"script":   "echo \"partial ${MODE}\"\nexit 2",
		"params":   map[string]string{"MODE": "default"},
	})
	endpoint := body["endpoint"].(string)

	resp, runBody := env.request(t, http.MethodPost, "/api/hosted-scripts/run/"+endpoint, "", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, false, runBody["success"])
	require.NotEmpty(t, runBody["executionId"])
	require.Contains(t, runBody["output"], "partial default")
	require.Equal(t, map[string]any{"MODE": "default"}, runBody["parametersUsed"])
}

func TestServer_HostedScriptRateLimit(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/hosted-scripts", "alice", map[string]any{
		"name":      "Limited",
		"language":  "shell",
		"script":    "echo ok",
		"rateLimit": map[string]any{"enabled": true, "requestsPerMinute": 2},
	})
	endpoint := body["endpoint"].(string)

	for i := 0; i < 2; i++ {
		resp, _ := env.request(t, http.MethodPost, "/api/hosted-scripts/run/"+endpoint, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ := env.request(t, http.MethodPost, "/api/hosted-scripts/run/"+endpoint, "", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_HostedScriptOwnerIsolation(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.request(t, http.MethodPost, "/api/hosted-scripts", "alice", map[string]any{
		"name":     "Private",
		"language": "shell",
		"script":   "echo secret",
	})
	script := body["script"].(map[string]any)
	scriptID := script["id"].(string)

	resp, _ := env.request(t, http.MethodPost, "/api/hosted-scripts/"+scriptID+"/toggle", "bob", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.request(t, http.MethodDelete, "/api/hosted-scripts/"+scriptID, "bob", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
