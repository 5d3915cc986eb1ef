package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zero8dotdev/godspeed-cli/bridge"
	"github.com/zero8dotdev/godspeed-cli/client"
	"github.com/zero8dotdev/godspeed-cli/fs"
	"github.com/zero8dotdev/godspeed-cli/server"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// newTestBridge serves a bridge over a temp root holding one project "app"
func newTestBridge(t *testing.T) (*server.Server, *httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.txt"), "hello")
	writeFile(t, filepath.Join(root, "app", ".godspeed"), "")
	writeFile(t, filepath.Join(root, "app", "package.json"), `{"name":"app"}`)
	writeFile(t, filepath.Join(root, "app", "src", "index.ts"), "console.log(1)")

	srv, err := server.New(&server.Config{
		Host:           "127.0.0.1",
		Env:            "development",
		Root:           root,
		AllowedOrigins: []string{"http://localhost:3000"},
		ScriptRunner:   "npm",
		StopGrace:      time.Second,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	SetupRoutes(srv.Router(), NewHandlers(srv))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ts.Close()
	})
	return srv, ts, root
}

func dial(t *testing.T, ts *httptest.Server) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, ts.URL, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func expect(t *testing.T, c *client.Client, event string) bridge.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := c.Expect(ctx, event)
	if err != nil {
		t.Fatalf("waiting for %s: %v", event, err)
	}
	return env
}

func decode[T any](t *testing.T, env bridge.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", env.Event, err)
	}
	return v
}

func names(records []fs.FileRecord) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.Name] = true
	}
	return out
}

func TestSocketConnectSendsCwdAndSnapshot(t *testing.T) {
	_, ts, root := newTestBridge(t)
	c := dial(t, ts)

	cwd := expect(t, c, bridge.EventCwd)
	if got := decode[string](t, cwd); got != root {
		t.Errorf("cwd = %q, want %q", got, root)
	}

	list := decode[[]fs.FileRecord](t, expect(t, c, bridge.EventFileList))
	got := names(list)
	for _, want := range []string{"notes.txt", "index.ts", "package.json"} {
		if !got[want] {
			t.Errorf("snapshot missing %s: %v", want, list)
		}
	}
}

func TestSocketFileUpdate(t *testing.T) {
	_, ts, root := newTestBridge(t)
	c := dial(t, ts)
	expect(t, c, bridge.EventFileList)

	if err := c.Emit(bridge.EventFileUpdate, bridge.FileUpdate{Path: "notes.txt", Content: "updated"}); err != nil {
		t.Fatal(err)
	}
	saved := expect(t, c, bridge.EventFileSaved)
	if got := decode[string](t, saved); got != root {
		t.Errorf("file-saved = %q, want %q", got, root)
	}

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "updated" {
		t.Errorf("content = %q, want updated", data)
	}

	// Edits never create files
	if err := c.Emit(bridge.EventFileUpdate, bridge.FileUpdate{Path: "missing.txt", Content: "x"}); err != nil {
		t.Fatal(err)
	}
	failed := decode[bridge.FileUpdateError](t, expect(t, c, bridge.EventFileUpdateError))
	if failed.Path != "missing.txt" {
		t.Errorf("file-update-error path = %q", failed.Path)
	}
	if _, err := os.Stat(filepath.Join(root, "missing.txt")); !os.IsNotExist(err) {
		t.Errorf("missing.txt was created")
	}
}

func TestSocketNavigate(t *testing.T) {
	_, ts, root := newTestBridge(t)
	c := dial(t, ts)
	expect(t, c, bridge.EventFileList)

	if err := c.Emit(bridge.EventGoToProject, "app"); err != nil {
		t.Fatal(err)
	}
	list := decode[[]fs.FileRecord](t, expect(t, c, bridge.EventFileList))
	if names(list)["notes.txt"] {
		t.Errorf("project snapshot includes files outside the project: %v", list)
	}
	cwd := decode[string](t, expect(t, c, bridge.EventCwd))
	if cwd != filepath.Join(root, "app") {
		t.Errorf("cwd = %q", cwd)
	}

	if err := c.Emit(bridge.EventGoToProject, "nope"); err != nil {
		t.Fatal(err)
	}
	msg := decode[string](t, expect(t, c, bridge.EventError))
	if msg != bridge.MsgProjectFolderStructure {
		t.Errorf("error = %q", msg)
	}
}

func TestSocketCommandOutsideProject(t *testing.T) {
	_, ts, root := newTestBridge(t)
	c := dial(t, ts)
	expect(t, c, bridge.EventFileList)

	if err := c.Emit(bridge.EventServe, nil); err != nil {
		t.Fatal(err)
	}
	msg := decode[string](t, expect(t, c, bridge.EventError))
	want := root + " is not a Godspeed Framework project."
	if msg != want {
		t.Errorf("error = %q, want %q", msg, want)
	}
}

func TestSocketRejectsBadFrames(t *testing.T) {
	_, ts, _ := newTestBridge(t)
	c := dial(t, ts)
	expect(t, c, bridge.EventFileList)

	if err := c.Emit("teleport", nil); err != nil {
		t.Fatal(err)
	}
	msg := decode[string](t, expect(t, c, bridge.EventError))
	if !strings.Contains(msg, "teleport") {
		t.Errorf("error = %q", msg)
	}

	if err := c.Emit(bridge.EventGoToProject, 42); err != nil {
		t.Fatal(err)
	}
	msg = decode[string](t, expect(t, c, bridge.EventError))
	if !strings.Contains(msg, "malformed") {
		t.Errorf("error = %q", msg)
	}
}

func TestSocketOrigin(t *testing.T) {
	_, ts, _ := newTestBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, ts.URL, "http://localhost:3000")
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	c.Close()

	if _, err := client.Dial(ctx, ts.URL, "http://evil.example"); err == nil {
		t.Error("foreign origin accepted")
	}
}

func TestSocketDisconnectClosesSession(t *testing.T) {
	srv, ts, _ := newTestBridge(t)
	c := dial(t, ts)
	expect(t, c, bridge.EventFileList)

	if got := srv.SessionCount(); got != 1 {
		t.Fatalf("SessionCount = %d, want 1", got)
	}

	c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.SessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not closed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthAndSnapshotEndpoints(t *testing.T) {
	_, ts, root := newTestBridge(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var health DataResponse[HealthStatus]
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health.Data.Status != "ok" || health.Data.Root != root {
		t.Errorf("health = %+v", health.Data)
	}
	if want := []string{".template", ".vscode", "node_modules"}; !slices.Equal(health.Data.Ignored, want) {
		t.Errorf("ignored = %v, want %v", health.Data.Ignored, want)
	}

	tests := []struct {
		query  string
		status int
	}{
		{"", http.StatusOK},
		{"?dir=app", http.StatusOK},
		{"?dir=nope", http.StatusNotFound},
		{"?dir=notes.txt", http.StatusBadRequest},
		{"?dir=../", http.StatusForbidden},
		{"?dir=/etc", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/snapshot" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestWithinRoot(t *testing.T) {
	tests := []struct {
		dir  string
		want string
		ok   bool
	}{
		{"", "/srv", true},
		{"app", "/srv/app", true},
		{"app/../lib", "/srv/lib", true},
		{"..", "", false},
		{"../other", "", false},
		{"/etc", "", false},
		{"..foo", "/srv/..foo", true},
	}
	for _, tt := range tests {
		got, ok := withinRoot("/srv", tt.dir)
		if ok != tt.ok || got != tt.want {
			t.Errorf("withinRoot(%q) = %q, %v; want %q, %v", tt.dir, got, ok, tt.want, tt.ok)
		}
	}
}
