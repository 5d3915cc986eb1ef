package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zero8dotdev/godspeed-cli/bridge"
	"github.com/zero8dotdev/godspeed-cli/supervisor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := New(&Config{
		Host:           "127.0.0.1",
		Env:            "development",
		Root:           t.TempDir(),
		AllowedOrigins: []string{"http://localhost:3000"},
		ScriptRunner:   "npm",
		StopGrace:      time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func TestNewRejectsBadRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	for _, root := range []string{filepath.Join(t.TempDir(), "missing"), file} {
		if _, err := New(&Config{Root: root}); err == nil {
			t.Errorf("New(%q) succeeded", root)
		}
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origins []string
		want    []string
	}{
		{[]string{"http://localhost:3000"}, []string{"localhost:3000"}},
		{[]string{"https://editor.example", "not a url"}, []string{"editor.example"}},
		{[]string{"http://a", "*"}, []string{"*"}},
		{nil, nil},
	}
	for _, tt := range tests {
		cfg := &Config{AllowedOrigins: tt.origins}
		if got := cfg.OriginPatterns(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("OriginPatterns(%v) = %v, want %v", tt.origins, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		origin string
		method string
		status int
		allow  string
	}{
		{"http://localhost:3000", http.MethodGet, http.StatusOK, "http://localhost:3000"},
		{"http://evil.example", http.MethodGet, http.StatusOK, ""},
		{"http://localhost:3000", http.MethodOptions, http.StatusNoContent, "http://localhost:3000"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/ping", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		if w.Code != tt.status {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.origin, w.Code, tt.status)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.allow {
			t.Errorf("%s %s: allow origin = %q, want %q", tt.method, tt.origin, got, tt.allow)
		}
	}
}

func TestSessionRegistry(t *testing.T) {
	srv := newTestServer(t)
	discard := bridge.EmitterFunc(func(string, any) {})

	a := srv.OpenSession(discard)
	b := srv.OpenSession(discard)
	if a.ID() == b.ID() {
		t.Fatal("sessions share an id")
	}
	if got := srv.SessionCount(); got != 2 {
		t.Fatalf("SessionCount = %d, want 2", got)
	}

	srv.CloseSession(a)
	if got := srv.SessionCount(); got != 1 {
		t.Errorf("SessionCount = %d, want 1", got)
	}
	if a.State() != bridge.Disconnected {
		t.Error("closed session still connected")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.State() != bridge.Disconnected || srv.SessionCount() != 0 {
		t.Error("Shutdown left sessions open")
	}
	if srv.ShutdownContext().Err() == nil {
		t.Error("shutdown context not cancelled")
	}
}

func TestDevProcessUsesProjectWatchConfig(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()
	override := "watch:\n  script: ./src/main.ts\n"
	if err := os.WriteFile(filepath.Join(dir, supervisor.ConfigFile), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	dev, err := srv.Deps().DevProcess(dir)
	if err != nil {
		t.Fatalf("DevProcess: %v", err)
	}
	if dev.Dir() != dir {
		t.Errorf("Dir = %q, want %q", dev.Dir(), dir)
	}

	if err := os.WriteFile(filepath.Join(dir, supervisor.ConfigFile), []byte("watch: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Deps().DevProcess(dir); err == nil {
		t.Error("invalid watch config accepted")
	}
}

func TestListenPicksFreePort(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	if srv.Addr() == "127.0.0.1:0" {
		t.Errorf("Addr = %q, want the bound port", srv.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Start did not return after Shutdown")
	}
}
