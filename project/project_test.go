package project

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func makeProject(t *testing.T, dir, manifest string, marker bool) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if marker {
		if err := os.WriteFile(filepath.Join(dir, MarkerFile), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidator_IsProject(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name     string
		manifest string
		marker   bool
		want     error
	}{
		{"valid", `{"name":"x"}`, true, nil},
		{"no marker", `{"name":"x"}`, false, ErrMissingMarker},
		{"no manifest", "", true, ErrInvalidManifest},
		{"broken manifest", `{"name":`, true, ErrInvalidManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(root, strings.ReplaceAll(tt.name, " ", "-"))
			makeProject(t, dir, tt.manifest, tt.marker)

			err := Check(dir)
			if tt.want == nil && err != nil {
				t.Errorf("Check() = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
			if got := (Validator{}).IsProject(dir); got != (tt.want == nil) {
				t.Errorf("IsProject() = %v", got)
			}
		})
	}
}

func TestScaffolder_BuiltinSkeleton(t *testing.T) {
	base := t.TempDir()

	if err := NewScaffolder("").Create(context.Background(), base, "shop"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dir := filepath.Join(base, "shop")
	if err := Check(dir); err != nil {
		t.Errorf("scaffolded project is not valid: %v", err)
	}

	manifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(manifest), `"name": "shop"`) {
		t.Errorf("project name not substituted:\n%s", manifest)
	}
	if _, err := os.Stat(filepath.Join(dir, "src", "index.ts")); err != nil {
		t.Errorf("expected src/index.ts: %v", err)
	}
}

func TestScaffolder_DirectoryTemplate(t *testing.T) {
	tmpl := t.TempDir()
	makeProject(t, tmpl, `{"name":"__PROJECT_NAME__"}`, true)
	if err := os.MkdirAll(filepath.Join(tmpl, "node_modules", "dep"), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(tmpl, "node_modules", "dep", "index.js"), []byte("x"), 0644)

	base := t.TempDir()
	if err := NewScaffolder(tmpl).Create(context.Background(), base, "api"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	manifest, err := os.ReadFile(filepath.Join(base, "api", ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(manifest) != `{"name":"api"}` {
		t.Errorf("manifest = %s", manifest)
	}
	if _, err := os.Stat(filepath.Join(base, "api", "node_modules")); !os.IsNotExist(err) {
		t.Error("node_modules should not be copied")
	}
}

func TestScaffolder_RefusesExistingDirectory(t *testing.T) {
	base := t.TempDir()
	existing := filepath.Join(base, "taken")
	if err := os.Mkdir(existing, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(existing, "keep.txt"), []byte("mine"), 0644)

	err := NewScaffolder("").Create(context.Background(), base, "taken")
	if !errors.Is(err, ErrProjectExists) {
		t.Fatalf("expected ErrProjectExists, got %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(existing, "keep.txt"))
	if string(data) != "mine" {
		t.Error("existing directory was modified")
	}
}

func TestScaffolder_InvalidNames(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"", ".", "..", "a/b", "../escape", "/abs"} {
		if err := NewScaffolder("").Create(context.Background(), base, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Create(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestScaffolder_MissingTemplate(t *testing.T) {
	base := t.TempDir()
	err := NewScaffolder(filepath.Join(base, "nope.zip")).Create(context.Background(), base, "x")
	if err == nil {
		t.Fatal("expected error for missing template")
	}
	if _, statErr := os.Stat(filepath.Join(base, "x")); !os.IsNotExist(statErr) {
		t.Error("target directory should not exist after failure")
	}
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "NODE_ENV=development", "HOME=/root"}

	got := MergeEnv(base, map[string]string{"NODE_ENV": "production"})
	want := []string{"PATH=/bin", "HOME=/root", "NODE_ENV=production"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeEnv() = %v, want %v", got, want)
	}

	if got := MergeEnv(base, nil); !reflect.DeepEqual(got, base) {
		t.Errorf("MergeEnv(nil) = %v, want %v", got, base)
	}
}

func TestRunner_ExitCode(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	// "sh run <script>" executes the file named run with <script> as $1
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "run"), []byte(`[ "$1" = ok ] && exit 0; exit 3`), 0644)

	r := NewRunner(sh, 0)
	r.Stdin, r.Stdout, r.Stderr = nil, nil, nil

	if err := r.RunScript(context.Background(), "ok", dir, os.Environ()); err != nil {
		t.Errorf("RunScript(ok) = %v", err)
	}

	err = r.RunScript(context.Background(), "fail", dir, os.Environ())
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", scriptErr.ExitCode)
	}
	if !errors.Is(err, ErrScriptFailed) {
		t.Error("expected errors.Is(err, ErrScriptFailed)")
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-runner"), 0)
	err := r.RunScript(context.Background(), "dev", t.TempDir(), nil)
	if !errors.Is(err, ErrScriptFailed) {
		t.Errorf("expected ErrScriptFailed, got %v", err)
	}
}
