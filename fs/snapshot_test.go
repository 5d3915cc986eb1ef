package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSnapshot_WalksTreeInOrder(t *testing.T) {
	base := filepath.Join(t.TempDir(), "proj")
	writeTree(t, base, map[string]string{
		"package.json":              `{"name":"proj"}`,
		"src/index.ts":              "export {}",
		"src/functions/hello.yaml":  "summary: hi",
		"node_modules/x/index.js":   "module.exports = 1",
		".vscode/settings.json":     "{}",
		"src/.template/ignored.txt": "no",
		".godspeed":                 "",
	})

	records, err := NewSnapshotter(base).Snapshot(context.Background(), base)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	want := []FileRecord{
		{Name: ".godspeed", Path: "proj/.godspeed", Content: ""},
		{Name: "package.json", Path: "proj/package.json", Content: `{"name":"proj"}`},
		{Name: "hello.yaml", Path: "proj/src/functions/hello.yaml", Content: "summary: hi"},
		{Name: "index.ts", Path: "proj/src/index.ts", Content: "export {}"},
	}

	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d: %+v", len(want), len(records), records)
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	base := filepath.Join(t.TempDir(), "proj")
	writeTree(t, base, map[string]string{
		"a.ts":         "a",
		"b.ts":         "a",
		"src/dup.ts":   "same",
		"lib/dup.ts":   "same",
		"src/x/y/z.ts": "deep",
	})

	s := NewSnapshotter(base)
	first, err := s.Snapshot(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Snapshot(context.Background(), base)
	if err != nil {
		t.Fatal(err)
	}

	count := func(records []FileRecord) map[FileRecord]int {
		m := make(map[FileRecord]int)
		for _, r := range records {
			m[FileRecord{Path: r.Path, Content: r.Content}]++
		}
		return m
	}
	a, b := count(first), count(second)
	if len(first) != len(second) || len(a) != len(b) {
		t.Fatalf("snapshots differ: %+v vs %+v", first, second)
	}
	for k, n := range a {
		if b[k] != n {
			t.Errorf("%+v appears %d times, then %d", k, n, b[k])
		}
	}
}

func TestSnapshot_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	records, err := NewSnapshotter(dir).Snapshot(context.Background(), dir)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if records == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestSnapshot_SubdirectoryPathsRelativeToBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "proj")
	writeTree(t, base, map[string]string{
		"app/src/main.ts": "main",
	})

	root := filepath.Join(base, "app")
	records, err := NewSnapshotter(base).Snapshot(context.Background(), root)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Path != "app/app/src/main.ts" {
		t.Errorf("unexpected path %q", records[0].Path)
	}
}

func TestSnapshot_RootErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	writeTree(t, dir, map[string]string{"file.txt": "x"})

	s := NewSnapshotter(dir)

	if _, err := s.Snapshot(context.Background(), file); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("expected ErrNotADirectory, got %v", err)
	}

	if _, err := s.Snapshot(context.Background(), filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestSnapshot_SkipsUnreadableFiles(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt":      "a",
		"secret.txt": "s",
	})
	if err := os.Chmod(filepath.Join(dir, "secret.txt"), 0000); err != nil {
		t.Fatal(err)
	}

	records, err := NewSnapshotter(dir).Snapshot(context.Background(), dir)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(records) != 1 || records[0].Name != "a.txt" {
		t.Errorf("expected only a.txt, got %+v", records)
	}
}

func TestSnapshot_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"real/file.txt": "content",
	})
	if err := os.Symlink(filepath.Join(dir, "real", "file.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "real"), filepath.Join(dir, "linkdir")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling")); err != nil {
		t.Fatal(err)
	}

	records, err := NewSnapshotter(dir).Snapshot(context.Background(), dir)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	if len(records) != 2 || names[0] != "link.txt" || names[1] != "file.txt" {
		t.Errorf("expected [link.txt file.txt], got %v", names)
	}
	if records[0].Content != "content" {
		t.Errorf("symlinked file content = %q", records[0].Content)
	}
}

func TestSnapshot_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSnapshotter(dir).Snapshot(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
