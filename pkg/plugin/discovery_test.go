package plugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// stubLoader maps artifact file names to plugins or load failures, standing
// in for the shared object loader which needs real compiled artifacts.
type stubLoader struct {
	plugins map[string]Plugin
	errs    map[string]error
}

func (l *stubLoader) Load(path string) (Plugin, error) {
	base := filepath.Base(path)
	if err, ok := l.errs[base]; ok {
		return nil, err
	}
	if p, ok := l.plugins[base]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no stub for %s", base)
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0o644); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
}

func TestDirectorySourceSkipsBrokenArtifacts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "good.so")
	touch(t, dir, "broken.so")
	touch(t, dir, "notes.txt")

	source := &DirectorySource{
		Dir: dir,
		Loader: &stubLoader{
			plugins: map[string]Plugin{"good.so": newTestPlugin("good")},
			errs:    map[string]error{"broken.so": fmt.Errorf("undefined symbol")},
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	found, err := source.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(found))
	}
	if found[0].Metadata().Name != "good" {
		t.Fatalf("unexpected plugin: %s", found[0].Metadata().Name)
	}
}

func TestDirectorySourceSkipsNamelessPlugins(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "anon.so")

	source := &DirectorySource{
		Dir:    dir,
		Loader: &stubLoader{plugins: map[string]Plugin{"anon.so": newTestPlugin("")}},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	found, err := source.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no plugins, got %d", len(found))
	}
}

func TestDirectorySourceMissingDirectory(t *testing.T) {
	source := &DirectorySource{
		Dir:    filepath.Join(t.TempDir(), "does-not-exist"),
		Loader: &stubLoader{},
	}
	if _, err := source.Discover(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestManagerDiscoverWithDirectorySource(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "alpha.so")
	touch(t, dir, "broken.so")

	source := &DirectorySource{
		Dir: dir,
		Loader: &stubLoader{
			plugins: map[string]Plugin{"alpha.so": newTestPlugin("alpha")},
			errs:    map[string]error{"broken.so": fmt.Errorf("bad artifact")},
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	m := NewManager()
	count, err := m.Discover(context.Background(), source)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 registered, got %d", count)
	}
	assertState(t, m, "alpha", StateInitialized)
}
