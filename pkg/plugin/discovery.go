package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	goplugin "plugin"
	"strings"
)

// Source produces constructed plugin instances. How instances come to exist
// (shared objects, static registration, tests) is the source's business;
// the manager only requires that results satisfy the contract.
type Source interface {
	Discover(ctx context.Context) ([]Plugin, error)
}

// Loader resolves a single plugin artifact into a Plugin implementation.
type Loader interface {
	Load(path string) (Plugin, error)
}

// GoPluginLoader loads shared objects via the standard library plugin
// mechanism and looks up their exported Plugin symbol.
type GoPluginLoader struct{}

// Load opens the shared object and resolves the `Plugin` symbol.
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, err
	}
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	case func() Plugin:
		return p(), nil
	default:
		return nil, errors.New("plugin symbol must implement plugin.Plugin")
	}
}

// DirectorySource discovers plugins among the direct children of a
// directory. One unloadable artifact never aborts discovery of the rest:
// failures are logged and the entry is skipped.
type DirectorySource struct {
	Dir    string
	Loader Loader
	Log    *slog.Logger
}

// NewDirectorySource builds a source over dir using the stdlib loader.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{Dir: dir, Loader: GoPluginLoader{}}
}

// Discover enumerates *.so entries in the directory and loads each one.
func (s *DirectorySource) Discover(ctx context.Context) ([]Plugin, error) {
	if s.Dir == "" {
		return nil, errors.New("plugin directory cannot be empty")
	}
	loader := s.Loader
	if loader == nil {
		loader = GoPluginLoader{}
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var plugins []Plugin
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return plugins, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}
		path := filepath.Join(s.Dir, entry.Name())
		p, err := loader.Load(path)
		if err != nil {
			log.Warn("skipping unloadable plugin", "path", path, "error", err)
			continue
		}
		if p == nil || strings.TrimSpace(p.Metadata().Name) == "" {
			log.Warn("skipping plugin without a name", "path", path)
			continue
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// StaticSource returns a fixed set of already constructed plugins. Hosts
// that compile their plugins in use this instead of directory scanning.
type StaticSource []Plugin

// Discover implements Source.
func (s StaticSource) Discover(context.Context) ([]Plugin, error) {
	return []Plugin(s), nil
}
