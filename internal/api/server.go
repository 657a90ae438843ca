package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strings"
	"sync"
	"time"

	xerrors "plugind/internal/errors"
	"plugind/pkg/plugin"
)

// Server exposes the admin REST interface and mounts the route
// capabilities contributed by enabled plugins. It is a read-only consumer
// of the manager's capability bundles; mounting is its own business.
type Server struct {
	addr    string
	manager *plugin.Manager

	mu     sync.RWMutex
	routes *http.ServeMux
}

// NewServer builds the admin server and keeps its plugin-route mux in sync
// with the manager's enabled set.
func NewServer(addr string, manager *plugin.Manager) *Server {
	s := &Server{addr: addr, manager: manager}
	s.remountRoutes()

	refresh := plugin.HandlerFunc(func(plugin.Event) error {
		s.remountRoutes()
		return nil
	})
	manager.Events().Subscribe(plugin.EventEnabled, 0, refresh)
	manager.Events().Subscribe(plugin.EventDisabled, 0, refresh)
	manager.Events().Subscribe(plugin.EventUninstalled, 0, refresh)
	return s
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/plugins", s.handlePlugins)
	mux.HandleFunc("/api/v1/plugins/", s.handlePluginAction)
	mux.HandleFunc("/api/v1/capabilities/", s.handleCapabilities)
	mux.HandleFunc("/ext/", s.handlePluginRoutes)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type pluginView struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Author       string   `json:"author,omitempty"`
	Description  string   `json:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	State        string   `json:"state"`
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	states := s.manager.States()
	metas := s.manager.Plugins()
	views := make([]pluginView, 0, len(metas))
	for _, meta := range metas {
		views = append(views, pluginView{
			Name:         meta.Name,
			Version:      meta.Version,
			Author:       meta.Author,
			Description:  meta.Description,
			Dependencies: meta.Dependencies,
			State:        string(states[meta.Name]),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePluginAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/plugins/")
	name, action, _ := strings.Cut(rest, "/")
	if name == "" {
		http.Error(w, "plugin name is required", http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost && action == "enable":
		s.respond(w, s.manager.Enable(r.Context(), name))
	case r.Method == http.MethodPost && action == "disable":
		s.respond(w, s.manager.Disable(r.Context(), name))
	case r.Method == http.MethodDelete && action == "":
		s.respond(w, s.manager.Uninstall(r.Context(), name))
	case r.Method == http.MethodGet && action == "":
		s.handlePluginDetail(w, name)
	default:
		http.Error(w, "unsupported plugin operation", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePluginDetail(w http.ResponseWriter, name string) {
	p, err := s.manager.Plugin(name)
	if err != nil {
		s.respond(w, err)
		return
	}
	state, err := s.manager.State(name)
	if err != nil {
		s.respond(w, err)
		return
	}
	meta := p.Metadata()
	writeJSON(w, http.StatusOK, pluginView{
		Name:         meta.Name,
		Version:      meta.Version,
		Author:       meta.Author,
		Description:  meta.Description,
		Dependencies: meta.Dependencies,
		State:        string(state),
	})
}

type capabilityView struct {
	Owner       string `json:"owner"`
	MountPrefix string `json:"mount_prefix"`
	Detail      any    `json:"detail,omitempty"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}
	kind := plugin.Kind(strings.TrimPrefix(r.URL.Path, "/api/v1/capabilities/"))
	if kind == "" {
		http.Error(w, "capability kind is required", http.StatusBadRequest)
		return
	}
	entries := s.manager.Capabilities(kind)
	views := make([]capabilityView, 0, len(entries))
	for _, entry := range entries {
		view := capabilityView{Owner: entry.Owner, MountPrefix: entry.MountPrefix}
		switch artifact := entry.Artifact.(type) {
		case plugin.Route:
			view.Detail = map[string]string{"method": artifact.Method, "path": artifact.Path}
		case plugin.Component:
			view.Detail = artifact
		default:
			view.Detail = artifact
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// handlePluginRoutes serves the routes enabled plugins contributed,
// mounted under /ext/<prefix>/<path>.
func (s *Server) handlePluginRoutes(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	routes := s.routes
	s.mu.RUnlock()
	routes.ServeHTTP(w, r)
}

// remountRoutes rebuilds the plugin-route mux from the current bundle.
// Called whenever enabled membership changes.
func (s *Server) remountRoutes() {
	mux := http.NewServeMux()
	for _, entry := range s.manager.Capabilities(plugin.KindRoute) {
		route, ok := entry.Artifact.(plugin.Route)
		if !ok || route.Handler == nil {
			continue
		}
		pattern := "/ext" + entry.MountPrefix + route.Path
		if route.Method != "" {
			pattern = route.Method + " " + pattern
		}
		mux.Handle(pattern, route.Handler)
	}
	s.mu.Lock()
	s.routes = mux
	s.mu.Unlock()
}

func (s *Server) respond(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
		return
	}
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case plugin.CodeNotFound:
		status = http.StatusNotFound
	case plugin.CodeDuplicateName, plugin.CodeInvalidTransition, plugin.CodeDependencyInUse:
		status = http.StatusConflict
	case plugin.CodeDependencyNotEnabled:
		status = http.StatusPreconditionFailed
	case xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext rejects requests once the root context is cancelled.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
