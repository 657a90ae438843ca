package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"plugind/pkg/plugin"
)

type apiPlugin struct {
	meta   plugin.Metadata
	routes []plugin.Route
}

func (p *apiPlugin) Metadata() plugin.Metadata          { return p.meta }
func (p *apiPlugin) OnEnable(*plugin.HookContext) error { return nil }
func (p *apiPlugin) OnDisable(*plugin.HookContext) error {
	return nil
}
func (p *apiPlugin) Routes() []plugin.Route { return p.routes }

func newAPIPlugin(name string, deps ...string) *apiPlugin {
	return &apiPlugin{meta: plugin.Metadata{Name: name, Version: "1.0.0", Dependencies: deps}}
}

func setupManager(t *testing.T, plugins ...*apiPlugin) *plugin.Manager {
	t.Helper()
	m := plugin.NewManager()
	for _, p := range plugins {
		if err := m.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.meta.Name, err)
		}
		if err := m.Initialize(p.meta.Name, nil); err != nil {
			t.Fatalf("initialize %s: %v", p.meta.Name, err)
		}
	}
	return m
}

func TestHandlePluginsList(t *testing.T) {
	m := setupManager(t, newAPIPlugin("greeter"), newAPIPlugin("theme", "greeter"))
	if err := m.Enable(context.Background(), "greeter"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	server := NewServer(":0", m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
	rec := httptest.NewRecorder()
	server.handlePlugins(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var views []pluginView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(views))
	}
	if views[0].Name != "greeter" || views[0].State != "enabled" {
		t.Fatalf("unexpected first view: %+v", views[0])
	}
	if views[1].State != "initialized" {
		t.Fatalf("unexpected second view: %+v", views[1])
	}
}

func TestHandlePluginActionStatusMapping(t *testing.T) {
	t.Run("enable missing dependency", func(t *testing.T) {
		m := setupManager(t, newAPIPlugin("theme", "greeter"))
		server := NewServer(":0", m)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/theme/enable", nil)
		rec := httptest.NewRecorder()
		server.handlePluginAction(rec, req)

		if rec.Code != http.StatusPreconditionFailed {
			t.Fatalf("expected %d, got %d", http.StatusPreconditionFailed, rec.Code)
		}
	})

	t.Run("enable unknown plugin", func(t *testing.T) {
		server := NewServer(":0", setupManager(t))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/ghost/enable", nil)
		rec := httptest.NewRecorder()
		server.handlePluginAction(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("disable plugin in use", func(t *testing.T) {
		m := setupManager(t, newAPIPlugin("greeter"), newAPIPlugin("theme", "greeter"))
		ctx := context.Background()
		if err := m.Enable(ctx, "greeter"); err != nil {
			t.Fatalf("enable greeter: %v", err)
		}
		if err := m.Enable(ctx, "theme"); err != nil {
			t.Fatalf("enable theme: %v", err)
		}
		server := NewServer(":0", m)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/greeter/disable", nil)
		rec := httptest.NewRecorder()
		server.handlePluginAction(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected %d, got %d", http.StatusConflict, rec.Code)
		}
	})

	t.Run("enable succeeds", func(t *testing.T) {
		m := setupManager(t, newAPIPlugin("greeter"))
		server := NewServer(":0", m)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/plugins/greeter/enable", nil)
		rec := httptest.NewRecorder()
		server.handlePluginAction(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		state, err := m.State("greeter")
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if state != plugin.StateEnabled {
			t.Fatalf("expected enabled, got %s", state)
		}
	})

	t.Run("uninstall via delete", func(t *testing.T) {
		m := setupManager(t, newAPIPlugin("greeter"))
		server := NewServer(":0", m)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/plugins/greeter", nil)
		rec := httptest.NewRecorder()
		server.handlePluginAction(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
		}
		if _, err := m.State("greeter"); err == nil {
			t.Fatal("expected plugin removed")
		}
	})
}

func TestHandlePluginDetail(t *testing.T) {
	m := setupManager(t, newAPIPlugin("greeter"))
	server := NewServer(":0", m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins/greeter", nil)
	rec := httptest.NewRecorder()
	server.handlePluginAction(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var view pluginView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Name != "greeter" || view.State != "initialized" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestPluginRoutesFollowEnabledSet(t *testing.T) {
	greeter := newAPIPlugin("greeter")
	greeter.routes = []plugin.Route{{
		Method: http.MethodGet,
		Path:   "/hello",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}}
	m := setupManager(t, greeter)
	server := NewServer(":0", m)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/ext/greeter/hello", nil)
	rec := httptest.NewRecorder()
	server.handlePluginRoutes(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("route must be absent before enable, got %d", rec.Code)
	}

	if err := m.Enable(ctx, "greeter"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	rec = httptest.NewRecorder()
	server.handlePluginRoutes(rec, httptest.NewRequest(http.MethodGet, "/ext/greeter/hello", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected plugin handler to answer, got %d", rec.Code)
	}

	if err := m.Disable(ctx, "greeter"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	rec = httptest.NewRecorder()
	server.handlePluginRoutes(rec, httptest.NewRequest(http.MethodGet, "/ext/greeter/hello", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("route must be withdrawn after disable, got %d", rec.Code)
	}
}

func TestHandleCapabilities(t *testing.T) {
	greeter := newAPIPlugin("greeter")
	greeter.routes = []plugin.Route{{Method: http.MethodGet, Path: "/hello", Handler: http.NotFoundHandler()}}
	m := setupManager(t, greeter)
	if err := m.Enable(context.Background(), "greeter"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	server := NewServer(":0", m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capabilities/route", nil)
	rec := httptest.NewRecorder()
	server.handleCapabilities(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var views []capabilityView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 capability, got %d", len(views))
	}
	if views[0].Owner != "greeter" || views[0].MountPrefix != "/greeter" {
		t.Fatalf("unexpected capability: %+v", views[0])
	}
}
