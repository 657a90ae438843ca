package plugind

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListPlugins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode([]PluginInfo{
			{Name: "greeter", Version: "1.0.0", State: "enabled"},
			{Name: "theme", Version: "0.2.0", State: "initialized", Dependencies: []string{"greeter"}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	plugins, err := client.ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("list plugins: %v", err)
	}
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Name != "greeter" || plugins[0].State != "enabled" {
		t.Fatalf("unexpected first plugin: %+v", plugins[0])
	}
}

func TestEnableHitsActionEndpoint(t *testing.T) {
	enabled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plugins/greeter/enable" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		enabled = true
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Enable(context.Background(), "greeter"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !enabled {
		t.Fatal("enable endpoint was not called")
	}
}

func TestDisableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "plugin theme still depends on greeter", http.StatusConflict)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = client.Disable(context.Background(), "greeter")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Message != "plugin theme still depends on greeter" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestCapabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/capabilities/route" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]Capability{
			{Owner: "greeter", MountPrefix: "/greeter", Detail: json.RawMessage(`{"method":"GET","path":"/hello"}`)},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	caps, err := client.Capabilities(context.Background(), "route")
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if len(caps) != 1 {
		t.Fatalf("expected 1 capability, got %d", len(caps))
	}
	if caps[0].Owner != "greeter" || caps[0].MountPrefix != "/greeter" {
		t.Fatalf("unexpected capability: %+v", caps[0])
	}
}
