package plugin

import (
	"errors"
	"strings"
	"testing"
)

func metasOf(pairs ...Metadata) []Metadata { return pairs }

func indexOf(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, n := range order {
		if n == name {
			return i
		}
	}
	t.Fatalf("name %s missing from order %v", name, order)
	return -1
}

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	order, err := Resolve(metasOf(
		Metadata{Name: "web", Dependencies: []string{"auth", "db"}},
		Metadata{Name: "auth", Dependencies: []string{"db"}},
		Metadata{Name: "db"},
	))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 names, got %v", order)
	}
	if indexOf(t, order, "db") > indexOf(t, order, "auth") {
		t.Fatalf("db must precede auth: %v", order)
	}
	if indexOf(t, order, "auth") > indexOf(t, order, "web") {
		t.Fatalf("auth must precede web: %v", order)
	}
}

func TestResolveIsStableForUnconstrainedPlugins(t *testing.T) {
	order, err := Resolve(metasOf(
		Metadata{Name: "c"},
		Metadata{Name: "a"},
		Metadata{Name: "b"},
	))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"c", "a", "b"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected input order %v, got %v", want, order)
		}
	}
}

func TestResolveIgnoresUnknownDependencies(t *testing.T) {
	order, err := Resolve(metasOf(
		Metadata{Name: "a", Dependencies: []string{"missing"}},
	))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	_, err := Resolve(metasOf(
		Metadata{Name: "a", Dependencies: []string{"b"}},
		Metadata{Name: "b", Dependencies: []string{"c"}},
		Metadata{Name: "c", Dependencies: []string{"a"}},
	))
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected circular dependency error, got %v", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	for _, member := range []string{"a", "b", "c"} {
		if !strings.Contains(err.Error(), member) {
			t.Fatalf("cycle error must name %q: %s", member, err)
		}
	}
	if first, last := cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1]; first != last {
		t.Fatalf("cycle must close on itself: %v", cycleErr.Cycle)
	}
}

func TestResolveSelfDependency(t *testing.T) {
	_, err := Resolve(metasOf(
		Metadata{Name: "a", Dependencies: []string{"a"}},
	))
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected circular dependency error, got %v", err)
	}
}
