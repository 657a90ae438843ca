package plugin

import (
	stdErrors "errors"
	"fmt"
	"strings"

	xerrors "plugind/internal/errors"
)

const (
	CodeDuplicateName        xerrors.Code = "PLUGIN_DUPLICATE_NAME"
	CodeNotFound             xerrors.Code = "PLUGIN_NOT_FOUND"
	CodeInvalidTransition    xerrors.Code = "PLUGIN_INVALID_TRANSITION"
	CodeDependencyNotEnabled xerrors.Code = "PLUGIN_DEPENDENCY_NOT_ENABLED"
	CodeDependencyInUse      xerrors.Code = "PLUGIN_DEPENDENCY_IN_USE"
	CodeCircularDependency   xerrors.Code = "PLUGIN_CIRCULAR_DEPENDENCY"
)

var (
	// ErrDuplicateName signals a registration attempt against a taken name.
	ErrDuplicateName = xerrors.New(CodeDuplicateName, "plugin name already registered")
	// ErrNotFound signals an operation against an unknown plugin name.
	ErrNotFound = xerrors.New(CodeNotFound, "plugin not found")
	// ErrInvalidTransition signals an illegal lifecycle move. The plugin's
	// state is unchanged when this is returned.
	ErrInvalidTransition = xerrors.New(CodeInvalidTransition, "illegal lifecycle transition", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrDependencyNotEnabled signals an enable attempt before a declared
	// dependency was enabled.
	ErrDependencyNotEnabled = xerrors.New(CodeDependencyNotEnabled, "dependency not enabled", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrDependencyInUse signals a disable attempt while enabled plugins
	// still depend on the target.
	ErrDependencyInUse = xerrors.New(CodeDependencyInUse, "enabled plugins depend on this plugin", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrCircularDependency signals that the registered set contains a
	// dependency cycle. A *CycleError matches it via errors.Is.
	ErrCircularDependency = xerrors.New(CodeCircularDependency, "circular plugin dependency", xerrors.WithSeverity(xerrors.SeverityWarning))
)

func init() {
	xerrors.Register(CodeDuplicateName, xerrors.Attributes{Message: "plugin name already registered", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeNotFound, xerrors.Attributes{Message: "plugin not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeInvalidTransition, xerrors.Attributes{Message: "illegal lifecycle transition", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeDependencyNotEnabled, xerrors.Attributes{Message: "dependency not enabled", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeDependencyInUse, xerrors.Attributes{Message: "enabled plugins depend on this plugin", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeCircularDependency, xerrors.Attributes{Message: "circular plugin dependency", Severity: xerrors.SeverityWarning})
}

// CycleError reports a dependency cycle detected by the resolver. Cycle
// holds the member names in traversal order, first repeated last.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	if e == nil || len(e.Cycle) == 0 {
		return "circular plugin dependency"
	}
	return fmt.Sprintf("circular plugin dependency: %s", strings.Join(e.Cycle, " -> "))
}

// Is lets errors.Is(err, ErrCircularDependency) succeed for cycle errors.
func (e *CycleError) Is(target error) bool {
	return stdErrors.Is(ErrCircularDependency, target)
}

func duplicateName(name string) error {
	return xerrors.New(CodeDuplicateName, fmt.Sprintf("plugin %q already registered", name))
}

func notFound(name string) error {
	return xerrors.New(CodeNotFound, fmt.Sprintf("plugin %q not registered", name))
}

func invalidTransition(name string, from, to State) error {
	return xerrors.New(CodeInvalidTransition,
		fmt.Sprintf("plugin %q cannot move from %s to %s", name, from, to),
		xerrors.WithSeverity(xerrors.SeverityWarning))
}

func dependencyNotEnabled(name, dep string) error {
	return xerrors.New(CodeDependencyNotEnabled,
		fmt.Sprintf("plugin %q requires %q to be enabled first", name, dep),
		xerrors.WithSeverity(xerrors.SeverityWarning))
}

func dependencyInUse(name string, dependents []string) error {
	return xerrors.New(CodeDependencyInUse,
		fmt.Sprintf("cannot disable %q: still required by %s", name, strings.Join(dependents, ", ")),
		xerrors.WithSeverity(xerrors.SeverityWarning))
}
