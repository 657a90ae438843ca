package plugin

// Resolve orders the given metadata so that every plugin appears strictly
// after all plugins named in its Dependencies. Ties between unconstrained
// plugins are broken by input order, which the manager keeps equal to
// registration order, so the result is deterministic.
//
// Dependencies naming plugins absent from the input are ignored here: the
// resolver only orders what exists. Refusing to enable a plugin whose
// dependency is missing or disabled is the manager's runtime check.
//
// The ordering is recomputed from scratch on every call; nothing is cached
// across registry mutations.
func Resolve(metas []Metadata) ([]string, error) {
	const (
		unvisited = iota
		inProgress
		done
	)

	byName := make(map[string]Metadata, len(metas))
	marks := make(map[string]int, len(metas))
	for _, meta := range metas {
		byName[meta.Name] = meta
	}

	order := make([]string, 0, len(metas))
	var stack []string

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		switch marks[name] {
		case done:
			return nil
		case inProgress:
			// An in-progress node reached again is the cycle signal.
			cycle := []string{name}
			for i := len(stack) - 1; i >= 0; i-- {
				cycle = append(cycle, stack[i])
				if stack[i] == name {
					break
				}
			}
			reverse(cycle)
			return &CycleError{Cycle: cycle}
		}
		marks[name] = inProgress
		stack = append(stack, name)
		for _, dep := range byName[name].Dependencies {
			if _, known := byName[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[name] = done
		order = append(order, name)
		return nil
	}

	for _, meta := range metas {
		if marks[meta.Name] == done {
			continue
		}
		if err := visit(meta.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func reverse(names []string) {
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
}
