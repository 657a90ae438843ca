package plugin

// CapabilityEntry is one artifact contributed by an enabled plugin, tagged
// with its owner and the prefix the host should mount it under.
type CapabilityEntry struct {
	Owner       string
	MountPrefix string
	// Artifact is a Route, a translation map, or a Component depending on
	// the entry's kind. Consumers assert the concrete type for their kind.
	Artifact any
}

// collector aggregates capability bundles from enabled plugins. It holds no
// state of its own beyond the last collected bundles; the manager rebuilds
// them whenever enabled membership changes.
type collector struct {
	bundles map[Kind][]CapabilityEntry
}

func newCollector() *collector {
	return &collector{bundles: make(map[Kind][]CapabilityEntry)}
}

// collect rebuilds every bundle from the given enabled plugins. A plugin
// offering no capability of a kind contributes nothing to that bundle, so
// this loop stays fixed no matter how many plugins exist.
func (c *collector) collect(enabled []Plugin, prefixFor func(name string) string) {
	bundles := make(map[Kind][]CapabilityEntry, len(Kinds()))
	for _, p := range enabled {
		name := p.Metadata().Name
		prefix := prefixFor(name)
		if rp, ok := p.(RouteProvider); ok {
			for _, route := range rp.Routes() {
				bundles[KindRoute] = append(bundles[KindRoute], CapabilityEntry{Owner: name, MountPrefix: prefix, Artifact: route})
			}
		}
		if tp, ok := p.(TranslationProvider); ok {
			if bundlesByLocale := tp.Translations(); len(bundlesByLocale) > 0 {
				bundles[KindTranslation] = append(bundles[KindTranslation], CapabilityEntry{Owner: name, MountPrefix: prefix, Artifact: bundlesByLocale})
			}
		}
		if cp, ok := p.(ComponentProvider); ok {
			for _, comp := range cp.Components() {
				bundles[KindComponent] = append(bundles[KindComponent], CapabilityEntry{Owner: name, MountPrefix: prefix, Artifact: comp})
			}
		}
	}
	c.bundles = bundles
}

// get returns the current bundle for a kind. The returned slice is a copy.
func (c *collector) get(kind Kind) []CapabilityEntry {
	entries := c.bundles[kind]
	if len(entries) == 0 {
		return nil
	}
	out := make([]CapabilityEntry, len(entries))
	copy(out, entries)
	return out
}
