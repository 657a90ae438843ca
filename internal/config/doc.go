// Package config loads the daemon's startup configuration: the admin API
// listener, the plugin state backend, discovery settings, and per-plugin
// overrides kept in a YAML document next to the plugin directory.
package config
