// Package api exposes the admin REST interface for inspecting and driving
// plugin lifecycles, and serves the HTTP routes enabled plugins contribute.
package api
