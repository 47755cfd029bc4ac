// Package api provides the canvas HTTP API: node chat, workflow execution,
// graph inspection and conversation persistence.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":5000")
	ListenAddr string

	// Prefix is the path every route is mounted under. Defaults to "/api".
	Prefix string
}
