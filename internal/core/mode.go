// Package core is the orchestration layer.  It composes transports,
// executors and the terminal session into complete operational modes
// and provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability / terminal  →  session  →  core  →  cmd (CLI)
//
// Build is the single dispatch point between the CLI and the modes.
package core

import "context"

// Mode represents a complete operational mode of webterm (connect or
// listen).  Each mode owns its full lifecycle from connection
// establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
