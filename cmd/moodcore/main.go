// Mood Core - MQTT connection manager and mood lamp controller
//
// This is the main entry point for the moodcore binary. It keeps one
// connection to an MQTT broker alive, drives a mood lamp over it, and
// exposes both through an HTTP API.
//
// Usage:
//
//	moodcore [--config path] [--env-file path] <command>
//
// Commands:
//
//	serve   - run the connection manager, lamp controller and API
//	send    - publish one lamp command (hex colour, "mood" or "off")
//	watch   - print every connection event and message until interrupted
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancelled on Ctrl+C or SIGTERM; every command shuts down from it.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
