// Package main hosts the buttonrec CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into HTTP calls
// against the daemon's status and control surface, and also provides the
// foreground daemon runner, dependency checks and configuration scaffolding.
// Configuration resolution and API address discovery live in commandContext
// so subcommands can focus on output.
package main
