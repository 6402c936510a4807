// Package main hosts the sitemigrate CLI entrypoint and command graph.
//
// The same binary runs the long-lived scan loops ("scan export|upload|import"),
// the one-shot workers they spawn ("run"), and the operator commands for
// inspecting and steering records. Configuration resolution, store access and
// logging setup live in the command context so subcommands only wire the
// internal packages together.
package main
