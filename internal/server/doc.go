// Package server implements the session and room manager at the core of the
// chat relay: connection lifecycle, the per-session login/join/publish state
// machine, room membership bookkeeping, message fan-out, and history replay.
//
// The implementation is organized into specialized files for configuration,
// hub management, rooms, client sessions, routing, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
