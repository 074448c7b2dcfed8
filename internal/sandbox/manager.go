// Package sandbox implements spec.md §4.1's Sandbox Manager: the only
// component allowed to touch the container backend. Two backends are
// provided behind the same Manager interface — a Docker-backed one
// (internal/sandbox/docker.go) that is the default, and a Linux
// namespace+cgroup one (internal/sandbox/native_linux.go) adapted from the
// judge's own sandbox engine for hosts without a Docker daemon.
package sandbox

import (
	"context"

	"judgecore/internal/model"
)

// Manager is the capability interface spec.md §4.1 names: launch, exec,
// push, remove, stop, delete. Every backend's Push and Remove validate the
// sandbox-side path with ValidateSandboxPath before touching the sandbox.
type Manager interface {
	// Launch starts a sandbox named name from image, under profile (a
	// resource-ceiling name the backend resolves). Fails with
	// BackendUnavailable, ImageMissing, or SandboxLaunchFailed.
	Launch(ctx context.Context, image, name, profile string) error

	// Exec runs argv inside sandbox name with stdin piped to it, bounded by
	// limits. The returned ProcessInfo.Flag distinguishes Timeout,
	// OutOfMemory, SignalKilled, NonZeroExit, and OutputTruncated; none of
	// these are returned as err — only backend-level faults are.
	Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) (stdout, stderr []byte, info model.ProcessInfo, err error)

	// Push copies the file at hostPath to sandboxPath inside sandbox name.
	Push(ctx context.Context, name, hostPath, sandboxPath string) error

	// Remove deletes sandboxPath inside sandbox name.
	Remove(ctx context.Context, name, sandboxPath string) error

	// Stop halts sandbox name. Idempotent.
	Stop(ctx context.Context, name string) error

	// Delete removes sandbox name entirely. Idempotent.
	Delete(ctx context.Context, name string) error
}

// Per-case flags surfaced in ProcessInfo.Flag (spec.md §7).
const (
	FlagTimeout         = "Timeout"
	FlagOutOfMemory     = "OutOfMemory"
	FlagSignalKilled    = "SignalKilled"
	FlagNonZeroExit     = "NonZeroExit"
	FlagOutputTruncated = "OutputTruncated"
)
