// Package problem implements the problem-module contract: a registry of
// compiled-in plug-ins, each exposing a test-case type table, a seeded
// generator, a resource manifest, and a verifier. Problem modules are
// registered at init() time (see internal/problem/builtin), mirroring the
// compile-time plug-in registration spec.md §9 calls for in place of the
// reference engine's dynamic importlib loading.
package problem

import (
	"math/rand"
	"strings"
	"sync"

	"judgecore/pkg/errs"
)

// TestCaseType is a named, ordered category of generated inputs.
type TestCaseType struct {
	Name         string
	Multiplicity int
}

// TestCase is one generated case: the structured input/expected-output
// records plus their rendered, ordered-primitive form for the runner.
type TestCase struct {
	Type             TestCaseType
	Input            map[string]interface{}
	ExpectedOutput   map[string]interface{}
	InputSerialized  []interface{}
	// OnDemandResource, if non-empty, names a file under the problem's
	// resources/<key>/ directory that must be staged before this specific
	// case runs (e.g. a dataset file named by the input), distinct from
	// RESOURCES which stage unconditionally during Staged.
	OnDemandResource string
}

// Plugin is the contract a problem module must satisfy.
type Plugin interface {
	// TestCaseTypes returns the ordered, statically-declared type table.
	TestCaseTypes() []TestCaseType
	// Resources lists host-side filenames, relative to resources/<key>/,
	// staged unconditionally before any case runs.
	Resources() []string
	// GenerateInput is a pure function of (type, rng): same seed, same
	// TestCase, for every case of that type.
	GenerateInput(t TestCaseType, rng *rand.Rand) (TestCase, error)
	// Verify decides correctness; the original input record is supplied
	// alongside the user's captured stdout.
	Verify(tc TestCase, userOutput string) (bool, error)
}

// Registry holds compiled-in problem plug-ins keyed by normalized name.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns an empty registry; plug-ins register themselves via
// Register, typically from an init() function.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// global is the process-wide registry builtin plug-ins register into.
var global = NewRegistry()

// Register adds a plug-in under key to the process-wide registry. Intended
// to be called from a builtin plug-in package's init().
func Register(key string, p Plugin) {
	global.Register(key, p)
}

// Global returns the process-wide registry.
func Global() *Registry {
	return global
}

// NormalizeKey replaces '-' with '_', matching spec.md's problem-key
// convention (dashes are equivalent to underscores).
func NormalizeKey(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

// Register adds a plug-in under its normalized key.
func (r *Registry) Register(key string, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[NormalizeKey(key)] = p
}

// Lookup resolves a problem key to its plug-in. An unknown or malformed
// key yields UnknownProblem.
func (r *Registry) Lookup(key string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	normalized := NormalizeKey(key)
	if normalized == "" {
		return nil, errs.New(errs.UnknownProblem).WithMessage("empty problem key")
	}
	p, ok := r.plugins[normalized]
	if !ok {
		return nil, errs.Newf(errs.UnknownProblem, "no problem registered under %q", key)
	}
	return p, nil
}
