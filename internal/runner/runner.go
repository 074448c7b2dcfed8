// Package runner dispatches a staged submission's source to the
// language-appropriate interpreter or compiler+binary inside a sandbox,
// grounded on judge_service/internal/sandbox/runner's DefaultRunner:
// the same command-template expansion, resource-limit merge/multiplier
// pipeline, and fail-fast compile caching, retargeted at the
// sandbox.Manager capability interface instead of a spec-typed engine.
package runner

import (
	"context"
	"math"
	"sync"

	"judgecore/internal/model"
	"judgecore/internal/sandbox"
	"judgecore/pkg/errs"
)

// FlagCompileFailed marks a CaseResult produced without attempting
// execution because the submission's source failed to compile.
const FlagCompileFailed = "CompileFailed"

// compileState remembers one submission's C compile outcome so every
// subsequent case skips re-compiling (spec.md's fail-fast design choice).
type compileState struct {
	failed bool
	info   model.ProcessInfo
}

// Runner drives a submission's code inside a sandbox once per case.
type Runner struct {
	mgr      sandbox.Manager
	mu       sync.Mutex
	compiled map[string]*compileState // submissionID -> outcome, c only
}

// New builds a Runner backed by the given sandbox Manager.
func New(mgr sandbox.Manager) *Runner {
	return &Runner{mgr: mgr, compiled: make(map[string]*compileState)}
}

// Prepare performs the language's one-time setup (a no-op for
// interpreted languages, a compile for c). If compilation has already
// failed for this submission, it returns the cached failure without
// re-invoking the compiler. A non-nil ProcessInfo return means "do not
// run this case, use this result instead".
func (r *Runner) Prepare(ctx context.Context, sandboxName, submissionID string, lang Language, limits model.ResourceLimits) (*model.ProcessInfo, error) {
	if !lang.CompileEnabled {
		return nil, nil
	}

	r.mu.Lock()
	if state, ok := r.compiled[submissionID]; ok {
		r.mu.Unlock()
		if state.failed {
			info := state.info
			return &info, nil
		}
		return nil, nil
	}
	r.mu.Unlock()

	cmd, err := buildCommand(lang.CompileCmdTpl, lang, nil)
	if err != nil {
		return nil, err
	}
	compileLimits := scaleLimits(limits, lang)
	_, stderr, info, err := r.mgr.Exec(ctx, sandboxName, cmd, nil, compileLimits)
	if err != nil {
		return nil, err
	}

	state := &compileState{}
	if info.ExitStatus != 0 {
		info.Flag = FlagCompileFailed
		info.Stderr = string(stderr)
		state.failed = true
		state.info = info
	}
	r.mu.Lock()
	r.compiled[submissionID] = state
	r.mu.Unlock()

	if state.failed {
		failed := state.info
		return &failed, nil
	}
	return nil, nil
}

// Run executes the prepared submission against one case's rendered input
// and returns the captured stdout alongside process metadata.
func (r *Runner) Run(ctx context.Context, sandboxName string, lang Language, inputSerialized []interface{}, limits model.ResourceLimits) (string, model.ProcessInfo, error) {
	cmd, err := buildCommand(lang.RunCmdTpl, lang, nil)
	if err != nil {
		return "", model.ProcessInfo{}, err
	}
	stdin := renderStdin(inputSerialized)
	runLimits := scaleLimits(limits, lang)

	stdout, stderr, info, err := r.mgr.Exec(ctx, sandboxName, cmd, stdin, runLimits)
	if err != nil {
		return "", model.ProcessInfo{}, err
	}
	info.Stderr = string(stderr)
	return string(stdout), info, nil
}

// ForgetSubmission drops a submission's cached compile outcome; called
// once the submission is Cleaned so the cache does not grow unbounded.
func (r *Runner) ForgetSubmission(submissionID string) {
	r.mu.Lock()
	delete(r.compiled, submissionID)
	r.mu.Unlock()
}

func scaleLimits(limits model.ResourceLimits, lang Language) model.ResourceLimits {
	limits.CPUMs = scaleLimit(limits.CPUMs, lang.TimeMultiplier)
	limits.WallMs = scaleLimit(limits.WallMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

// LookupOrUnknown resolves a language tag, returning UnknownLanguage when
// it is not recognized.
func LookupOrUnknown(tag string) (Language, error) {
	lang, ok := Lookup(tag)
	if !ok {
		return Language{}, errs.Newf(errs.UnknownLanguage, "unsupported language %q", tag)
	}
	return lang, nil
}
