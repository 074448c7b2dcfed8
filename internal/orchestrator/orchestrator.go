// Package orchestrator drives a single submission through spec.md's
// Received → Staged → Generating → Executing(i) → Verifying(i) → … →
// Reporting → Cleaned state machine, grounded on the judge's own
// per-submission service (internal/judge/service/judge_service.go):
// the same stage-download/build-cases/run/report/cleanup shape, the
// original engine's unconditional end-of-submission cleanup
// (engine/api.py lines 147-152), and its on-demand dataset-resource
// staging (lines 90-101).
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"judgecore/internal/model"
	"judgecore/internal/problem"
	"judgecore/internal/runner"
	"judgecore/internal/sandbox"
	"judgecore/pkg/errs"
	"judgecore/pkg/logger"

	"go.uber.org/zap"
)

// FlagVerifierFault marks a CaseResult whose verifier raised instead of
// returning a verdict; spec.md requires such exceptions to count as a
// case failure without propagating.
const FlagVerifierFault = "VerifierFault"

// FlagNotRun marks a CaseResult for a case abandoned when the
// submission-wide deadline expired before its turn; spec.md §5 leaves a
// per-submission ceiling unspecified in the reference design but requires
// implementations to add one and return the partial Report on expiry.
const FlagNotRun = "NotRun"

// submissionDeadlineMargin is added on top of the sum of per-case wall
// budgets when deriving a submission's overall deadline.
const submissionDeadlineMargin = 5 * time.Second

// Config wires an Orchestrator's collaborators.
type Config struct {
	Manager      sandbox.Manager
	Runner       *runner.Runner
	Registry     *problem.Registry
	SandboxName  string
	ResourceRoot string // host dir containing resources/<problem_key>/...
	StageRoot    string // host scratch dir for writing source before Push
	Limits       model.ResourceLimits

	// DeadlineMargin is added on top of the sum of per-case wall budgets
	// when deriving a submission's overall deadline. Defaults to
	// submissionDeadlineMargin when zero.
	DeadlineMargin time.Duration
}

// Orchestrator runs submissions one at a time against a single sandbox.
// Concurrency is bounded by the caller (see internal/evaluation): only
// one Evaluate-driven call may be in flight, matching spec.md §5's
// single-writer sandbox model.
type Orchestrator struct {
	mgr            sandbox.Manager
	run            *runner.Runner
	registry       *problem.Registry
	sandboxName    string
	resourceRoot   string
	stageRoot      string
	limits         model.ResourceLimits
	deadlineMargin time.Duration
	seq            atomic.Int64
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	margin := cfg.DeadlineMargin
	if margin <= 0 {
		margin = submissionDeadlineMargin
	}
	return &Orchestrator{
		deadlineMargin: margin,
		mgr:            cfg.Manager,
		run:            cfg.Runner,
		registry:       cfg.Registry,
		sandboxName:    cfg.SandboxName,
		resourceRoot:   cfg.ResourceRoot,
		stageRoot:      cfg.StageRoot,
		limits:         cfg.Limits,
	}
}

// cleanupEntry is one sandbox-side path removed unconditionally once a
// submission finishes, regardless of outcome.
type cleanupEntry struct {
	sandboxPath string
}

// Evaluate runs a submission end to end and returns its Report. Errors
// returned are *errs.Error with a Client- or Server-visible Code; the
// caller (internal/evaluation) is responsible for mapping them to the
// HTTP error taxonomy.
func (o *Orchestrator) Evaluate(ctx context.Context, sub model.Submission) (model.Report, error) {
	submissionID := fmt.Sprintf("sub-%d", o.seq.Add(1))
	ctx = logger.WithSubmissionID(ctx, submissionID)
	defer o.run.ForgetSubmission(submissionID)

	// Received.
	lang, err := runner.LookupOrUnknown(sub.Language)
	if err != nil {
		return model.Report{}, err
	}
	plugin, err := o.registry.Lookup(sub.ProblemKey)
	if err != nil {
		return model.Report{}, err
	}

	var cleanup []cleanupEntry
	cleanupAll := func() {
		for _, entry := range cleanup {
			if rmErr := o.mgr.Remove(ctx, o.sandboxName, entry.sandboxPath); rmErr != nil {
				logger.Warn(ctx, "cleanup remove failed", zap.String("path", entry.sandboxPath), zap.Error(rmErr))
			}
		}
	}
	defer cleanupAll() // Cleaned: unconditional, regardless of success/failure/panic recovery upstream.

	// Staged.
	if err := o.stageSource(ctx, submissionID, lang, sub.Source); err != nil {
		return model.Report{}, err
	}
	cleanup = append(cleanup, cleanupEntry{sandboxPath: lang.SourceFile})
	if lang.CompileEnabled {
		cleanup = append(cleanup, cleanupEntry{sandboxPath: lang.BinaryFile})
	}

	for _, resourceName := range plugin.Resources() {
		sandboxPath, err := o.stageResource(ctx, sub.ProblemKey, resourceName)
		if err != nil {
			return model.Report{}, err
		}
		cleanup = append(cleanup, cleanupEntry{sandboxPath: sandboxPath})
	}

	// Generating.
	cases, err := generateCases(plugin, contentSeed(sub.ProblemKey, sub.Source))
	if err != nil {
		return model.Report{}, err
	}

	// Executing / Verifying.
	if prepFail, err := o.run.Prepare(ctx, o.sandboxName, submissionID, lang, o.limits); err != nil {
		return model.Report{}, err
	} else if prepFail != nil {
		return buildFailedReport(cases, *prepFail), nil
	}

	deadline := time.Now().Add(submissionWallBudget(o.limits, len(cases), o.deadlineMargin))
	execCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// staged tracks on-demand resources already copied into the sandbox for
	// this submission: spec.md §9's "stage-once-reuse per submission" policy
	// means a repeated dataset_filename across cases is pushed only once.
	staged := make(map[string]bool)

	details := make([]model.CaseResult, 0, len(cases))
	passed := 0
	for i, tc := range cases {
		if execCtx.Err() != nil {
			details = append(details, notRunResults(cases[i:])...)
			break
		}

		if tc.OnDemandResource != "" && !staged[tc.OnDemandResource] {
			sandboxPath, err := o.stageResource(ctx, sub.ProblemKey, tc.OnDemandResource)
			if err != nil {
				return model.Report{}, err
			}
			staged[tc.OnDemandResource] = true
			cleanup = append(cleanup, cleanupEntry{sandboxPath: sandboxPath})
		}

		detail := o.executeCase(execCtx, submissionID, lang, plugin, tc)
		if detail.Passed {
			passed++
		}
		details = append(details, detail)
	}

	return model.Report{
		Success:            passed == len(cases),
		NumTestCases:       len(cases),
		NumTestCasesPassed: passed,
		TestCaseDetails:    details,
	}, nil
}

func (o *Orchestrator) stageSource(ctx context.Context, submissionID string, lang runner.Language, source []byte) error {
	hostPath := filepath.Join(o.stageRoot, submissionID, lang.SourceFile)
	if err := writeHostFile(hostPath, source); err != nil {
		return errs.Wrap(err, errs.StagingIOError)
	}
	return o.mgr.Push(ctx, o.sandboxName, hostPath, lang.SourceFile)
}

func (o *Orchestrator) stageResource(ctx context.Context, problemKey, name string) (string, error) {
	hostPath := filepath.Join(o.resourceRoot, problem.NormalizeKey(problemKey), name)
	if err := o.mgr.Push(ctx, o.sandboxName, hostPath, name); err != nil {
		return "", err
	}
	return name, nil
}

func generateCases(p problem.Plugin, seedKey string) ([]problem.TestCase, error) {
	rng := seededRNG(seedKey)
	var cases []problem.TestCase
	for _, t := range p.TestCaseTypes() {
		for i := 0; i < t.Multiplicity; i++ {
			tc, err := p.GenerateInput(t, rng)
			if err != nil {
				return nil, errs.Wrapf(err, errs.RunnerInternal, "generate input for %s", t.Name)
			}
			cases = append(cases, tc)
		}
	}
	return cases, nil
}

// contentSeed derives a generator seed key from the submission's stable
// content (problem key + source bytes) rather than any per-process or
// per-call counter, so two evaluations of the *same* submission always
// generate byte-identical cases, per spec.md §4.2's reproducibility
// requirement. submissionID (a monotonic counter) identifies a particular
// run for logging/staging and must not leak into the seed.
func contentSeed(problemKey string, source []byte) string {
	h := sha256.New()
	h.Write([]byte(problemKey))
	h.Write([]byte{0})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// seededRNG derives a deterministic PRNG from a stable seed key so repeat
// evaluations of the same input generate byte-identical cases.
func seededRNG(seedKey string) *rand.Rand {
	var seed int64
	for _, c := range seedKey {
		seed = seed*31 + int64(c)
	}
	return rand.New(rand.NewSource(seed))
}

// hardFailureFlags are ProcessInfo.Flag values spec.md §4.4's tie-break
// treats as an unconditional case failure ("Runner non-zero exit → case
// fails"): the runner never reached a clean, complete exit, so any
// output captured is partial or incidental and must not be handed to the
// verifier as if it were the program's real answer. OutputTruncated is
// deliberately not included here — spec.md §4.3 treats a truncated but
// otherwise clean (exit 0) run as still verifiable against its captured
// prefix.
var hardFailureFlags = map[string]bool{
	sandbox.FlagTimeout:      true,
	sandbox.FlagOutOfMemory:  true,
	sandbox.FlagSignalKilled: true,
	sandbox.FlagNonZeroExit:  true,
	runner.FlagCompileFailed: true,
}

func (o *Orchestrator) executeCase(ctx context.Context, submissionID string, lang runner.Language, p problem.Plugin, tc problem.TestCase) model.CaseResult {
	stdout, info, err := o.run.Run(ctx, o.sandboxName, lang, tc.InputSerialized, o.limits)
	if err != nil {
		logger.Error(ctx, "runner exec failed", zap.Error(err))
		info.Flag = string(errs.CodeOf(err))
	}

	passed := false
	if err == nil && !hardFailureFlags[info.Flag] {
		var verifyErr error
		passed, verifyErr = safeVerify(p, tc, stdout)
		if verifyErr != nil {
			logger.Warn(ctx, "verifier fault", zap.Error(verifyErr))
			info.Flag = FlagVerifierFault
			passed = false
		}
	}

	return model.CaseResult{
		TestCaseType: tc.Type.Name,
		InputString:  renderInputString(tc.InputSerialized),
		OutputString: stdout,
		InputDict:    tc.Input,
		OutputDict:   tc.ExpectedOutput,
		Passed:       passed,
		ProcessInfo:  info,
	}
}

// safeVerify isolates a verifier panic (spec.md: "exceptions count as a
// case failure but are not propagated") into an error return.
func safeVerify(p problem.Plugin, tc problem.TestCase, userOutput string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("verifier panic: %v", r)
		}
	}()
	return p.Verify(tc, userOutput)
}

// submissionWallBudget derives the submission-wide deadline spec.md §5
// requires in place of the reference design's unbounded one: the sum of
// every case's wall budget plus a fixed margin for staging and scheduling
// overhead.
func submissionWallBudget(limits model.ResourceLimits, numCases int, margin time.Duration) time.Duration {
	perCase := time.Duration(limits.WallMs) * time.Millisecond
	if perCase <= 0 {
		perCase = 10 * time.Second
	}
	return perCase*time.Duration(numCases) + margin
}

// notRunResults marks cases abandoned after the submission deadline expired.
func notRunResults(cases []problem.TestCase) []model.CaseResult {
	out := make([]model.CaseResult, len(cases))
	for i, tc := range cases {
		out[i] = model.CaseResult{
			TestCaseType: tc.Type.Name,
			InputString:  renderInputString(tc.InputSerialized),
			InputDict:    tc.Input,
			OutputDict:   tc.ExpectedOutput,
			Passed:       false,
			ProcessInfo:  model.ProcessInfo{Flag: FlagNotRun},
		}
	}
	return out
}

func buildFailedReport(cases []problem.TestCase, info model.ProcessInfo) model.Report {
	details := make([]model.CaseResult, len(cases))
	for i, tc := range cases {
		details[i] = model.CaseResult{
			TestCaseType: tc.Type.Name,
			InputString:  renderInputString(tc.InputSerialized),
			InputDict:    tc.Input,
			OutputDict:   tc.ExpectedOutput,
			Passed:       false,
			ProcessInfo:  info,
		}
	}
	return model.Report{
		Success:            false,
		NumTestCases:       len(cases),
		NumTestCasesPassed: 0,
		TestCaseDetails:    details,
	}
}

func renderInputString(values []interface{}) string {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Sprint(values)
	}
	return string(data)
}

func writeHostFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
