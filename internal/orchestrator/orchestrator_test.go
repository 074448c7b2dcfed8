package orchestrator

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"judgecore/internal/model"
	"judgecore/internal/problem"
	"judgecore/internal/runner"
	"judgecore/internal/sandbox"
)

type fakeManager struct {
	pushed  []string
	removed []string
	output  string
}

func (f *fakeManager) Launch(ctx context.Context, image, name, profile string) error { return nil }

func (f *fakeManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	return []byte(f.output), nil, model.ProcessInfo{ExitStatus: 0}, nil
}

func (f *fakeManager) Push(ctx context.Context, name, hostPath, sandboxPath string) error {
	f.pushed = append(f.pushed, sandboxPath)
	return nil
}
func (f *fakeManager) Remove(ctx context.Context, name, sandboxPath string) error {
	f.removed = append(f.removed, sandboxPath)
	return nil
}
func (f *fakeManager) Stop(ctx context.Context, name string) error               { return nil }
func (f *fakeManager) Delete(ctx context.Context, name string) error             { return nil }

var _ sandbox.Manager = (*fakeManager)(nil)

type onePlusOnePlugin struct{}

func (onePlusOnePlugin) TestCaseTypes() []problem.TestCaseType {
	return []problem.TestCaseType{{Name: "only", Multiplicity: 2}}
}
func (onePlusOnePlugin) Resources() []string { return nil }
func (onePlusOnePlugin) GenerateInput(t problem.TestCaseType, rng *rand.Rand) (problem.TestCase, error) {
	return problem.TestCase{
		Type:            t,
		Input:           map[string]interface{}{"a": 1, "b": 1},
		ExpectedOutput:  map[string]interface{}{"sum": 2},
		InputSerialized: []interface{}{1, 1},
	}, nil
}
func (onePlusOnePlugin) Verify(tc problem.TestCase, userOutput string) (bool, error) {
	return userOutput == "2", nil
}

type onDemandPlugin struct{}

func (onDemandPlugin) TestCaseTypes() []problem.TestCaseType {
	return []problem.TestCaseType{{Name: "only", Multiplicity: 3}}
}
func (onDemandPlugin) Resources() []string { return nil }
func (onDemandPlugin) GenerateInput(t problem.TestCaseType, rng *rand.Rand) (problem.TestCase, error) {
	return problem.TestCase{
		Type:             t,
		Input:            map[string]interface{}{},
		ExpectedOutput:   map[string]interface{}{"count": 1},
		InputSerialized:  []interface{}{"word"},
		OnDemandResource: "dataset.txt",
	}, nil
}
func (onDemandPlugin) Verify(tc problem.TestCase, userOutput string) (bool, error) {
	return userOutput == "1", nil
}

func newTestOrchestrator(t *testing.T, mgr *fakeManager) *Orchestrator {
	t.Helper()
	reg := problem.NewRegistry()
	reg.Register("one_plus_one", onePlusOnePlugin{})
	return New(Config{
		Manager:      mgr,
		Runner:       runner.New(mgr),
		Registry:     reg,
		SandboxName:  "sbx",
		ResourceRoot: t.TempDir(),
		StageRoot:    t.TempDir(),
	})
}

func TestEvaluateAllCasesPass(t *testing.T) {
	mgr := &fakeManager{output: "2"}
	o := newTestOrchestrator(t, mgr)
	report, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("print(1+1)"),
		ProblemKey: "one-plus-one",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Success {
		t.Errorf("report.Success = false, want true: %+v", report)
	}
	if report.NumTestCases != 2 || report.NumTestCasesPassed != 2 {
		t.Errorf("counts = %d/%d, want 2/2", report.NumTestCasesPassed, report.NumTestCases)
	}
}

func TestEvaluateWrongOutputFails(t *testing.T) {
	mgr := &fakeManager{output: "3"}
	o := newTestOrchestrator(t, mgr)
	report, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("print(1+2)"),
		ProblemKey: "one_plus_one",
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Success {
		t.Error("report.Success = true, want false")
	}
	if report.NumTestCasesPassed != 0 {
		t.Errorf("NumTestCasesPassed = %d, want 0", report.NumTestCasesPassed)
	}
}

func TestEvaluateUnknownProblem(t *testing.T) {
	mgr := &fakeManager{}
	o := newTestOrchestrator(t, mgr)
	_, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("x"),
		ProblemKey: "does-not-exist",
	})
	if err == nil {
		t.Error("Evaluate with unknown problem = nil error, want UnknownProblem")
	}
}

func TestEvaluateUnknownLanguage(t *testing.T) {
	mgr := &fakeManager{}
	o := newTestOrchestrator(t, mgr)
	_, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "brainfuck",
		Source:     []byte("x"),
		ProblemKey: "one_plus_one",
	})
	if err == nil {
		t.Error("Evaluate with unknown language = nil error, want UnknownLanguage")
	}
}

// slowManager sleeps past the submission deadline on its first Exec call so
// every later case must be abandoned.
type slowManager struct {
	fakeManager
	execCalls int
}

func (m *slowManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	m.execCalls++
	time.Sleep(15 * time.Millisecond)
	return []byte(m.output), nil, model.ProcessInfo{ExitStatus: 0}, nil
}

func TestEvaluateAbandonsRemainingCasesPastDeadline(t *testing.T) {
	mgr := &slowManager{fakeManager: fakeManager{output: "2"}}
	reg := problem.NewRegistry()
	reg.Register("one_plus_one", onePlusOnePlugin{})
	o := New(Config{
		Manager:        mgr,
		Runner:         runner.New(mgr),
		Registry:       reg,
		SandboxName:    "sbx",
		ResourceRoot:   t.TempDir(),
		StageRoot:      t.TempDir(),
		Limits:         model.ResourceLimits{WallMs: 1},
		DeadlineMargin: 1 * time.Millisecond,
	})
	report, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("print(1+1)"),
		ProblemKey: "one_plus_one",
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.NumTestCases != 2 {
		t.Fatalf("NumTestCases = %d, want 2", report.NumTestCases)
	}
	if mgr.execCalls >= 2 {
		t.Errorf("execCalls = %d, want the deadline to abandon at least one case", mgr.execCalls)
	}
	foundNotRun := false
	for _, d := range report.TestCaseDetails {
		if d.ProcessInfo.Flag == FlagNotRun {
			foundNotRun = true
		}
	}
	if !foundNotRun {
		t.Errorf("TestCaseDetails %+v did not include a NotRun case", report.TestCaseDetails)
	}
}

func TestEvaluateStagesOnDemandResourceOncePerSubmission(t *testing.T) {
	mgr := &fakeManager{output: "1"}
	reg := problem.NewRegistry()
	reg.Register("word_frequency", onDemandPlugin{})
	o := New(Config{
		Manager:      mgr,
		Runner:       runner.New(mgr),
		Registry:     reg,
		SandboxName:  "sbx",
		ResourceRoot: t.TempDir(),
		StageRoot:    t.TempDir(),
	})
	report, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("print(1)"),
		ProblemKey: "word_frequency",
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.NumTestCases != 3 {
		t.Fatalf("NumTestCases = %d, want 3", report.NumTestCases)
	}
	datasetPushes := 0
	for _, p := range mgr.pushed {
		if p == "dataset.txt" {
			datasetPushes++
		}
	}
	if datasetPushes != 1 {
		t.Errorf("dataset.txt pushed %d times, want exactly 1 (stage-once-reuse)", datasetPushes)
	}
}

// hardFailManager reports a clean-looking stdout alongside a hard-failure
// flag, the way a real backend would for a process that was killed or
// exited non-zero but still left partial output behind.
type hardFailManager struct {
	fakeManager
}

func (m *hardFailManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	return []byte(m.output), nil, model.ProcessInfo{ExitStatus: 1, Flag: sandbox.FlagNonZeroExit}, nil
}

func TestEvaluateHardFailureForcesCaseFailEvenWhenOutputMatches(t *testing.T) {
	mgr := &hardFailManager{fakeManager{output: "2"}}
	o := newTestOrchestrator(t, mgr)
	report, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("print(1+1)"),
		ProblemKey: "one_plus_one",
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Success {
		t.Error("report.Success = true, want false: a NonZeroExit case must not pass on output match alone")
	}
	for _, d := range report.TestCaseDetails {
		if d.Passed {
			t.Errorf("case %+v Passed = true, want false for a NonZeroExit-flagged run", d)
		}
	}
}

// randomPlugin's generated input depends on the supplied *rand.Rand, so it
// surfaces whether two Evaluate calls for the same submission content
// actually share a seed.
type randomPlugin struct{}

func (randomPlugin) TestCaseTypes() []problem.TestCaseType {
	return []problem.TestCaseType{{Name: "only", Multiplicity: 1}}
}
func (randomPlugin) Resources() []string { return nil }
func (randomPlugin) GenerateInput(t problem.TestCaseType, rng *rand.Rand) (problem.TestCase, error) {
	n := rng.Intn(1_000_000)
	return problem.TestCase{
		Type:            t,
		Input:           map[string]interface{}{"n": n},
		ExpectedOutput:  map[string]interface{}{"n": n},
		InputSerialized: []interface{}{n},
	}, nil
}
func (randomPlugin) Verify(tc problem.TestCase, userOutput string) (bool, error) { return true, nil }

func TestEvaluateGeneratesIdenticalCasesForRepeatSubmission(t *testing.T) {
	reg := problem.NewRegistry()
	reg.Register("random", randomPlugin{})
	o := New(Config{
		Manager:      &fakeManager{output: "0"},
		Runner:       runner.New(&fakeManager{}),
		Registry:     reg,
		SandboxName:  "sbx",
		ResourceRoot: t.TempDir(),
		StageRoot:    t.TempDir(),
	})
	sub := model.Submission{Language: "python3", Source: []byte("print(0)"), ProblemKey: "random"}

	// Two calls on the same Orchestrator advance its internal monotonic
	// submission counter (sub-1, sub-2); the generated case must not depend
	// on that counter, only on the submission's own content.
	r1, err := o.Evaluate(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := o.Evaluate(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if r1.TestCaseDetails[0].InputString != r2.TestCaseDetails[0].InputString {
		t.Errorf("repeat evaluation of the same submission generated different cases: %q vs %q",
			r1.TestCaseDetails[0].InputString, r2.TestCaseDetails[0].InputString)
	}
}

func TestEvaluateStagesSourceAndCleansUp(t *testing.T) {
	mgr := &fakeManager{output: "2"}
	o := newTestOrchestrator(t, mgr)
	if _, err := o.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("print(1+1)"),
		ProblemKey: "one_plus_one",
	}); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range mgr.pushed {
		if p == "solution.py" {
			found = true
		}
	}
	if !found {
		t.Errorf("pushed paths %v did not include solution.py", mgr.pushed)
	}
	removed := false
	for _, p := range mgr.removed {
		if p == "solution.py" {
			removed = true
		}
	}
	if !removed {
		t.Errorf("removed paths %v did not include solution.py", mgr.removed)
	}
}
