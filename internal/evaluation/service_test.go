package evaluation

import (
	"context"
	"sync/atomic"
	"testing"

	"judgecore/internal/model"
	"judgecore/internal/orchestrator"
	"judgecore/internal/problem"
	"judgecore/internal/runner"
	"judgecore/pkg/errs"
)

type fakeManager struct {
	launched  atomic.Bool
	stopped   atomic.Bool
	deleted   atomic.Bool
	launchErr error
}

func (f *fakeManager) Launch(ctx context.Context, image, name, profile string) error {
	if f.launchErr != nil {
		return f.launchErr
	}
	f.launched.Store(true)
	return nil
}

func (f *fakeManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	return []byte("ok"), nil, model.ProcessInfo{ExitStatus: 0}, nil
}

func (f *fakeManager) Push(ctx context.Context, name, hostPath, sandboxPath string) error { return nil }
func (f *fakeManager) Remove(ctx context.Context, name, sandboxPath string) error         { return nil }
func (f *fakeManager) Stop(ctx context.Context, name string) error {
	f.stopped.Store(true)
	return nil
}
func (f *fakeManager) Delete(ctx context.Context, name string) error {
	f.deleted.Store(true)
	return nil
}

func newTestService(t *testing.T, mgr *fakeManager) *Service {
	t.Helper()
	reg := problem.NewRegistry()
	orch := orchestrator.New(orchestrator.Config{
		Manager:      mgr,
		Runner:       runner.New(mgr),
		Registry:     reg,
		SandboxName:  "sbx",
		ResourceRoot: t.TempDir(),
		StageRoot:    t.TempDir(),
	})
	return New(Config{Manager: mgr, Orchestrator: orch, SandboxName: "sbx", Image: "judge:latest", Profile: "default"})
}

func TestStartLaunchesSandbox(t *testing.T) {
	mgr := &fakeManager{}
	svc := newTestService(t, mgr)
	if svc.Ready() {
		t.Error("Ready() = true before Start")
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !mgr.launched.Load() {
		t.Error("Start did not launch the sandbox")
	}
	if !svc.Ready() {
		t.Error("Ready() = false after a successful Start")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := &fakeManager{}
	svc := newTestService(t, mgr)
	svc.Shutdown(context.Background())
	svc.Shutdown(context.Background())
	if !mgr.stopped.Load() || !mgr.deleted.Load() {
		t.Error("Shutdown did not stop and delete the sandbox")
	}
}

func TestEvaluateUnknownProblemReturnsClientError(t *testing.T) {
	mgr := &fakeManager{}
	svc := newTestService(t, mgr)
	_, err := svc.Evaluate(context.Background(), model.Submission{
		Language:   "python3",
		Source:     []byte("x"),
		ProblemKey: "missing",
	})
	if err == nil {
		t.Fatal("Evaluate with unknown problem = nil error")
	}
	if status := errs.As(err).Code.HTTPStatus(); status != 400 {
		t.Errorf("Evaluate with unknown problem status = %d, want 400", status)
	}
}
