// Package evaluation is the process-wide façade spec.md §4.5 names: it
// owns one Sandbox for the judge process's lifetime and exposes the
// single Evaluate entry point the HTTP layer calls, serializing every
// in-flight submission behind one mutex (§5's single-writer sandbox
// model). Grounded on cmd/judge-service/main.go's startup/shutdown shape,
// retargeted from a Kafka-consumer service onto a synchronous façade.
package evaluation

import (
	"context"
	"sync"
	"sync/atomic"

	"judgecore/internal/model"
	"judgecore/internal/orchestrator"
	"judgecore/internal/sandbox"
	"judgecore/pkg/errs"
	"judgecore/pkg/logger"

	"go.uber.org/zap"
)

// Config configures the Service's sandbox and its launch parameters.
type Config struct {
	Manager      sandbox.Manager
	Orchestrator *orchestrator.Orchestrator
	SandboxName  string
	Image        string
	Profile      string
}

// Service owns the single Sandbox bound to this process.
type Service struct {
	mgr         sandbox.Manager
	orch        *orchestrator.Orchestrator
	sandboxName string
	image       string
	profile     string

	mu      sync.Mutex // serializes Evaluate calls: single-writer sandbox
	deleted bool       // guards idempotent Shutdown
	shutMu  sync.Mutex

	ready atomic.Bool // set once Start's Launch succeeds
}

// New builds a Service without launching its sandbox; call Start before
// serving traffic.
func New(cfg Config) *Service {
	return &Service{
		mgr:         cfg.Manager,
		orch:        cfg.Orchestrator,
		sandboxName: cfg.SandboxName,
		image:       cfg.Image,
		profile:     cfg.Profile,
	}
}

// Start launches the process sandbox. The HTTP surface must not accept
// traffic until this returns successfully (spec.md: "block readiness of
// the HTTP surface until launch succeeds").
func (s *Service) Start(ctx context.Context) error {
	if err := s.mgr.Launch(ctx, s.image, s.sandboxName, s.profile); err != nil {
		return err
	}
	s.ready.Store(true)
	return nil
}

// Ready reports whether the process-bound sandbox has launched
// successfully; GET /healthz reflects this.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Shutdown stops and deletes the process sandbox. Idempotent, and must
// not depend on the logging subsystem being live — every log call here is
// best-effort and never gates the teardown itself.
func (s *Service) Shutdown(ctx context.Context) {
	s.shutMu.Lock()
	defer s.shutMu.Unlock()
	if s.deleted {
		return
	}
	if err := s.mgr.Stop(ctx, s.sandboxName); err != nil {
		safeLog(ctx, "sandbox stop failed", err)
	}
	if err := s.mgr.Delete(ctx, s.sandboxName); err != nil {
		safeLog(ctx, "sandbox delete failed", err)
	}
	s.deleted = true
	s.ready.Store(false)
}

func safeLog(ctx context.Context, msg string, err error) {
	defer func() { _ = recover() }()
	logger.Warn(ctx, msg, zap.Error(err))
}

// Evaluate runs one submission to completion. It returns a Report on
// success; on failure the returned error is an *errs.Error whose Code
// determines Client- vs Server-visibility (errs.Code.HTTPStatus()).
func (s *Service) Evaluate(ctx context.Context, sub model.Submission) (model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.orch.Evaluate(ctx, sub)
	if err != nil {
		if errs.As(err).Code.HTTPStatus() >= 500 {
			logger.Error(ctx, "submission evaluation failed", zap.Error(err))
		}
		return model.Report{}, err
	}
	return report, nil
}
