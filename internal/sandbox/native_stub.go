//go:build !linux

package sandbox

import (
	"context"

	"judgecore/internal/model"
	"judgecore/pkg/errs"
)

// NativeConfig mirrors the Linux build's configuration so callers can
// construct it unconditionally.
type NativeConfig struct {
	Root             string
	CgroupRoot       string
	HelperPath       string
	EnableCgroup     bool
	EnableNamespaces bool
}

// NativeManager is unavailable outside Linux: namespaces and cgroup v2 are
// Linux-only kernel facilities, so every method reports BackendUnavailable.
type NativeManager struct{}

func NewNativeManager(cfg NativeConfig) *NativeManager {
	return &NativeManager{}
}

func (m *NativeManager) unsupported() error {
	return errs.New(errs.BackendUnavailable).WithMessage("native sandbox backend requires Linux")
}

func (m *NativeManager) Launch(ctx context.Context, image, name, profile string) error {
	return m.unsupported()
}

func (m *NativeManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	return nil, nil, model.ProcessInfo{}, m.unsupported()
}

func (m *NativeManager) Push(ctx context.Context, name, hostPath, sandboxPath string) error {
	return m.unsupported()
}

func (m *NativeManager) Remove(ctx context.Context, name, sandboxPath string) error {
	return m.unsupported()
}

func (m *NativeManager) Stop(ctx context.Context, name string) error {
	return m.unsupported()
}

func (m *NativeManager) Delete(ctx context.Context, name string) error {
	return m.unsupported()
}
