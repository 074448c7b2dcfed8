//go:build linux

// Native sandbox backend: adapted from the judge's own
// internal/judge/sandbox/engine (namespaces + privileged helper exec) and
// services/judge_service/internal/sandbox/engine's cgroup v2 helpers. Unlike
// the Docker backend, a "sandbox" here has no persistent process of its own
// — Launch only prepares a root directory that every Exec's private mount
// namespace bind-mounts as /work, so staged files (source, compiled
// binaries, resources) survive across execs the same way a Docker
// container's filesystem does.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"judgecore/internal/model"
	"judgecore/internal/sandbox/nativeproto"
	"judgecore/pkg/errs"
	"judgecore/pkg/logger"

	"go.uber.org/zap"
)

// NativeConfig configures the Linux namespace+cgroup backend.
type NativeConfig struct {
	Root             string // host directory holding every sandbox's persistent /work tree
	CgroupRoot       string // e.g. /sys/fs/cgroup/judgecore
	HelperPath       string // path to the sandbox-init binary
	EnableCgroup     bool
	EnableNamespaces bool
}

// NativeManager implements Manager without a container daemon.
type NativeManager struct {
	cfg       NativeConfig
	mu        sync.Mutex
	sandboxes map[string]string // name -> host work dir
	cgroupsM  sync.Mutex
	cgroups   map[string][]string // name -> live cgroup paths, for Stop/Delete
	execSeq   atomic.Int64
}

// NewNativeManager builds a NativeManager; HelperPath defaults to
// "sandbox-init" resolved via PATH.
func NewNativeManager(cfg NativeConfig) *NativeManager {
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	return &NativeManager{
		cfg:       cfg,
		sandboxes: make(map[string]string),
		cgroups:   make(map[string][]string),
	}
}

func (m *NativeManager) Launch(ctx context.Context, image, name, profile string) error {
	dir := filepath.Join(m.cfg.Root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrapf(err, errs.SandboxLaunchFailed, "create sandbox root %q", dir)
	}
	m.mu.Lock()
	m.sandboxes[name] = dir
	m.mu.Unlock()
	return nil
}

func (m *NativeManager) workDir(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir, ok := m.sandboxes[name]
	if !ok {
		return "", errs.Newf(errs.StagingIOError, "sandbox %q is not launched", name)
	}
	return dir, nil
}

func (m *NativeManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	hostWork, err := m.workDir(name)
	if err != nil {
		return nil, nil, model.ProcessInfo{}, err
	}

	runID := fmt.Sprintf("run-%d", m.execSeq.Add(1))
	runDir := filepath.Join(hostWork, ".runs", runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, nil, model.ProcessInfo{}, errs.Wrap(err, errs.StagingIOError)
	}
	defer os.RemoveAll(runDir)

	stdinPath := filepath.Join(runDir, "stdin")
	stdoutPath := filepath.Join(runDir, "stdout")
	stderrPath := filepath.Join(runDir, "stderr")
	if err := os.WriteFile(stdinPath, stdin, 0644); err != nil {
		return nil, nil, model.ProcessInfo{}, errs.Wrap(err, errs.StagingIOError)
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	if m.cfg.EnableCgroup {
		var cgErr error
		cgroupPath, cgroupCleanup, cgErr = createRunCgroup(m.cfg.CgroupRoot, name, runID)
		if cgErr != nil {
			return nil, nil, model.ProcessInfo{}, errs.Wrapf(cgErr, errs.SandboxLaunchFailed, "create cgroup")
		}
		if cgErr := applyCgroupLimits(cgroupPath, limits); cgErr != nil {
			cgroupCleanup()
			return nil, nil, model.ProcessInfo{}, errs.Wrapf(cgErr, errs.SandboxLaunchFailed, "apply cgroup limits")
		}
		m.registerCgroup(name, cgroupPath)
	}
	defer func() {
		if m.cfg.EnableCgroup {
			m.unregisterCgroup(name, cgroupPath)
			cgroupCleanup()
		}
	}()

	initReq := nativeproto.InitRequest{
		Run: nativeproto.RunSpec{
			WorkDir:    "/work",
			Cmd:        argv,
			StdinPath:  "/run/stdin",
			StdoutPath: "/run/stdout",
			StderrPath: "/run/stderr",
			BindMounts: []nativeproto.MountSpec{
				{Source: hostWork, Target: "/work"},
				{Source: runDir, Target: "/run"},
			},
			Limits: nativeproto.ResourceLimit{
				CPUTimeMs: limits.CPUMs,
				OutputMB:  (limits.MaxOutputBytes + (1 << 20) - 1) / (1 << 20),
				PIDs:      64,
			},
		},
		EnableNs: m.cfg.EnableNamespaces,
	}

	stdinPipe, err := jsonToPipe(initReq)
	if err != nil {
		return nil, nil, model.ProcessInfo{}, errs.Wrap(err, errs.RunnerInternal)
	}
	defer stdinPipe.Close()

	cmd := exec.CommandContext(ctx, m.cfg.HelperPath)
	cmd.Stdin = stdinPipe
	cmd.SysProcAttr = buildSysProcAttr(m.cfg.EnableNamespaces)
	var helperErr bytes.Buffer
	cmd.Stderr = &helperErr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, nil, model.ProcessInfo{}, errs.Wrapf(err, errs.RunnerInternal, "start sandbox-init")
	}
	if m.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if limits.WallMs > 0 {
			wallTimer = time.After(time.Duration(limits.WallMs) * time.Millisecond)
		}
		select {
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()
	waitErr := cmd.Wait()
	close(done)
	wallMs := time.Since(start).Milliseconds()

	if waitErr != nil && helperErr.Len() > 0 {
		logger.Warn(ctx, "sandbox-init stderr", zap.String("stderr", helperErr.String()))
	}

	exitCode := exitCodeFrom(waitErr, cmd.ProcessState)
	oom := m.cfg.EnableCgroup && wasOomKilled(cgroupPath)
	cpuMs := cpuTimeMs(cmd.ProcessState)

	maxOut := limits.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = 64 * 1024
	}
	stdoutBytes, truncated := readLimited(stdoutPath, maxOut)
	stderrBytes, _ := readLimited(stderrPath, maxOut)

	info := model.ProcessInfo{
		ExitStatus: exitCode,
		WallMs:     wallMs,
		CPUMs:      cpuMs,
		MemKB:      memoryPeakKB(cgroupPath, cmd.ProcessState),
		Stderr:     string(stderrBytes),
	}
	switch {
	case timedOut.Load():
		info.Flag = FlagTimeout
		info.ExitStatus = -1
	case oom:
		info.Flag = FlagOutOfMemory
	case exitCode > 128 && exitCode < 160:
		info.Flag = FlagSignalKilled
	case exitCode != 0:
		info.Flag = FlagNonZeroExit
	case truncated:
		info.Flag = FlagOutputTruncated
	}
	return stdoutBytes, stderrBytes, info, nil
}

func (m *NativeManager) Push(ctx context.Context, name, hostPath, sandboxPath string) error {
	hostWork, err := m.workDir(name)
	if err != nil {
		return err
	}
	cleanPath, err := ValidateSandboxPath(sandboxPath)
	if err != nil {
		return err
	}
	dst := filepath.Join(hostWork, cleanPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errs.Wrap(err, errs.StagingIOError)
	}
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return errs.Wrapf(err, errs.StagingIOError, "read host file %q", hostPath)
	}
	if err := os.WriteFile(dst, data, 0755); err != nil {
		return errs.Wrapf(err, errs.StagingIOError, "write %q", dst)
	}
	return nil
}

func (m *NativeManager) Remove(ctx context.Context, name, sandboxPath string) error {
	hostWork, err := m.workDir(name)
	if err != nil {
		return err
	}
	cleanPath, err := ValidateSandboxPath(sandboxPath)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(hostWork, cleanPath)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, errs.StagingIOError)
	}
	return nil
}

func (m *NativeManager) Stop(ctx context.Context, name string) error {
	for _, cg := range m.snapshotCgroups(name) {
		if err := killCgroup(cg); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cg), zap.Error(err))
		}
	}
	return nil
}

func (m *NativeManager) Delete(ctx context.Context, name string) error {
	_ = m.Stop(ctx, name)
	m.mu.Lock()
	dir, ok := m.sandboxes[name]
	delete(m.sandboxes, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(err, errs.StagingIOError)
	}
	return nil
}

func (m *NativeManager) registerCgroup(name, path string) {
	m.cgroupsM.Lock()
	defer m.cgroupsM.Unlock()
	m.cgroups[name] = append(m.cgroups[name], path)
}

func (m *NativeManager) unregisterCgroup(name, path string) {
	m.cgroupsM.Lock()
	defer m.cgroupsM.Unlock()
	paths := m.cgroups[name][:0]
	for _, p := range m.cgroups[name] {
		if p != path {
			paths = append(paths, p)
		}
	}
	m.cgroups[name] = paths
}

func (m *NativeManager) snapshotCgroups(name string) []string {
	m.cgroupsM.Lock()
	defer m.cgroupsM.Unlock()
	out := make([]string, len(m.cgroups[name]))
	copy(out, m.cgroups[name])
	return out
}

func jsonToPipe(req nativeproto.InitRequest) (io.ReadCloser, error) {
	r, w := io.Pipe()
	go func() {
		err := json.NewEncoder(w).Encode(req)
		_ = w.CloseWithError(err)
	}()
	return r, nil
}

func buildSysProcAttr(enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
	if !enableNamespaces {
		return attr
	}
	attr.Cloneflags = syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUSER
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	return attr
}

func killProcessGroup(pid int) {
	if pid > 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func exitCodeFrom(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	utime := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	stime := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return (utime + stime).Milliseconds()
}

func readLimited(path string, maxBytes int64) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	info, err := f.Stat()
	truncated := err == nil && info.Size() > maxBytes
	data, _ := io.ReadAll(io.LimitReader(f, maxBytes))
	return data, truncated
}

// --- cgroup v2 helpers, adapted from the judge's own cgroup_linux.go. ---

func createRunCgroup(root, sandboxName, runID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, fmt.Errorf("cgroup root is required")
	}
	cgroupPath := filepath.Join(root, sandboxName, runID)
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, err
	}
	return cgroupPath, func() { os.RemoveAll(cgroupPath) }, nil
}

func applyCgroupLimits(cgroupPath string, limits model.ResourceLimits) error {
	if err := writeCgroupValue(cgroupPath, "pids.max", "max"); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		if err := writeCgroupValue(cgroupPath, "memory.max", strconv.FormatInt(limits.MemoryMB*1024*1024, 10)); err != nil {
			return err
		}
	}
	return writeCgroupValue(cgroupPath, "cpu.max", "max 100000")
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return nil
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			v, _ := strconv.ParseInt(fields[1], 10, 64)
			return v > 0
		}
	}
	return false
}

func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.peak")); err == nil {
			if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil && v > 0 {
				return v / 1024
			}
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func writeCgroupValue(cgroupPath, name, value string) error {
	return os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640)
}
