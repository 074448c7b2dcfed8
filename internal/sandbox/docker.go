package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"judgecore/internal/model"
	"judgecore/pkg/errs"
	"judgecore/pkg/logger"
)

// workDir is where a submission's source and per-case I/O files live inside
// every sandbox container, regardless of profile.
const workDir = "/work"

// Profile names a resource ceiling applied when a sandbox container is
// created. Docker has no notion of per-exec limits, so these bound the
// whole sandbox for its lifetime, which matches spec.md's framing of the
// Sandbox's "resource profile" as a property of the sandbox itself.
type Profile struct {
	MemoryMB int64
	CPUCores float64
	PIDs     int64
}

var defaultProfiles = map[string]Profile{
	"default": {MemoryMB: 512, CPUCores: 1.0, PIDs: 64},
	"strict":  {MemoryMB: 256, CPUCores: 0.5, PIDs: 32},
}

// DockerManager implements Manager atop the Docker Engine API, grounded on
// the container lifecycle akshayaggarwal99-boxed's docker driver uses: a
// long-lived container kept alive with a keep-alive command, exec'd into
// repeatedly, with tar-stream file push/pull.
type DockerManager struct {
	cli     *client.Client
	mu      sync.Mutex
	byName  map[string]string // sandbox name -> container ID
	profile map[string]Profile
}

// NewDockerManager connects to the Docker daemon referenced by the standard
// DOCKER_HOST / environment conventions.
func NewDockerManager() (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errs.Wrap(err, errs.BackendUnavailable)
	}
	return &DockerManager{
		cli:     cli,
		byName:  make(map[string]string),
		profile: defaultProfiles,
	}, nil
}

func (m *DockerManager) containerID(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[name]
	if !ok {
		return "", errs.Newf(errs.StagingIOError, "sandbox %q is not launched", name)
	}
	return id, nil
}

func (m *DockerManager) Launch(ctx context.Context, image, name, profileName string) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return errs.Wrap(err, errs.BackendUnavailable)
	}

	prof, ok := m.profile[profileName]
	if !ok {
		prof = defaultProfiles["default"]
	}

	if _, _, err := m.cli.ImageInspectWithRaw(ctx, image); err != nil {
		if client.IsErrNotFound(err) {
			reader, pullErr := m.cli.ImagePull(ctx, image, types.ImagePullOptions{})
			if pullErr != nil {
				return errs.Wrapf(pullErr, errs.ImageMissing, "pull image %q", image)
			}
			_, _ = io.Copy(io.Discard, reader)
			_ = reader.Close()
		} else {
			return errs.Wrapf(err, errs.BackendUnavailable, "inspect image %q", image)
		}
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(prof.CPUCores * 1e9),
			Memory:   prof.MemoryMB * 1024 * 1024,
			PidsLimit: &prof.PIDs,
		},
	}

	resp, err := m.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      image,
			Cmd:        []string{"tail", "-f", "/dev/null"},
			WorkingDir: workDir,
			Labels:     map[string]string{"xyz.judgecore.sandbox": name},
		},
		hostCfg, nil, nil, "")
	if err != nil {
		return errs.Wrapf(err, errs.SandboxLaunchFailed, "create container for sandbox %q", name)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return errs.Wrapf(err, errs.SandboxLaunchFailed, "start container for sandbox %q", name)
	}

	m.mu.Lock()
	m.byName[name] = resp.ID
	m.mu.Unlock()
	return nil
}

func (m *DockerManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	id, err := m.containerID(name)
	if err != nil {
		return nil, nil, model.ProcessInfo{}, err
	}

	execCfg := types.ExecConfig{
		Cmd:          argv,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   workDir,
	}
	created, err := m.cli.ContainerExecCreate(ctx, id, execCfg)
	if err != nil {
		return nil, nil, model.ProcessInfo{}, errs.Wrapf(err, errs.RunnerInternal, "create exec in sandbox %q", name)
	}

	attached, err := m.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, nil, model.ProcessInfo{}, errs.Wrapf(err, errs.RunnerInternal, "attach exec in sandbox %q", name)
	}
	defer attached.Close()

	if len(stdin) > 0 {
		go func() {
			_, _ = attached.Conn.Write(stdin)
			_ = attached.CloseWrite()
		}()
	} else {
		_ = attached.CloseWrite()
	}

	maxOut := limits.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = 64 * 1024
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if limits.WallMs > 0 {
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(limits.WallMs)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, truncated, demuxErr, timedOut := m.readExecStream(execCtx, attached, created.ID, maxOut)
	wallMs := time.Since(start).Milliseconds()

	if demuxErr != nil && !timedOut {
		logger.Warn(ctx, "exec stream demux error", zap.Error(demuxErr))
	}

	inspectCtx, inspectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	inspect, inspErr := m.cli.ContainerExecInspect(inspectCtx, created.ID)
	inspectCancel()
	exitCode := 0
	if inspErr == nil {
		exitCode = inspect.ExitCode
	}

	info := model.ProcessInfo{
		ExitStatus: exitCode,
		WallMs:     wallMs,
		CPUMs:      wallMs, // Docker exec exposes no per-exec cpu.stat; approximated by wall time.
		MemKB:      0,
		Stderr:     string(stderr),
	}

	switch {
	case timedOut:
		info.Flag = FlagTimeout
		info.ExitStatus = -1
	case exitCode == 137:
		info.Flag = FlagOutOfMemory
	case exitCode > 128 && exitCode < 160:
		info.Flag = FlagSignalKilled
	case exitCode != 0:
		info.Flag = FlagNonZeroExit
	case truncated:
		info.Flag = FlagOutputTruncated
	}

	return stdout, stderr, info, nil
}

// demuxResult carries demux's return values through a channel so
// readExecStream can race it against the per-case deadline.
type demuxResult struct {
	stdout, stderr []byte
	truncated      bool
	err            error
}

// readExecStream reads attached's multiplexed stream until it closes or
// execCtx expires. On expiry it closes attached to unblock the in-flight
// read and best-effort kills the exec'd process inside the container so a
// submission like an infinite loop cannot hang the sandbox past its wall
// timeout (spec: "return control within the timeout plus a small grace").
func (m *DockerManager) readExecStream(execCtx context.Context, attached types.HijackedResponse, execID string, maxOut int64) (stdout, stderr []byte, truncated bool, err error, timedOut bool) {
	resultCh := make(chan demuxResult, 1)
	go func() {
		out, errOut, trunc, e := demux(attached.Reader, maxOut)
		resultCh <- demuxResult{stdout: out, stderr: errOut, truncated: trunc, err: e}
	}()

	select {
	case res := <-resultCh:
		return res.stdout, res.stderr, res.truncated, res.err, false
	case <-execCtx.Done():
	}

	attached.Close()
	m.killExecProcess(execID)

	select {
	case res := <-resultCh:
		return res.stdout, res.stderr, res.truncated, res.err, true
	case <-time.After(2 * time.Second):
		return nil, nil, false, nil, true
	}
}

// killExecProcess best-effort kills the process started by execID, looked
// up via ContainerExecInspect's Pid, using a fresh exec rather than the
// (possibly already-expired) case context.
func (m *DockerManager) killExecProcess(execID string) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	inspect, err := m.cli.ContainerExecInspect(cleanupCtx, execID)
	if err != nil || inspect.Pid == 0 {
		return
	}
	killCfg := types.ExecConfig{Cmd: []string{"kill", "-KILL", strconv.Itoa(inspect.Pid)}}
	killExec, err := m.cli.ContainerExecCreate(cleanupCtx, inspect.ContainerID, killCfg)
	if err != nil {
		return
	}
	_ = m.cli.ContainerExecStart(cleanupCtx, killExec.ID, types.ExecStartCheck{})
}

// demux reads a Docker-multiplexed exec stream (8-byte header per frame:
// stream type, 3 reserved bytes, big-endian uint32 payload size) into
// separate stdout/stderr buffers, capping stdout at maxOut bytes.
func demux(r io.Reader, maxOut int64) (stdout, stderr []byte, truncated bool, err error) {
	var outBuf, errBuf bytes.Buffer
	header := make([]byte, 8)
	for {
		if _, e := io.ReadFull(r, header); e != nil {
			if e == io.EOF || e == io.ErrUnexpectedEOF {
				break
			}
			return outBuf.Bytes(), errBuf.Bytes(), truncated, e
		}
		size := int64(header[4])<<24 | int64(header[5])<<16 | int64(header[6])<<8 | int64(header[7])
		var dst *bytes.Buffer
		switch header[0] {
		case 2:
			dst = &errBuf
		default:
			dst = &outBuf
		}
		if dst == &outBuf && int64(outBuf.Len())+size > maxOut {
			remain := maxOut - int64(outBuf.Len())
			if remain > 0 {
				io.CopyN(dst, r, remain)
			}
			io.CopyN(io.Discard, r, size-remain)
			truncated = true
			continue
		}
		if _, e := io.CopyN(dst, r, size); e != nil {
			return outBuf.Bytes(), errBuf.Bytes(), truncated, e
		}
	}
	return outBuf.Bytes(), errBuf.Bytes(), truncated, nil
}

func (m *DockerManager) Push(ctx context.Context, name, hostPath, sandboxPath string) error {
	id, err := m.containerID(name)
	if err != nil {
		return err
	}
	cleanPath, err := ValidateSandboxPath(sandboxPath)
	if err != nil {
		return err
	}
	absPath := filepath.Join(workDir, cleanPath)

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return errs.Wrapf(err, errs.StagingIOError, "read host file %q", hostPath)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: filepath.Base(absPath), Size: int64(len(data)), Mode: 0644, ModTime: time.Now()}
	if err := tw.WriteHeader(hdr); err != nil {
		return errs.Wrap(err, errs.StagingIOError)
	}
	if _, err := tw.Write(data); err != nil {
		return errs.Wrap(err, errs.StagingIOError)
	}
	if err := tw.Close(); err != nil {
		return errs.Wrap(err, errs.StagingIOError)
	}

	if err := m.cli.CopyToContainer(ctx, id, filepath.Dir(absPath), &buf, types.CopyToContainerOptions{}); err != nil {
		return errs.Wrapf(err, errs.StagingIOError, "copy %q into sandbox %q", sandboxPath, name)
	}
	return nil
}

func (m *DockerManager) Remove(ctx context.Context, name, sandboxPath string) error {
	cleanPath, err := ValidateSandboxPath(sandboxPath)
	if err != nil {
		return err
	}
	_, _, _, err = m.Exec(ctx, name, []string{"rm", "-f", filepath.Join(workDir, cleanPath)}, nil, model.ResourceLimits{WallMs: 2000})
	return err
}

func (m *DockerManager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	id, ok := m.byName[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	timeout := 5
	if err := m.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return errs.Wrap(err, errs.BackendUnavailable)
	}
	return nil
}

func (m *DockerManager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	id, ok := m.byName[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := m.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if !client.IsErrNotFound(err) {
			return errs.Wrap(err, errs.BackendUnavailable)
		}
	}
	m.mu.Lock()
	delete(m.byName, name)
	m.mu.Unlock()
	return nil
}
