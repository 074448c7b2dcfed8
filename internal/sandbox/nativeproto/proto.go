// Package nativeproto is the JSON wire contract between the native sandbox
// backend (internal/sandbox/native_linux.go) and the privileged sandbox-init
// helper binary (cmd/sandbox-init) it execs. Kept separate so both sides
// import the same struct definitions instead of hand-matching JSON tags.
package nativeproto

// InitRequest is encoded to the helper's stdin.
type InitRequest struct {
	Run           RunSpec
	Isolation     IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
}

// RunSpec describes the single process the helper should become.
type RunSpec struct {
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []MountSpec
	Limits     ResourceLimit
}

// MountSpec is one bind mount the helper sets up before chrooting.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ResourceLimit mirrors model.ResourceLimits plus the rlimit-only fields
// the helper additionally needs (stack size, output via RLIMIT_FSIZE, pids).
type ResourceLimit struct {
	CPUTimeMs  int64
	WallTimeMs int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

// IsolationProfile names the rootfs and seccomp profile for a run.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}

// SeccompConfig is the on-disk JSON shape of a seccomp profile file.
type SeccompConfig struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []SeccompRule `json:"syscalls"`
}

// SeccompRule grants or denies a set of syscalls.
type SeccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}
