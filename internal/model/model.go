// Package model holds the data types spec.md's §3 DATA MODEL names: the
// shapes that flow between the Problem Registry, Language Runner,
// Submission Orchestrator, and Evaluation Service.
package model

// TestCaseType and TestCase (spec.md §3's entities of the same name) live
// in internal/problem: the problem registry is their only producer, and
// keeping them there avoids a second, unused definition drifting out of
// sync with the one callers actually pass around.

// Submission bundles what a single client request contributes.
type Submission struct {
	Language   string
	Source     []byte
	ProblemKey string
}

// ResourceLimits bounds a single execution. A zero field sets no bound for
// that resource, except MaxOutputBytes, which the sandbox backends default
// to 64 KiB.
type ResourceLimits struct {
	WallMs         int64
	CPUMs          int64
	MemoryMB       int64
	MaxOutputBytes int64
}

// ProcessInfo is the observable outcome of one sandboxed execution. Flag is
// empty on a clean run, or one of the per-case kinds in spec.md §7
// (Timeout, OutOfMemory, SignalKilled, NonZeroExit, OutputTruncated,
// VerifierFault, CompileFailed) when something about the execution itself
// was not simply "wrong answer."
type ProcessInfo struct {
	ExitStatus int    `json:"exitStatus"`
	WallMs     int64  `json:"wallMs"`
	CPUMs      int64  `json:"cpuMs"`
	MemKB      int64  `json:"memKb"`
	Stderr     string `json:"stderr"`
	Flag       string `json:"flag,omitempty"`
}

// CaseResult is one row of a Report. OutputDict mirrors the reference
// solution's output for diagnostic parity; OutputString is
// the ground truth of what the user's program actually produced and is
// what Passed is computed from.
type CaseResult struct {
	TestCaseType string                 `json:"testCaseType"`
	InputString  string                 `json:"inputString"`
	OutputString string                 `json:"outputString"`
	InputDict    map[string]interface{} `json:"inputDict"`
	OutputDict   map[string]interface{} `json:"outputDict"`
	Passed       bool                   `json:"passed"`
	ProcessInfo  ProcessInfo            `json:"processInfo"`
}

// Report is the aggregated result of evaluating one Submission.
type Report struct {
	Success            bool         `json:"success"`
	NumTestCases       int          `json:"numTestCases"`
	NumTestCasesPassed int          `json:"numTestCasesPassed"`
	TestCaseDetails    []CaseResult `json:"testCaseDetails"`
}
