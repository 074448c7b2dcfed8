package runner

import (
	"context"
	"testing"

	"judgecore/internal/model"
)

type fakeManager struct {
	execCalls int
	lastStdin []byte
	execFn    func(argv []string) ([]byte, []byte, model.ProcessInfo, error)
}

func (f *fakeManager) Launch(ctx context.Context, image, name, profile string) error { return nil }

func (f *fakeManager) Exec(ctx context.Context, name string, argv []string, stdin []byte, limits model.ResourceLimits) ([]byte, []byte, model.ProcessInfo, error) {
	f.execCalls++
	f.lastStdin = stdin
	return f.execFn(argv)
}

func (f *fakeManager) Push(ctx context.Context, name, hostPath, sandboxPath string) error {
	return nil
}
func (f *fakeManager) Remove(ctx context.Context, name, sandboxPath string) error { return nil }
func (f *fakeManager) Stop(ctx context.Context, name string) error               { return nil }
func (f *fakeManager) Delete(ctx context.Context, name string) error             { return nil }

func TestPrepareSkipsCompileForInterpretedLanguages(t *testing.T) {
	fm := &fakeManager{execFn: func(argv []string) ([]byte, []byte, model.ProcessInfo, error) {
		t.Fatal("Exec should not be called for interpreted languages")
		return nil, nil, model.ProcessInfo{}, nil
	}}
	r := New(fm)
	lang, _ := Lookup("python3")
	info, err := r.Prepare(context.Background(), "sbx", "sub-1", lang, model.ResourceLimits{})
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Error("Prepare returned non-nil info for an interpreted language")
	}
}

func TestPrepareCachesCompileFailure(t *testing.T) {
	fm := &fakeManager{execFn: func(argv []string) ([]byte, []byte, model.ProcessInfo, error) {
		return nil, []byte("syntax error"), model.ProcessInfo{ExitStatus: 1}, nil
	}}
	r := New(fm)
	lang, _ := Lookup("c")

	info1, err := r.Prepare(context.Background(), "sbx", "sub-c", lang, model.ResourceLimits{})
	if err != nil {
		t.Fatal(err)
	}
	if info1 == nil || info1.Flag != FlagCompileFailed {
		t.Fatalf("Prepare first call = %+v, want CompileFailed flag", info1)
	}

	info2, err := r.Prepare(context.Background(), "sbx", "sub-c", lang, model.ResourceLimits{})
	if err != nil {
		t.Fatal(err)
	}
	if info2 == nil || info2.Flag != FlagCompileFailed {
		t.Fatalf("Prepare second call = %+v, want cached CompileFailed flag", info2)
	}
	if fm.execCalls != 1 {
		t.Errorf("Exec called %d times, want 1 (fail-fast caching)", fm.execCalls)
	}
}

func TestRunRendersStdinOnePerLine(t *testing.T) {
	fm := &fakeManager{execFn: func(argv []string) ([]byte, []byte, model.ProcessInfo, error) {
		return []byte("42\n"), nil, model.ProcessInfo{ExitStatus: 0}, nil
	}}
	r := New(fm)
	lang, _ := Lookup("python3")
	stdout, info, err := r.Run(context.Background(), "sbx", lang, []interface{}{3, 4}, model.ResourceLimits{})
	if err != nil {
		t.Fatal(err)
	}
	if info.ExitStatus != 0 {
		t.Errorf("ExitStatus = %d, want 0", info.ExitStatus)
	}
	if stdout != "42\n" {
		t.Errorf("stdout = %q, want %q", stdout, "42\n")
	}
	if string(fm.lastStdin) != "3\n4" {
		t.Errorf("stdin = %q, want %q", fm.lastStdin, "3\n4")
	}
}

func TestLookupOrUnknownRejectsUnsupportedLanguage(t *testing.T) {
	if _, err := LookupOrUnknown("ruby"); err == nil {
		t.Error("LookupOrUnknown(ruby) = nil error, want UnknownLanguage")
	}
}
