package problem

import (
	"math/rand"
	"testing"
)

type fakePlugin struct{}

func (fakePlugin) TestCaseTypes() []TestCaseType { return []TestCaseType{{Name: "only", Multiplicity: 1}} }
func (fakePlugin) Resources() []string           { return nil }
func (fakePlugin) GenerateInput(t TestCaseType, rng *rand.Rand) (TestCase, error) {
	return TestCase{Type: t}, nil
}
func (fakePlugin) Verify(tc TestCase, userOutput string) (bool, error) { return true, nil }

func TestNormalizeKeyReplacesDashes(t *testing.T) {
	if got := NormalizeKey("word-frequency"); got != "word_frequency" {
		t.Errorf("NormalizeKey = %q, want word_frequency", got)
	}
}

func TestRegistryLookupUnknownKey(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("missing"); err == nil {
		t.Error("Lookup(missing) = nil error, want UnknownProblem")
	}
}

func TestRegistryLookupNormalizesDashes(t *testing.T) {
	r := NewRegistry()
	r.Register("fake_problem", fakePlugin{})
	if _, err := r.Lookup("fake-problem"); err != nil {
		t.Errorf("Lookup(fake-problem) unexpected error: %v", err)
	}
}

func TestRegistryLookupEmptyKey(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(""); err == nil {
		t.Error("Lookup(\"\") = nil error, want UnknownProblem")
	}
}
