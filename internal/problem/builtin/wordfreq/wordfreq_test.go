package wordfreq

import (
	"math/rand"
	"strconv"
	"testing"
)

func TestGenerateInputSetsOnDemandResource(t *testing.T) {
	p := New()
	rng := rand.New(rand.NewSource(7))
	tc, err := p.GenerateInput(p.TestCaseTypes()[0], rng)
	if err != nil {
		t.Fatal(err)
	}
	if tc.OnDemandResource == "" {
		t.Error("GenerateInput left OnDemandResource empty")
	}
	if _, ok := datasets[tc.OnDemandResource]; !ok {
		t.Errorf("OnDemandResource %q is not a known dataset", tc.OnDemandResource)
	}
}

func TestVerifyAcceptsCorrectCount(t *testing.T) {
	p := New()
	rng := rand.New(rand.NewSource(7))
	tc, err := p.GenerateInput(p.TestCaseTypes()[0], rng)
	if err != nil {
		t.Fatal(err)
	}
	want := tc.ExpectedOutput["count"].(int)
	ok, err := p.Verify(tc, strconv.Itoa(want))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Verify rejected correct count")
	}
}

func TestAbsentWordCountsZero(t *testing.T) {
	p := New()
	rng := rand.New(rand.NewSource(3))
	tc, err := p.GenerateInput(p.TestCaseTypes()[1], rng)
	if err != nil {
		t.Fatal(err)
	}
	if tc.ExpectedOutput["count"] != 0 {
		t.Errorf("absent_word count = %v, want 0", tc.ExpectedOutput["count"])
	}
}
