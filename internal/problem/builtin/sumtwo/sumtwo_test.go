package sumtwo

import (
	"math/rand"
	"strconv"
	"testing"
)

func TestGenerateInputDeterministicGivenSeed(t *testing.T) {
	p := New()
	types := p.TestCaseTypes()
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	tc1, err := p.GenerateInput(types[0], rng1)
	if err != nil {
		t.Fatal(err)
	}
	tc2, err := p.GenerateInput(types[0], rng2)
	if err != nil {
		t.Fatal(err)
	}
	if tc1.Input["a"] != tc2.Input["a"] || tc1.Input["b"] != tc2.Input["b"] {
		t.Errorf("GenerateInput not deterministic given seed: %v vs %v", tc1.Input, tc2.Input)
	}
}

func TestVerifyAcceptsCorrectSum(t *testing.T) {
	p := New()
	rng := rand.New(rand.NewSource(1))
	tc, err := p.GenerateInput(p.TestCaseTypes()[0], rng)
	if err != nil {
		t.Fatal(err)
	}
	want := tc.ExpectedOutput["sum"].(int64)
	ok, err := p.Verify(tc, "  "+strconv.FormatInt(want, 10)+"\n")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Verify rejected correct sum")
	}
}

func TestVerifyRejectsWrongSum(t *testing.T) {
	p := New()
	rng := rand.New(rand.NewSource(1))
	tc, err := p.GenerateInput(p.TestCaseTypes()[0], rng)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := p.Verify(tc, "not-a-number")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Verify accepted malformed output")
	}
}
