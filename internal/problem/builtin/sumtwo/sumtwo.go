// Package sumtwo is a minimal reference problem: sum two integers read from
// stdin, one per line. It exists to make the orchestrator's full
// Received-through-Cleaned pipeline exercisable end to end without any
// external dataset.
package sumtwo

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"judgecore/internal/problem"
)

func init() {
	problem.Register("sum_two", New())
}

const key = "sum_two"

var testCaseTypes = []problem.TestCaseType{
	{Name: "small", Multiplicity: 4},
	{Name: "negative", Multiplicity: 2},
	{Name: "large", Multiplicity: 2},
}

type plugin struct{}

// New returns the sum_two plug-in.
func New() problem.Plugin { return plugin{} }

func (plugin) TestCaseTypes() []problem.TestCaseType { return testCaseTypes }

func (plugin) Resources() []string { return nil }

func (plugin) GenerateInput(t problem.TestCaseType, rng *rand.Rand) (problem.TestCase, error) {
	var a, b int64
	switch t.Name {
	case "small":
		a, b = rng.Int63n(100), rng.Int63n(100)
	case "negative":
		a, b = rng.Int63n(200)-100, rng.Int63n(200)-100
	case "large":
		a, b = rng.Int63n(1_000_000_000), rng.Int63n(1_000_000_000)
	default:
		a, b = rng.Int63n(100), rng.Int63n(100)
	}
	sum := a + b
	return problem.TestCase{
		Type:            t,
		Input:           map[string]interface{}{"a": a, "b": b},
		ExpectedOutput:  map[string]interface{}{"sum": sum},
		InputSerialized: []interface{}{a, b},
	}, nil
}

func (plugin) Verify(tc problem.TestCase, userOutput string) (bool, error) {
	trimmed := strings.TrimSpace(userOutput)
	got, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return false, nil
	}
	want, ok := tc.ExpectedOutput["sum"].(int64)
	if !ok {
		return false, fmt.Errorf("sum_two: expected output missing sum")
	}
	return got == want, nil
}
