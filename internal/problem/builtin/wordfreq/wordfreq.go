// Package wordfreq is a reference problem exercising on-demand resource
// staging (spec.md §9's "dataset_filename" design): each generated input
// names a dataset file under resources/word_frequency/ that the
// Orchestrator must stage just before that case runs, alongside a target
// word whose frequency the submission must report.
package wordfreq

import (
	"bufio"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"judgecore/internal/problem"
)

func init() {
	problem.Register("word_frequency", New())
}

// datasets mirrors the content staged at resources/word_frequency/*.txt;
// kept in-process so GenerateInput/Verify stay pure functions of (type,
// rng) rather than reading the filesystem at generation time.
var datasets = map[string]string{
	"sample1.txt": "the quick brown fox jumps over the lazy dog\n" +
		"the dog barks at the fox\n" +
		"a quick fox outruns the lazy dog every time\n",
	"sample2.txt": "go is a language for building reliable and efficient software\n" +
		"go programs compile fast and run fast\n" +
		"reliable software starts with simple code\n",
}

var datasetNames = []string{"sample1.txt", "sample2.txt"}

var testCaseTypes = []problem.TestCaseType{
	{Name: "frequent_word", Multiplicity: 3},
	{Name: "absent_word", Multiplicity: 2},
}

type plugin struct{}

// New returns the word_frequency plug-in.
func New() problem.Plugin { return plugin{} }

func (plugin) TestCaseTypes() []problem.TestCaseType { return testCaseTypes }

func (plugin) Resources() []string { return nil }

func (plugin) GenerateInput(t problem.TestCaseType, rng *rand.Rand) (problem.TestCase, error) {
	dataset := datasetNames[rng.Intn(len(datasetNames))]
	content := datasets[dataset]

	var word string
	switch t.Name {
	case "frequent_word":
		word = mostFrequentWord(content, rng)
	case "absent_word":
		word = "zzzznotpresent"
	default:
		word = mostFrequentWord(content, rng)
	}

	count := countWord(content, word)
	return problem.TestCase{
		Type:             t,
		Input:            map[string]interface{}{"dataset_filename": dataset, "word": word},
		ExpectedOutput:   map[string]interface{}{"count": count},
		InputSerialized:  []interface{}{dataset, word},
		OnDemandResource: dataset,
	}, nil
}

func (plugin) Verify(tc problem.TestCase, userOutput string) (bool, error) {
	trimmed := strings.TrimSpace(userOutput)
	got, err := strconv.Atoi(trimmed)
	if err != nil {
		return false, nil
	}
	want, ok := tc.ExpectedOutput["count"].(int)
	if !ok {
		return false, fmt.Errorf("word_frequency: expected output missing count")
	}
	return got == want, nil
}

func mostFrequentWord(content string, rng *rand.Rand) string {
	counts := make(map[string]int)
	var order []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		w := strings.ToLower(scanner.Text())
		if _, seen := counts[w]; !seen {
			order = append(order, w)
		}
		counts[w]++
	}
	best := order[0]
	for _, w := range order {
		if counts[w] > counts[best] {
			best = w
		}
	}
	_ = rng // candidate word is deterministic per dataset; rng only selects the dataset
	return best
}

func countWord(content, word string) int {
	target := strings.ToLower(word)
	count := 0
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		if strings.ToLower(scanner.Text()) == target {
			count++
		}
	}
	return count
}
