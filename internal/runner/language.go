package runner

// Language describes how to prepare and invoke one language's code inside
// a sandbox, grounded on the judge's own per-language command-template
// convention (placeholders {src}/{bin}/{extraFlags} expanded then split
// with shlex).
type Language struct {
	ID               string
	SourceFile       string
	BinaryFile       string
	CompileEnabled   bool
	CompileCmdTpl    string
	RunCmdTpl        string
	Env              []string
	TimeMultiplier   float64
	MemoryMultiplier float64
}

// DefaultLanguages is the built-in dispatch table for spec.md's four
// language tags. c is the only one requiring a compile step.
var DefaultLanguages = map[string]Language{
	"python3": {
		ID:             "python3",
		SourceFile:     "solution.py",
		RunCmdTpl:      "python3 {src}",
		TimeMultiplier: 1.0,
	},
	"javascript": {
		ID:             "javascript",
		SourceFile:     "solution.js",
		RunCmdTpl:      "node {src}",
		TimeMultiplier: 1.0,
	},
	"julia": {
		ID:             "julia",
		SourceFile:     "solution.jl",
		RunCmdTpl:      "julia {src}",
		TimeMultiplier: 2.0, // julia's JIT warmup routinely dwarfs the others'.
	},
	"c": {
		ID:             "c",
		SourceFile:     "solution.c",
		BinaryFile:     "solution.bin",
		CompileEnabled: true,
		CompileCmdTpl:  "gcc -O2 -o {bin} {src} {extraFlags}",
		RunCmdTpl:      "{bin}",
		TimeMultiplier: 1.0,
	},
}

// Lookup resolves a language tag to its config.
func Lookup(tag string) (Language, bool) {
	lang, ok := DefaultLanguages[tag]
	return lang, ok
}
