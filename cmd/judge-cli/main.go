// Command judge-cli is an interactive debug client for judged's single
// POST /submit endpoint, grounded on internal/cli/repl's session loop
// (prompt, parse, dispatch, render) but driven by chzyer/readline instead
// of a raw bufio.Reader for history and line editing.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

func main() {
	baseURL := flag.String("base", "http://127.0.0.1:8085", "judged base URL")
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "judge-cli> ",
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline failed: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	client := &http.Client{Timeout: 30 * time.Second}
	session := &session{base: *baseURL, client: client}

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF (Ctrl-D) or readline.ErrInterrupt (Ctrl-C)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		if err := session.dispatch(line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

type session struct {
	base   string
	client *http.Client
}

// dispatch parses one REPL line of the form:
//
//	submit file=<path> language=<tag> problem=<key>
//	base <url>
//	help
func (s *session) dispatch(line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	switch tokens[0] {
	case "help":
		printHelp()
		return nil
	case "base":
		if len(tokens) < 2 {
			return fmt.Errorf("usage: base <url>")
		}
		s.base = tokens[1]
		fmt.Printf("base set to %s\n", s.base)
		return nil
	case "submit":
		return s.submit(tokens[1:])
	default:
		return fmt.Errorf("unknown command %q, try help", tokens[0])
	}
}

func (s *session) submit(args []string) error {
	params := map[string]string{}
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid param %q, want key=value", arg)
		}
		params[kv[0]] = kv[1]
	}

	filePath := params["file"]
	if filePath == "" {
		return fmt.Errorf("missing required param: file")
	}
	source, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"code":     base64.StdEncoding.EncodeToString(source),
		"language": params["language"],
		"problem":  params["problem"],
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := s.client.Post(s.base+"/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	fmt.Printf("HTTP %d\n", resp.StatusCode)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(respBody))
	}
	return nil
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  submit file=<path> language=<python3|javascript|julia|c> problem=<key>")
	fmt.Println("  base <url>")
	fmt.Println("  help | exit | quit")
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".judge-cli-history"
	}
	return home + "/.judge-cli-history"
}
