// Command fakecodex stands in for the real "codex" agent CLI in tests: it
// accepts the same invocation shape internal/worker's launch scripts
// produce (a positional prompt, -m/-s/-C/-o flags, --skip-git-repo-check,
// optional --json telemetry) and, instead of calling out to an LLM, copies
// a canned response fixture to the requested output path. This replaces
// lorch's protocol-speaking mockagent/claude-fixture binaries, which
// modeled a different CLI contract (a long-lived stdin/stdout command
// channel) that this orchestrator's one-shot worker invocations don't use.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "exec" {
		fmt.Fprintln(stderr, "fakecodex: expected \"exec <prompt>\" as the first two arguments")
		return 2
	}

	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	model := fs.String("m", "", "model name (ignored)")
	sandbox := fs.String("s", "", "sandbox mode (ignored)")
	cwd := fs.String("C", "", "repository root override (ignored)")
	output := fs.String("o", "", "output file path")
	skipGitCheck := fs.Bool("skip-git-repo-check", false, "ignored")
	jsonMode := fs.Bool("json", false, "emit a telemetry JSONL record to stdout")

	if len(args) < 2 {
		fmt.Fprintln(stderr, "fakecodex: missing prompt argument")
		return 2
	}
	prompt := args[1]
	if err := fs.Parse(args[2:]); err != nil {
		return 2
	}
	_ = model
	_ = sandbox
	_ = cwd
	_ = skipGitCheck

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(stderr, "fakecodex: -o output path is required")
		return 2
	}

	fixturePath := strings.TrimSpace(os.Getenv("FAKECODEX_FIXTURE"))
	if fixturePath == "" {
		fmt.Fprintln(stderr, "fakecodex: FAKECODEX_FIXTURE must name a response file to copy to -o")
		return 1
	}

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		fmt.Fprintf(stderr, "fakecodex: read fixture %s: %v\n", fixturePath, err)
		return 1
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "fakecodex: write output %s: %v\n", *output, err)
		return 1
	}

	if *jsonMode {
		fmt.Fprintf(stdout, `{"type":"turn.started"}`+"\n")
		fmt.Fprintf(stdout, `{"type":"turn.completed","usage":{"input_tokens":%d,"cached_input_tokens":0,"output_tokens":%d}}`+"\n", len(prompt), len(data))
	}

	time.Sleep(10 * time.Millisecond)
	return 0
}
