package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "preprocess":
		return runPreprocess(args[1:])
	case "keywords":
		return runKeywords(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "watch":
		return runWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "curator CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  curator <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health      Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate    Validate document JSON files against the payload schema")
	fmt.Fprintln(os.Stderr, "  ingest      Insert validated documents into the documents table")
	fmt.Fprintln(os.Stderr, "  preprocess  Clean, fingerprint and dedup pending documents")
	fmt.Fprintln(os.Stderr, "  keywords    Extract keyphrases for preprocessed documents")
	fmt.Fprintln(os.Stderr, "  process     Run preprocess + keywords until the backlog drains")
	fmt.Fprintln(os.Stderr, "  run-once    Alias for process")
	fmt.Fprintln(os.Stderr, "  watch       Run process on an interval and serve /healthz and /metrics")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"curator <command> -h\" for command-specific flags.")
}
