package app

import (
	"fmt"
	"io"
	"os"
)

var (
	version   = "0.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func Main(args []string) int {
	if len(args) < 2 {
		printHelp(os.Stderr)
		return 2
	}

	switch args[1] {
	case "run":
		return runCmd(args[2:])
	case "config":
		return configCmd(args[2:], os.Stdout, os.Stderr)
	case "test":
		return testCmd(args[2:], os.Stdout, os.Stderr)
	case "version":
		return versionCmd(args[2:])
	case "help", "-h", "--help":
		printHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[1])
		printHelp(os.Stderr)
		return 2
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "monitord")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  monitord run --dialect server|proxy|agent|agent2 -c ./monitord_server.conf [--db ./monitord.db] [--pid-file ./monitord.pid] [--watch] [--log-level info] [--log-format plain|json] [--dotenv ./.env] [--trace-endpoint http://collector:4318]")
	fmt.Fprintln(w, "  monitord config validate --dialect server -c ./monitord_server.conf [--format json|text]")
	fmt.Fprintln(w, "  monitord config dump --dialect server -c ./monitord_server.conf [--format text|json|yaml] [--reveal-secrets]")
	fmt.Fprintln(w, "  monitord config diff --dialect server [--context N] <old> <new>")
	fmt.Fprintln(w, "  monitord test --dialect agent -c ./monitord_agent.conf -k 'key[params]'")
	fmt.Fprintln(w, "  monitord version [--long] [--json]")
}
