package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/nuetzliches/monitord/internal/config"
)

func configCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "missing subcommand: validate | dump | diff")
		return 2
	}

	switch args[0] {
	case "validate":
		return configValidate(args[1:], stdout, stderr)
	case "dump":
		return configDump(args[1:], stdout, stderr)
	case "diff":
		return configDiff(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown config subcommand: %s\n", args[0])
		return 2
	}
}

// parseFlags parses args and maps the outcome to an exit code; ok is false
// when the command must stop.
func parseFlags(fs *pflag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func configValidate(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("config validate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	lf := addLoadFlags(fs)
	format := fs.String("format", "json", "output format: json|text")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	l, path, err := lf.loader()
	if err != nil {
		return configValidateError(stderr, *format, lf.dialect, err.Error())
	}

	_, res := config.Validate(context.Background(), l, path)
	if *format == "text" {
		msg := config.FormatValidationText(res)
		if res.OK {
			fmt.Fprintln(stdout, msg)
			return 0
		}
		fmt.Fprintln(stderr, msg)
		return 1
	}

	out, err := config.FormatValidationJSON(res)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if res.OK {
		fmt.Fprintln(stdout, out)
		return 0
	}
	fmt.Fprintln(stderr, out)
	return 1
}

// configValidateError emits a failure that happened before loading started.
func configValidateError(stderr io.Writer, format, dialect, msg string) int {
	res := config.ValidationResult{
		Dialect: dialect,
		Errors:  []string{msg},
	}
	if format == "text" {
		fmt.Fprintln(stderr, config.FormatValidationText(res))
		return 1
	}
	out, err := config.FormatValidationJSON(res)
	if err != nil {
		fmt.Fprintln(stderr, msg)
		return 1
	}
	fmt.Fprintln(stderr, out)
	return 1
}

func configDump(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("config dump", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	lf := addLoadFlags(fs)
	format := fs.String("format", "text", "output format: text|json|yaml")
	reveal := fs.Bool("reveal-secrets", false, "print secret parameter values instead of redacting them")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := lf.load(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	out, err := config.Dump(cfg, *format, *reveal)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	_, _ = stdout.Write(out)
	return 0
}

func configDiff(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("config diff", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	lf := addLoadFlags(fs)
	contextLines := fs.Int("context", 3, "number of unified diff context lines")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	posArgs := fs.Args()
	if len(posArgs) != 2 {
		fmt.Fprintln(stderr, "usage: monitord config diff [--dialect D] [--context N] <old> <new>")
		return 2
	}
	oldPath, newPath := posArgs[0], posArgs[1]

	l, _, err := lf.loader()
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	oldCfg, err := l.Load(context.Background(), oldPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	newCfg, err := l.Load(context.Background(), newPath)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}

	diff := config.Diff(oldCfg, newCfg, *contextLines, oldPath, newPath)
	if diff == "" {
		return 0
	}
	fmt.Fprintln(stdout, diff)
	return 1
}
