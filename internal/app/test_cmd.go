package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nuetzliches/monitord/internal/daemon"
	"github.com/nuetzliches/monitord/internal/history"
)

// testCmd runs a single item key once, the way a poller would, and prints
// the outcome.
func testCmd(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	lf := addLoadFlags(fs)
	key := fs.StringP("key", "k", "", "item key to test, e.g. 'custom.echo[hello]'")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if strings.TrimSpace(*key) == "" {
		fmt.Fprintln(stderr, "test: missing --key")
		return 2
	}
	d, err := lf.parseDialect()
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 2
	}
	if !d.IsAgent() {
		fmt.Fprintf(stderr, "test: dialect %s runs no user parameters\n", d)
		return 2
	}

	ctx := context.Background()
	cfg, err := lf.load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	rt, err := daemon.New(cfg, daemon.Options{
		Logger: slog.New(slog.DiscardHandler),
		Store:  history.NewMemoryStore(),
	})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	defer rt.Close()

	value, err := rt.TestItem(ctx, *key)
	if err != nil {
		fmt.Fprintf(stdout, "%-45s [m|NOTSUPPORTED] [%s]\n", *key, err)
		return 1
	}
	fmt.Fprintf(stdout, "%-45s [t|%s]\n", *key, value)
	return 0
}
