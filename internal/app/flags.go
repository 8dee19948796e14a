package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nuetzliches/monitord/internal/config"
)

// loadFlags are the flags every command that reads a configuration shares.
type loadFlags struct {
	configPath string
	dialect    string
	dotenvPath string
}

func addLoadFlags(fs *pflag.FlagSet) *loadFlags {
	f := &loadFlags{}
	fs.StringVarP(&f.configPath, "config", "c", "", "path to config file (default ./monitord_<dialect>.conf)")
	fs.StringVar(&f.dialect, "dialect", "server", "daemon dialect: server|proxy|agent|agent2")
	fs.StringVar(&f.dotenvPath, "dotenv", "", "merge environment variables from file (dev only)")
	return f
}

func (f *loadFlags) parseDialect() (config.Dialect, error) {
	return config.ParseDialect(f.dialect)
}

func (f *loadFlags) path(d config.Dialect) string {
	if p := strings.TrimSpace(f.configPath); p != "" {
		return p
	}
	return fmt.Sprintf("./monitord_%s.conf", d)
}

// environment snapshots the process environment, merged with the dotenv
// file when one was given.
func (f *loadFlags) environment() (config.Env, error) {
	env := config.ProcessEnv()
	if p := strings.TrimSpace(f.dotenvPath); p != "" {
		if err := mergeDotenv(p, env); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func (f *loadFlags) loader() (*config.Loader, string, error) {
	d, err := f.parseDialect()
	if err != nil {
		return nil, "", err
	}
	env, err := f.environment()
	if err != nil {
		return nil, "", err
	}
	return &config.Loader{Dialect: d, Env: env}, f.path(d), nil
}

func (f *loadFlags) load(ctx context.Context) (*config.Config, error) {
	l, path, err := f.loader()
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}
