package config

import (
	"os"
	"strings"
)

// Environment is the read-only variable table placeholders resolve against.
type Environment interface {
	Lookup(name string) (string, bool)
}

// Env is an in-memory environment snapshot.
type Env map[string]string

func (e Env) Lookup(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

// ProcessEnv snapshots the process environment. Later changes to the
// process environment are not visible through the returned Env.
func ProcessEnv() Env {
	return EnvFromList(os.Environ())
}

// EnvFromList builds an Env from "name=value" entries. Entries without '='
// are ignored; a repeated name keeps the last value.
func EnvFromList(list []string) Env {
	env := make(Env, len(list))
	for _, kv := range list {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = val
	}
	return env
}

// Resolve returns the substitution text for name.
func Resolve(env Environment, name VariableName) (string, error) {
	if env == nil {
		return "", &UndefinedVariableError{Name: name.String()}
	}
	val, ok := env.Lookup(name.String())
	if !ok {
		return "", &UndefinedVariableError{Name: name.String()}
	}
	return val, nil
}
