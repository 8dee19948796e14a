package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxIncludeDepth bounds Include nesting.
const DefaultMaxIncludeDepth = 10

var tracer = otel.Tracer("github.com/nuetzliches/monitord/internal/config")

// Loader reads a configuration file for one daemon dialect.
type Loader struct {
	Dialect Dialect
	// Env is the environment placeholders resolve against. It must be fully
	// populated before Load; nil means an empty environment.
	Env Environment
	// FS defaults to OSFileSystem.
	FS FileSystem
	// MaxIncludeDepth defaults to DefaultMaxIncludeDepth.
	MaxIncludeDepth int
}

// Load reads path with a default Loader.
func Load(ctx context.Context, path string, dialect Dialect, env Environment) (*Config, error) {
	l := Loader{Dialect: dialect, Env: env}
	return l.Load(ctx, path)
}

// Load reads path and every file it includes. Any failure aborts the load
// and is returned as a *LoadError. ctx only carries the tracing span; a
// load is not cancelable.
func (l *Loader) Load(ctx context.Context, path string) (cfg *Config, err error) {
	_, span := tracer.Start(ctx, "config.load", trace.WithAttributes(
		attribute.String("config.path", path),
		attribute.String("config.dialect", l.Dialect.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
		} else {
			span.SetAttributes(
				attribute.Int("config.directives", len(cfg.Directives)),
				attribute.Int("config.files", len(cfg.Files)),
			)
		}
		span.End()
	}()

	if _, ok := dialectParams[l.Dialect]; !ok {
		return nil, fmt.Errorf("config: unsupported dialect %s", l.Dialect)
	}

	st := &loadState{
		dialect:  l.Dialect,
		env:      l.Env,
		fs:       l.FS,
		maxDepth: l.MaxIncludeDepth,
		cfg:      newConfig(l.Dialect),
	}
	if st.env == nil {
		st.env = Env{}
	}
	if st.fs == nil {
		st.fs = OSFileSystem{}
	}
	if st.maxDepth <= 0 {
		st.maxDepth = DefaultMaxIncludeDepth
	}

	if err := st.loadFile(path, 0, nil); err != nil {
		return nil, err
	}
	return st.cfg, nil
}

type lineRef struct {
	path string
	line int
	text string
}

type loadState struct {
	dialect  Dialect
	env      Environment
	fs       FileSystem
	maxDepth int
	cfg      *Config

	// stack holds the files currently being read, outermost first.
	stack []string
}

// fail wraps err in a LoadError located at ref, or at path when the failure
// is not tied to a directive.
func (s *loadState) fail(ref *lineRef, path string, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return err
	}
	if ref == nil {
		return &LoadError{Dialect: s.dialect, Path: path, Err: err}
	}
	return &LoadError{Dialect: s.dialect, Path: ref.path, Line: ref.line, Text: ref.text, Err: err}
}

func (s *loadState) loadFile(path string, depth int, from *lineRef) error {
	key := cleanPath(path)
	for i, p := range s.stack {
		if p == key {
			chain := append(append([]string(nil), s.stack[i:]...), key)
			return s.fail(from, path, &IncludeCycleError{Chain: chain})
		}
	}
	if depth > s.maxDepth {
		return s.fail(from, path, &IncludeDepthError{Path: path, Limit: s.maxDepth})
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.fail(from, path, &FileNotFoundError{Path: path})
		}
		return s.fail(from, path, fmt.Errorf("read %q: %w", path, err))
	}

	s.stack = append(s.stack, key)
	defer func() { s.stack = s.stack[:len(s.stack)-1] }()
	s.cfg.Files = append(s.cfg.Files, path)

	lines := strings.Split(string(normalizeInput(data)), "\n")
	for i, line := range lines {
		if err := s.loadLine(path, i+1, line, depth); err != nil {
			return err
		}
	}
	return nil
}

func (s *loadState) loadLine(path string, lineNo int, line string, depth int) error {
	text := strings.TrimRight(line, " \t")
	trimmed := strings.TrimLeft(text, " \t")
	if trimmed == "" || trimmed[0] == '#' {
		return nil
	}
	ref := &lineRef{path: path, line: lineNo, text: text}

	key, raw, ok := strings.Cut(trimmed, "=")
	if !ok {
		return s.fail(ref, path, &SyntaxError{Text: trimmed, Reason: "missing '='"})
	}
	key = strings.TrimSpace(key)
	raw = strings.TrimLeft(raw, " \t")
	if key == "" {
		return s.fail(ref, path, &SyntaxError{Text: trimmed, Reason: "empty parameter name"})
	}

	spec, known := s.dialect.param(key)
	if !known {
		return s.fail(ref, path, &UnknownParameterError{Key: key})
	}

	d := Directive{Key: key, RawValue: raw, File: path, Line: lineNo}

	if spec.kind == paramUserParameter {
		up, value, err := s.userParameter(raw)
		if err != nil {
			return s.fail(ref, path, err)
		}
		d.Value = value
		s.cfg.add(d, spec)
		s.cfg.UserParameters = append(s.cfg.UserParameters, up)
		return nil
	}

	value, err := ExpandPlaceholders(raw, s.env)
	if err != nil {
		return s.fail(ref, path, err)
	}
	d.Value = value
	if err := spec.check(key, value); err != nil {
		return s.fail(ref, path, err)
	}

	if spec.kind == paramInclude {
		if value == "" {
			return s.fail(ref, path, &SyntaxError{Text: trimmed, Reason: "empty include path"})
		}
		s.cfg.add(d, spec)
		return s.include(value, depth, ref)
	}

	s.cfg.add(d, spec)
	return nil
}

// userParameter resolves and parses a user-parameter value. A placeholder
// with an invalid name is left in the text; if the text then has no comma the
// failure is reported as a user-parameter error with the invalid name as its
// cause, otherwise as the invalid name itself.
func (s *loadState) userParameter(raw string) (UserParameter, string, error) {
	value, kept, err := expandPlaceholders(raw, s.env, true)
	if err != nil {
		return UserParameter{}, "", err
	}
	up, err := ParseUserParameter(value)
	if err != nil {
		upErr := &UserParameterError{Raw: raw, Err: err}
		if len(kept) > 0 {
			upErr.Cause = kept[0]
		}
		return UserParameter{}, "", upErr
	}
	if len(kept) > 0 {
		return UserParameter{}, "", kept[0]
	}
	return up, value, nil
}

func (s *loadState) include(pattern string, depth int, ref *lineRef) error {
	paths, err := s.expandInclude(pattern)
	if err != nil {
		return s.fail(ref, ref.path, err)
	}
	for _, p := range paths {
		if err := s.loadFile(p, depth+1, ref); err != nil {
			return err
		}
	}
	return nil
}

// expandInclude turns an Include value into the files it names: the file
// itself, every regular file of a directory, or the regular files matching a
// wildcard in the last path element. Results are in lexical order.
func (s *loadState) expandInclude(pattern string) ([]string, error) {
	if strings.ContainsAny(filepath.Base(pattern), "*?[") {
		dir := filepath.Dir(pattern)
		if _, err := s.fs.Stat(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &FileNotFoundError{Path: dir}
			}
			return nil, err
		}
		matches, err := s.fs.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			info, err := s.fs.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			out = append(out, m)
		}
		slices.Sort(out)
		return out, nil
	}

	info, err := s.fs.Stat(pattern)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &FileNotFoundError{Path: pattern}
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{pattern}, nil
	}

	entries, err := s.fs.ReadDir(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		out = append(out, filepath.Join(pattern, e.Name()))
	}
	slices.Sort(out)
	return out, nil
}

func (s paramSpec) check(key, value string) error {
	if s.integer {
		n, err := strconv.Atoi(value)
		if err != nil || n < s.min || n > s.max {
			return &ValueRangeError{Key: key, Value: value, Min: s.min, Max: s.max}
		}
	}
	if len(s.choices) > 0 && !slices.Contains(s.choices, value) {
		return &InvalidValueError{Key: key, Value: value, Allowed: s.choices}
	}
	return nil
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
