package config

import (
	"fmt"
	"sort"
	"strconv"
)

// Directive is one Key=Value line after placeholder substitution.
type Directive struct {
	Key string
	// RawValue is the text after '=' as written; Value is RawValue with
	// every placeholder resolved.
	RawValue string
	Value    string

	File string
	Line int
}

// Config is the result of one load. It is built fresh on every load and is
// not modified afterwards.
type Config struct {
	Dialect Dialect

	// Directives are in effective order: included files are spliced in at
	// the position of their Include directive, which itself is not listed.
	Directives []Directive

	UserParameters []UserParameter

	// Files lists every file read, in the order reading started.
	Files []string

	// Warnings are non-fatal findings, such as a single-valued parameter
	// being set more than once.
	Warnings []string

	values map[string]Directive
	lists  map[string][]string
}

func newConfig(d Dialect) *Config {
	return &Config{
		Dialect: d,
		values:  map[string]Directive{},
		lists:   map[string][]string{},
	}
}

func (c *Config) add(d Directive, spec paramSpec) {
	if spec.kind != paramInclude {
		c.Directives = append(c.Directives, d)
	}
	if spec.accumulates() {
		c.lists[d.Key] = append(c.lists[d.Key], d.Value)
		return
	}
	// Last write wins.
	if prev, ok := c.values[d.Key]; ok {
		c.Warnings = append(c.Warnings, fmt.Sprintf("parameter %q at %s:%d overrides the value set at %s:%d", d.Key, d.File, d.Line, prev.File, prev.Line))
	}
	c.values[d.Key] = d
}

// Get returns the resolved value of a single-valued parameter.
func (c *Config) Get(key string) (string, bool) {
	d, ok := c.values[key]
	return d.Value, ok
}

// Directive returns the directive that set key last.
func (c *Config) Directive(key string) (Directive, bool) {
	d, ok := c.values[key]
	return d, ok
}

// String returns the value of key, or the dialect default when it is unset.
func (c *Config) String(key string) string {
	if v, ok := c.Get(key); ok {
		return v
	}
	spec, _ := c.Dialect.param(key)
	return spec.def
}

// Int returns the integer value of key, or its dialect default. Integer
// parameters are range-checked during load; a non-integer key yields 0.
func (c *Config) Int(key string) int {
	n, err := strconv.Atoi(c.String(key))
	if err != nil {
		return 0
	}
	return n
}

// List returns every value of a multi-valued parameter in load order.
func (c *Config) List(key string) []string {
	return append([]string(nil), c.lists[key]...)
}

// Values returns the resolved single-valued parameters.
func (c *Config) Values() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, d := range c.values {
		out[k] = d.Value
	}
	return out
}

// Keys returns the keys of all set parameters, sorted.
func (c *Config) Keys() []string {
	out := make([]string, 0, len(c.values)+len(c.lists))
	for k := range c.values {
		out = append(out, k)
	}
	for k := range c.lists {
		if _, ok := c.values[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
