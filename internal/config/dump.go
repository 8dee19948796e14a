package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

var secretParams = map[string]bool{
	"DBPassword": true,
}

type dumpDoc struct {
	Dialect        string              `json:"dialect" yaml:"dialect"`
	Files          []string            `json:"files" yaml:"files"`
	Parameters     map[string]string   `json:"parameters" yaml:"parameters"`
	Lists          map[string][]string `json:"lists,omitempty" yaml:"lists,omitempty"`
	UserParameters []userParameterDoc  `json:"user_parameters,omitempty" yaml:"user_parameters,omitempty"`
}

type userParameterDoc struct {
	Key     string `json:"key" yaml:"key"`
	Command string `json:"command" yaml:"command"`
}

// Dump renders the resolved configuration as text, json or yaml. Secret
// parameters are redacted unless revealSecrets is set.
func Dump(cfg *Config, format string, revealSecrets bool) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return []byte(canonicalText(cfg, revealSecrets)), nil
	case "json":
		out, err := json.MarshalIndent(newDumpDoc(cfg, revealSecrets), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case "yaml":
		return yaml.Marshal(newDumpDoc(cfg, revealSecrets))
	default:
		return nil, fmt.Errorf("invalid dump format %q (use: text|json|yaml)", format)
	}
}

func newDumpDoc(cfg *Config, revealSecrets bool) dumpDoc {
	doc := dumpDoc{
		Dialect:    cfg.Dialect.String(),
		Files:      append([]string(nil), cfg.Files...),
		Parameters: map[string]string{},
	}
	for k, v := range cfg.Values() {
		doc.Parameters[k] = displayValue(k, v, revealSecrets)
	}
	for k, vals := range cfg.lists {
		if k == cfg.Dialect.UserParameterKey() {
			continue
		}
		if doc.Lists == nil {
			doc.Lists = map[string][]string{}
		}
		doc.Lists[k] = append([]string(nil), vals...)
	}
	for _, up := range cfg.UserParameters {
		doc.UserParameters = append(doc.UserParameters, userParameterDoc{Key: up.Key, Command: up.Command})
	}
	return doc
}

// canonicalText renders one Key=Value line per resolved value: single-valued
// parameters sorted by key, then multi-valued ones in load order.
func canonicalText(cfg *Config, revealSecrets bool) string {
	var b strings.Builder
	values := cfg.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, displayValue(k, values[k], revealSecrets))
	}

	listKeys := make([]string, 0, len(cfg.lists))
	for k := range cfg.lists {
		listKeys = append(listKeys, k)
	}
	sort.Strings(listKeys)
	for _, k := range listKeys {
		for _, v := range cfg.lists[k] {
			fmt.Fprintf(&b, "%s=%s\n", k, v)
		}
	}
	return b.String()
}

func displayValue(key, value string, revealSecrets bool) string {
	if secretParams[key] && !revealSecrets && value != "" {
		return redacted
	}
	return value
}
