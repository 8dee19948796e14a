package config

import (
	"context"
	"encoding/json"
	"fmt"
)

type ValidationResult struct {
	OK       bool      `json:"ok"`
	Dialect  string    `json:"dialect"`
	Kind     ErrorKind `json:"kind,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Validate loads path and reports the outcome. The returned Config is nil
// when the load failed.
func Validate(ctx context.Context, l *Loader, path string) (*Config, ValidationResult) {
	res := ValidationResult{Dialect: l.Dialect.String()}
	cfg, err := l.Load(ctx, path)
	if err != nil {
		res.Kind = KindOf(err)
		res.Errors = []string{err.Error()}
		return nil, res
	}
	res.OK = true
	res.Warnings = append(res.Warnings, cfg.Warnings...)
	return cfg, res
}

func FormatValidationJSON(res ValidationResult) (string, error) {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func FormatValidationText(res ValidationResult) string {
	if res.OK {
		if len(res.Warnings) == 0 {
			return "config ok"
		}
		return fmt.Sprintf("config ok (warnings: %d)", len(res.Warnings))
	}
	if len(res.Errors) == 0 {
		return "config invalid"
	}
	return fmt.Sprintf("config invalid: %s", res.Errors[0])
}
