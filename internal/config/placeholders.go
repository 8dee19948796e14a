package config

import (
	"errors"
	"strings"
)

// ExpandPlaceholders replaces every ${name} in raw with the value of name in
// env. Matches are substituted left to right and substituted text is never
// scanned again. Text outside placeholders, including a lone '$', is copied
// verbatim.
func ExpandPlaceholders(raw string, env Environment) (string, error) {
	out, _, err := expandPlaceholders(raw, env, false)
	return out, err
}

// expandPlaceholders is ExpandPlaceholders with an optional lenient mode:
// when keepInvalid is set, a placeholder whose name is not an identifier is
// copied verbatim and reported instead of failing the scan.
func expandPlaceholders(in string, env Environment, keepInvalid bool) (string, []*InvalidVariableNameError, error) {
	if !strings.Contains(in, "${") {
		return in, nil, nil
	}

	var kept []*InvalidVariableNameError
	var out strings.Builder
	out.Grow(len(in))

	for i := 0; i < len(in); {
		if !strings.HasPrefix(in[i:], "${") {
			out.WriteByte(in[i])
			i++
			continue
		}

		end := strings.IndexByte(in[i+2:], '}')
		if end == -1 {
			return "", nil, &MalformedPlaceholderError{Position: i + 1}
		}
		body := in[i+2 : i+2+end]
		next := i + 2 + end + 1

		name, err := NewVariableName(body)
		if err != nil {
			var invalid *InvalidVariableNameError
			if keepInvalid && errors.As(err, &invalid) {
				kept = append(kept, invalid)
				out.WriteString(in[i:next])
				i = next
				continue
			}
			return "", nil, err
		}

		val, err := Resolve(env, name)
		if err != nil {
			return "", nil, err
		}
		out.WriteString(val)
		i = next
	}

	return out.String(), kept, nil
}
