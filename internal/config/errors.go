package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

var (
	ErrNotCommaSeparated = errors.New("not comma-separated")
	ErrEmptyKey          = errors.New("empty key")
	ErrEmptyCommand      = errors.New("empty command")
)

// ErrorKind is a stable name for a load failure, used in structured logs
// and validation output.
type ErrorKind string

const (
	KindUnknown              ErrorKind = "unknown"
	KindMalformedPlaceholder ErrorKind = "malformed_placeholder"
	KindInvalidVariableName  ErrorKind = "invalid_variable_name"
	KindUndefinedVariable    ErrorKind = "undefined_variable"
	KindNotCommaSeparated    ErrorKind = "not_comma_separated"
	KindInvalidUserParameter ErrorKind = "invalid_user_parameter"
	KindFileNotFound         ErrorKind = "file_not_found"
	KindSyntax               ErrorKind = "syntax"
	KindUnknownParameter     ErrorKind = "unknown_parameter"
	KindValueRange           ErrorKind = "value_out_of_range"
	KindInvalidValue         ErrorKind = "invalid_value"
	KindIncludeCycle         ErrorKind = "include_cycle"
	KindIncludeDepth         ErrorKind = "include_depth"
)

// KindOf classifies err. User-parameter failures win over their causes.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var (
		upErr     *UserParameterError
		malformed *MalformedPlaceholderError
		invalid   *InvalidVariableNameError
		undefined *UndefinedVariableError
		notFound  *FileNotFoundError
		syntax    *SyntaxError
		unknown   *UnknownParameterError
		rng       *ValueRangeError
		value     *InvalidValueError
		cycle     *IncludeCycleError
		depth     *IncludeDepthError
	)
	switch {
	case errors.As(err, &upErr):
		if errors.Is(upErr.Err, ErrNotCommaSeparated) {
			return KindNotCommaSeparated
		}
		return KindInvalidUserParameter
	case errors.As(err, &malformed):
		return KindMalformedPlaceholder
	case errors.As(err, &invalid):
		return KindInvalidVariableName
	case errors.As(err, &undefined):
		return KindUndefinedVariable
	case errors.As(err, &notFound):
		return KindFileNotFound
	case errors.As(err, &syntax):
		return KindSyntax
	case errors.As(err, &unknown):
		return KindUnknownParameter
	case errors.As(err, &rng):
		return KindValueRange
	case errors.As(err, &value):
		return KindInvalidValue
	case errors.As(err, &cycle):
		return KindIncludeCycle
	case errors.As(err, &depth):
		return KindIncludeDepth
	default:
		return KindUnknown
	}
}

// MalformedPlaceholderError reports a "${" with no closing "}".
type MalformedPlaceholderError struct {
	// Position is the 1-based byte position of the "$".
	Position int
}

func (e *MalformedPlaceholderError) Error() string {
	return fmt.Sprintf(`unterminated "${" placeholder at position %d`, e.Position)
}

type InvalidVariableNameError struct {
	Name   string
	Reason RejectReason
	// Char and Position (1-based) locate the rejected character, when there is one.
	Char     byte
	Position int
}

func (e *InvalidVariableNameError) Error() string {
	switch e.Reason {
	case ReasonIllegalCharacter:
		return fmt.Sprintf("invalid variable name %q: illegal character %q at position %d", e.Name, rune(e.Char), e.Position)
	default:
		return fmt.Sprintf("invalid variable name %q: %s", e.Name, e.Reason)
	}
}

type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("environment variable %q is not set", e.Name)
}

// UserParameterError is a user-parameter directive that could not be parsed.
// Raw is the directive value before placeholder substitution.
type UserParameterError struct {
	Raw string
	Err error
	// Cause is an invalid placeholder that was left in the value, if any.
	Cause error
}

func (e *UserParameterError) Error() string {
	return fmt.Sprintf(`user parameter "%s": %v`, e.Raw, e.Err)
}

func (e *UserParameterError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file %q does not exist", e.Path)
}

func (e *FileNotFoundError) Unwrap() error {
	return fs.ErrNotExist
}

// SyntaxError is a line that is not a Key=Value directive.
type SyntaxError struct {
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid entry %q: %s", e.Text, e.Reason)
}

type UnknownParameterError struct {
	Key string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q", e.Key)
}

type ValueRangeError struct {
	Key   string
	Value string
	Min   int
	Max   int
}

func (e *ValueRangeError) Error() string {
	return fmt.Sprintf("wrong value %q of parameter %q: must be an integer between %d and %d", e.Value, e.Key, e.Min, e.Max)
}

type InvalidValueError struct {
	Key     string
	Value   string
	Allowed []string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("wrong value %q of parameter %q (use: %s)", e.Value, e.Key, strings.Join(e.Allowed, "|"))
}

type IncludeCycleError struct {
	Chain []string
}

func (e *IncludeCycleError) Error() string {
	return "include cycle: " + strings.Join(e.Chain, " -> ")
}

type IncludeDepthError struct {
	Path  string
	Limit int
}

func (e *IncludeDepthError) Error() string {
	return fmt.Sprintf("include of %q exceeds %d nesting levels", e.Path, e.Limit)
}

// LoadError aborts a whole load. Error renders the wording of the daemon
// dialect that was loading.
type LoadError struct {
	Dialect Dialect
	// Path and Line locate the failing directive; Line is 0 when the failure
	// is not tied to a line (for example a missing top-level file).
	Path string
	Line int
	// Text is the directive line as written.
	Text string
	Err  error
}

func (e *LoadError) Error() string {
	return e.Dialect.messages().render(e)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
