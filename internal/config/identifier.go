package config

import "fmt"

// RejectReason tells why a candidate variable name is not a legal identifier.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonEmpty
	ReasonLeadingDigit
	ReasonIllegalCharacter
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "valid"
	case ReasonEmpty:
		return "empty name"
	case ReasonLeadingDigit:
		return "starts with a digit"
	case ReasonIllegalCharacter:
		return "illegal character"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// VariableName is a name that passed identifier validation. The zero value
// is not valid; use NewVariableName.
type VariableName struct {
	name string
}

func (n VariableName) String() string {
	return n.name
}

// NewVariableName validates name against [A-Za-z_][A-Za-z0-9_]*.
// The name is taken as is: no trimming, case sensitive.
func NewVariableName(name string) (VariableName, error) {
	reason, pos := checkIdentifier(name)
	if reason != ReasonNone {
		e := &InvalidVariableNameError{Name: name, Reason: reason}
		if reason == ReasonIllegalCharacter || reason == ReasonLeadingDigit {
			e.Char = name[pos]
			e.Position = pos + 1
		}
		return VariableName{}, e
	}
	return VariableName{name: name}, nil
}

func IsValidIdentifier(name string) bool {
	reason, _ := checkIdentifier(name)
	return reason == ReasonNone
}

// checkIdentifier returns the first rule name violates and the byte offset
// where it does.
func checkIdentifier(name string) (RejectReason, int) {
	if name == "" {
		return ReasonEmpty, 0
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isASCIILetter(c) || c == '_':
		case isASCIIDigit(c):
			if i == 0 {
				return ReasonLeadingDigit, 0
			}
		default:
			return ReasonIllegalCharacter, i
		}
	}
	return ReasonNone, 0
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isASCIIDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
