package config

import "strings"

// UserParameter is a custom check registered by an agent: the item key it
// answers to and the shell command that produces its value.
type UserParameter struct {
	Key     string
	Command string
}

// ParseUserParameter splits a resolved UserParameter value on its first
// comma. The key is free-form; the command is kept verbatim and may contain
// further commas.
func ParseUserParameter(value string) (UserParameter, error) {
	key, command, ok := strings.Cut(value, ",")
	if !ok {
		return UserParameter{}, ErrNotCommaSeparated
	}
	if key == "" {
		return UserParameter{}, ErrEmptyKey
	}
	if command == "" {
		return UserParameter{}, ErrEmptyCommand
	}
	return UserParameter{Key: key, Command: command}, nil
}
