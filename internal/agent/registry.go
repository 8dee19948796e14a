// Package agent runs user parameters: operator-defined item keys backed by
// shell commands.
package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nuetzliches/monitord/internal/config"
)

var (
	ErrUnsupportedItem = errors.New("unsupported item key")
	ErrUnsafeParameter = errors.New("character is not allowed in parameters")
	ErrNotFlexible     = errors.New("item does not accept parameters")
)

// unsafeChars may not appear in flexible parameter values unless unsafe
// user parameters are enabled.
const unsafeChars = "\\'\"`*?[]{}~$!&;()<>|#@\n"

type entry struct {
	name     string
	flexible bool
	command  string
}

// Registry maps item keys to user-parameter commands. It is replaced as a
// whole on reload and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	unsafe  bool
}

// NewRegistry validates params and builds a registry. A key ending in "[*]"
// is flexible and receives its call parameters as $1..$9.
func NewRegistry(params []config.UserParameter, allowUnsafe bool) (*Registry, error) {
	entries, err := buildEntries(params)
	if err != nil {
		return nil, err
	}
	return &Registry{entries: entries, unsafe: allowUnsafe}, nil
}

func buildEntries(params []config.UserParameter) (map[string]entry, error) {
	entries := make(map[string]entry, len(params))
	for _, up := range params {
		name, flexible := strings.CutSuffix(up.Key, "[*]")
		if err := checkKeyName(name); err != nil {
			return nil, fmt.Errorf("user parameter %q: %w", up.Key, err)
		}
		if _, dup := entries[name]; dup {
			return nil, fmt.Errorf("user parameter %q: key already defined", up.Key)
		}
		entries[name] = entry{name: name, flexible: flexible, command: up.Command}
	}
	return entries, nil
}

// Replace swaps the registry contents for params. On error the registry is
// left unchanged.
func (r *Registry) Replace(params []config.UserParameter, allowUnsafe bool) error {
	entries, err := buildEntries(params)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = entries
	r.unsafe = allowUnsafe
	r.mu.Unlock()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys lists the registered keys as configured, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if e.flexible {
			out = append(out, e.name+"[*]")
		} else {
			out = append(out, e.name)
		}
	}
	sort.Strings(out)
	return out
}

// Command returns the shell command for an item key such as "vfs.dir[/tmp,1]",
// with parameters substituted.
func (r *Registry) Command(itemKey string) (string, error) {
	name, params, err := ParseItemKey(itemKey)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	unsafe := r.unsafe
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedItem, itemKey)
	}
	if !e.flexible {
		if params != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFlexible, name)
		}
		return e.command, nil
	}
	if !unsafe {
		for _, p := range params {
			if i := strings.IndexAny(p, unsafeChars); i >= 0 {
				return "", fmt.Errorf("%w: %q in %q", ErrUnsafeParameter, p[i], p)
			}
		}
	}
	return substituteParams(e.command, params), nil
}

// substituteParams replaces $1..$9 with the call parameters; missing ones
// become empty. $0 is the command itself and "$$" stays a literal "$$".
func substituteParams(command string, params []string) string {
	var b strings.Builder
	for i := 0; i < len(command); i++ {
		c := command[i]
		if c != '$' || i+1 >= len(command) {
			b.WriteByte(c)
			continue
		}
		next := command[i+1]
		switch {
		case next == '0':
			b.WriteString(command)
			i++
		case next >= '1' && next <= '9':
			if n := int(next - '1'); n < len(params) {
				b.WriteString(params[n])
			}
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func checkKeyName(name string) error {
	if name == "" {
		return errors.New("empty key")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.' {
			continue
		}
		return fmt.Errorf("invalid character %q in key", c)
	}
	return nil
}

// ParseItemKey splits "name[p1,p2]" into its name and parameters. A key
// without brackets has nil parameters. Parameters may be double-quoted to
// carry commas and brackets; \" escapes a quote inside quotes.
func ParseItemKey(key string) (string, []string, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		if err := checkKeyName(key); err != nil {
			return "", nil, fmt.Errorf("item key %q: %w", key, err)
		}
		return key, nil, nil
	}
	name := key[:open]
	if err := checkKeyName(name); err != nil {
		return "", nil, fmt.Errorf("item key %q: %w", key, err)
	}
	if !strings.HasSuffix(key, "]") {
		return "", nil, fmt.Errorf("item key %q: missing closing ']'", key)
	}
	body := key[open+1 : len(key)-1]

	params := []string{}
	var (
		cur    strings.Builder
		quoted bool
		inStr  bool
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inStr:
			if c == '\\' && i+1 < len(body) && body[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			if c == '"' {
				inStr = false
				continue
			}
			cur.WriteByte(c)
		case c == '"' && cur.Len() == 0 && !quoted:
			inStr, quoted = true, true
		case c == ',':
			params = append(params, cur.String())
			cur.Reset()
			quoted = false
		case quoted:
			if c != ' ' {
				return "", nil, fmt.Errorf("item key %q: unexpected %q after quoted parameter", key, c)
			}
		default:
			cur.WriteByte(c)
		}
	}
	if inStr {
		return "", nil, fmt.Errorf("item key %q: unterminated quoted parameter", key)
	}
	params = append(params, cur.String())
	return name, params, nil
}
