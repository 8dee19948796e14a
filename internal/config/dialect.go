package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Dialect is the daemon variant a configuration is loaded for. It selects
// the recognized parameters and the wording of load failures; placeholder
// substitution and validation are the same for every dialect.
type Dialect int

const (
	DialectAgent Dialect = iota + 1
	DialectAgent2
	DialectServer
	DialectProxy
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "agentd":
		return DialectAgent, nil
	case "agent2":
		return DialectAgent2, nil
	case "server":
		return DialectServer, nil
	case "proxy":
		return DialectProxy, nil
	default:
		return 0, fmt.Errorf("invalid dialect %q (use: server|proxy|agent|agent2)", s)
	}
}

func (d Dialect) String() string {
	switch d {
	case DialectAgent:
		return "agent"
	case DialectAgent2:
		return "agent2"
	case DialectServer:
		return "server"
	case DialectProxy:
		return "proxy"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// IsAgent reports whether d is one of the agent variants.
func (d Dialect) IsAgent() bool {
	return d == DialectAgent || d == DialectAgent2
}

// UserParameterKey is the directive key routed to the user-parameter parser,
// or "" when the dialect has none.
func (d Dialect) UserParameterKey() string {
	if d.IsAgent() {
		return "UserParameter"
	}
	return ""
}

// Recognizes reports whether key is a legal directive for d.
func (d Dialect) Recognizes(key string) bool {
	_, ok := d.param(key)
	return ok
}

// Parameters lists the directive keys d recognizes, sorted.
func (d Dialect) Parameters() []string {
	params := dialectParams[d]
	out := make([]string, 0, len(params))
	for k := range params {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (d Dialect) param(key string) (paramSpec, bool) {
	if spec, ok := dialectParams[d][key]; ok {
		return spec, true
	}
	if d == DialectAgent2 && strings.HasPrefix(key, "Plugins.") && len(key) > len("Plugins.") {
		return paramSpec{}, true
	}
	return paramSpec{}, false
}

func (d Dialect) messages() messageSet {
	if m, ok := dialectMessages[d]; ok {
		return m
	}
	return dialectMessages[DialectAgent]
}

type paramKind int

const (
	paramSingle paramKind = iota
	paramMulti
	paramInclude
	paramUserParameter
)

type paramSpec struct {
	kind    paramKind
	integer bool
	min     int
	max     int
	choices []string
	def     string
}

func intParam(min, max int, def string) paramSpec {
	return paramSpec{integer: true, min: min, max: max, def: def}
}

func (s paramSpec) accumulates() bool {
	return s.kind == paramMulti || s.kind == paramInclude || s.kind == paramUserParameter
}

// messageSet holds the printf templates a dialect renders load failures with.
type messageSet struct {
	// userParameter takes the raw directive value and the failure detail.
	userParameter string
	// directive takes path, line and detail.
	directive string
	// file takes path and detail.
	file string
}

func (m messageSet) render(e *LoadError) string {
	var upErr *UserParameterError
	if errors.As(e.Err, &upErr) {
		return fmt.Sprintf(m.userParameter, upErr.Raw, upErr.Err)
	}
	detail := "unknown error"
	if e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf(m.directive, e.Path, e.Line, detail)
	}
	return fmt.Sprintf(m.file, e.Path, detail)
}

var cDaemonMessages = messageSet{
	userParameter: `cannot load user parameters: user parameter "%s": %v`,
	directive:     `cannot load configuration file "%s" at line %d: %s`,
	file:          `cannot load configuration file "%s": %s`,
}

var dialectMessages = map[Dialect]messageSet{
	DialectAgent:  cDaemonMessages,
	DialectServer: cDaemonMessages,
	DialectProxy:  cDaemonMessages,
	DialectAgent2: {
		userParameter: `Cannot initialize user parameters: cannot add user parameter "%s": %v`,
		directive:     `Cannot read configuration file "%s" at line %d: %s`,
		file:          `Cannot read configuration file "%s": %s`,
	},
}

var commonParams = map[string]paramSpec{
	"Include":          {kind: paramInclude},
	"LogType":          {choices: []string{"file", "console"}, def: "console"},
	"LogFile":          {},
	"LogFileSize":      intParam(0, 1024, "1"),
	"DebugLevel":       intParam(0, 5, "3"),
	"PidFile":          {},
	"Timeout":          intParam(1, 30, "3"),
	"SourceIP":         {},
	"ListenIP":         {def: "0.0.0.0"},
	"StatusListen":     {},
	"StatusGRPCListen": {},
}

var agentParams = map[string]paramSpec{
	"UserParameter":        {kind: paramUserParameter},
	"UserParameterDir":     {},
	"UnsafeUserParameters": intParam(0, 1, "0"),
	"Hostname":             {},
	"Server":               {kind: paramMulti},
	"ServerActive":         {},
	"ListenPort":           intParam(1024, 32767, "10050"),
	"AllowKey":             {kind: paramMulti},
	"DenyKey":              {kind: paramMulti},
	"Alias":                {kind: paramMulti},
	"HostMetadata":         {},
	"HostMetadataItem":     {},
	"RefreshActiveChecks":  intParam(1, 86400, "5"),
}

var serverParams = map[string]paramSpec{
	"ListenPort":     intParam(1024, 32767, "10051"),
	"StartPollers":   intParam(0, 1000, "5"),
	"StartPingers":   intParam(0, 1000, "1"),
	"StartTrappers":  intParam(0, 1000, "5"),
	"DBHost":         {},
	"DBPort":         intParam(1024, 65535, ""),
	"DBName":         {},
	"DBSchema":       {},
	"DBUser":         {},
	"DBPassword":     {},
	"HistoryBackend": {choices: []string{"memory", "sqlite", "postgresql"}, def: "memory"},
	"StatsInterval":  intParam(1, 3600, "1"),
}

var dialectParams = map[Dialect]map[string]paramSpec{
	DialectAgent: mergeParams(commonParams, agentParams, map[string]paramSpec{
		"StartAgents": intParam(0, 100, "3"),
		"BufferSize":  intParam(2, 65535, "100"),
	}),
	DialectAgent2: mergeParams(commonParams, agentParams, map[string]paramSpec{
		"ControlSocket": {},
		"StatusPort":    intParam(1024, 32767, ""),
		"BufferSize":    intParam(2, 65535, "1000"),
	}),
	DialectServer: mergeParams(commonParams, serverParams),
	DialectProxy: mergeParams(commonParams, serverParams, map[string]paramSpec{
		"Hostname":  {},
		"Server":    {},
		"ProxyMode": intParam(0, 1, "0"),
	}),
}

func mergeParams(sets ...map[string]paramSpec) map[string]paramSpec {
	out := map[string]paramSpec{}
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}
