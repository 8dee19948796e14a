package config

import (
	"errors"
	"slices"
	"testing"
)

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"agent":    DialectAgent,
		"agentd":   DialectAgent,
		"Agent2":   DialectAgent2,
		" server ": DialectServer,
		"proxy":    DialectProxy,
	}
	for in, want := range tests {
		got, err := ParseDialect(in)
		if err != nil {
			t.Fatalf("ParseDialect(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDialect(%q)=%s, want %s", in, got, want)
		}
	}
	if _, err := ParseDialect("java-gateway"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestDialect_UserParameterRouting(t *testing.T) {
	for _, d := range []Dialect{DialectAgent, DialectAgent2} {
		if d.UserParameterKey() != "UserParameter" || !d.Recognizes("UserParameter") {
			t.Fatalf("%s must route UserParameter", d)
		}
	}
	for _, d := range []Dialect{DialectServer, DialectProxy} {
		if d.UserParameterKey() != "" || d.Recognizes("UserParameter") {
			t.Fatalf("%s must not recognize UserParameter", d)
		}
		if !d.Recognizes("StartPollers") {
			t.Fatalf("%s must recognize StartPollers", d)
		}
	}
}

func TestDialect_Parameters(t *testing.T) {
	params := DialectProxy.Parameters()
	if !slices.IsSorted(params) {
		t.Fatalf("parameters not sorted: %v", params)
	}
	for _, k := range []string{"Hostname", "ProxyMode", "StartPollers", "Include"} {
		if !slices.Contains(params, k) {
			t.Fatalf("proxy parameters missing %s", k)
		}
	}
	if slices.Contains(DialectServer.Parameters(), "ProxyMode") {
		t.Fatalf("server must not recognize ProxyMode")
	}
}

func TestDialect_Messages(t *testing.T) {
	upErr := &LoadError{
		Path: "/etc/a.conf",
		Line: 3,
		Err:  &UserParameterError{Raw: "x", Err: ErrNotCommaSeparated},
	}
	fileErr := &LoadError{Path: "/etc/a.conf", Err: errors.New("boom")}
	lineErr := &LoadError{Path: "/etc/a.conf", Line: 7, Err: errors.New("boom")}

	tests := []struct {
		dialect Dialect
		err     *LoadError
		want    string
	}{
		{DialectAgent, upErr, `cannot load user parameters: user parameter "x": not comma-separated`},
		{DialectAgent2, upErr, `Cannot initialize user parameters: cannot add user parameter "x": not comma-separated`},
		{DialectServer, lineErr, `cannot load configuration file "/etc/a.conf" at line 7: boom`},
		{DialectAgent2, lineErr, `Cannot read configuration file "/etc/a.conf" at line 7: boom`},
		{DialectProxy, fileErr, `cannot load configuration file "/etc/a.conf": boom`},
		{DialectAgent2, fileErr, `Cannot read configuration file "/etc/a.conf": boom`},
	}
	for _, tc := range tests {
		e := *tc.err
		e.Dialect = tc.dialect
		if got := e.Error(); got != tc.want {
			t.Fatalf("%s: %q, want %q", tc.dialect, got, tc.want)
		}
	}
}
