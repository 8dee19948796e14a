package config

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func loadString(t *testing.T, d Dialect, content string, env Env) *Config {
	t.Helper()
	p := writeConf(t, t.TempDir(), "x.conf", content)
	return mustLoad(t, p, d, env)
}

func TestDump_TextRedactsSecrets(t *testing.T) {
	cfg := loadString(t, DialectServer, "DBPassword=${PW}\nStartPollers=2\nDBName=mon\n", Env{"PW": "hunter2"})

	out, err := Dump(cfg, "text", false)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	want := "DBName=mon\nDBPassword=********\nStartPollers=2\n"
	if string(out) != want {
		t.Fatalf("dump=%q, want %q", out, want)
	}

	out, err = Dump(cfg, "", true)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(string(out), "DBPassword=hunter2") {
		t.Fatalf("expected revealed secret, got %q", out)
	}
}

func TestDump_JSONAndYAML(t *testing.T) {
	cfg := loadString(t, DialectAgent, "Hostname=h\nAllowKey=a\nAllowKey=b\nUserParameter=k,echo 1\n", nil)

	out, err := Dump(cfg, "json", false)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var doc dumpDoc
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	if doc.Dialect != "agent" || doc.Parameters["Hostname"] != "h" {
		t.Fatalf("json doc=%+v", doc)
	}
	if got := doc.Lists["AllowKey"]; len(got) != 2 || got[1] != "b" {
		t.Fatalf("AllowKey=%v", got)
	}
	if _, ok := doc.Lists["UserParameter"]; ok {
		t.Fatalf("user parameters must not be listed twice")
	}
	if len(doc.UserParameters) != 1 || doc.UserParameters[0].Command != "echo 1" {
		t.Fatalf("user parameters=%+v", doc.UserParameters)
	}

	out, err = Dump(cfg, "yaml", false)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var ydoc dumpDoc
	if err := yaml.Unmarshal(out, &ydoc); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if ydoc.Parameters["Hostname"] != "h" || len(ydoc.UserParameters) != 1 {
		t.Fatalf("yaml doc=%+v", ydoc)
	}

	if _, err := Dump(cfg, "toml", false); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestDiff(t *testing.T) {
	oldCfg := loadString(t, DialectServer, "StartPollers=5\nDBName=mon\n", nil)
	newCfg := loadString(t, DialectServer, "StartPollers=12\nDBName=mon\n", nil)

	if got := Diff(oldCfg, oldCfg, 0, "a", "b"); got != "" {
		t.Fatalf("identical configs diff=%q", got)
	}
	got := Diff(oldCfg, newCfg, 3, "old", "new")
	for _, want := range []string{"--- old", "+++ new", "-StartPollers=5", "+StartPollers=12", " DBName=mon"} {
		if !strings.Contains(got, want) {
			t.Fatalf("diff missing %q:\n%s", want, got)
		}
	}

	keys := ChangedKeys(oldCfg, newCfg)
	if len(keys) != 1 || keys[0] != "StartPollers" {
		t.Fatalf("changed keys=%v", keys)
	}
}

func TestDiff_SecretChangeIsReportedMasked(t *testing.T) {
	oldCfg := loadString(t, DialectServer, "DBName=mon\nDBPassword=old-secret\n", nil)
	newCfg := loadString(t, DialectServer, "DBName=mon\nDBPassword=new-secret\n", nil)

	got := Diff(oldCfg, newCfg, 1, "old", "new")
	if got == "" {
		t.Fatal("password change produced an empty diff")
	}
	for _, want := range []string{"-DBPassword=" + redacted, "+DBPassword=" + redacted} {
		if !strings.Contains(got, want) {
			t.Fatalf("diff missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret") {
		t.Fatalf("diff leaks the password:\n%s", got)
	}
}

func TestChangedKeys_UserParameters(t *testing.T) {
	oldCfg := loadString(t, DialectAgent, "UserParameter=a,echo a\n", nil)
	newCfg := loadString(t, DialectAgent, "UserParameter=a,echo b\nHostname=h\n", nil)
	keys := ChangedKeys(oldCfg, newCfg)
	if strings.Join(keys, ",") != "Hostname,UserParameter" {
		t.Fatalf("changed keys=%v", keys)
	}
}

func TestEditScript(t *testing.T) {
	script := editScript([]string{"a", "b", "c"}, []string{"a", "x", "c"})
	var kinds []byte
	for _, e := range script {
		kinds = append(kinds, byte(e.kind))
	}
	if string(kinds) != " -+ " {
		t.Fatalf("kinds=%q", kinds)
	}
	if got := formatUnified(script, 0, "old", "new"); got != "--- old\n+++ new\n@@ -2,1 +2,1 @@\n-b\n+x" {
		t.Fatalf("unified=%q", got)
	}
}

func TestHunks_MergeNearbyChanges(t *testing.T) {
	a := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}
	b := []string{"1", "X", "3", "4", "5", "6", "7", "Y", "9"}
	script := editScript(a, b)
	if hs := hunks(script, 1); len(hs) != 2 {
		t.Fatalf("context 1: hunks=%v, want 2", hs)
	}
	if hs := hunks(script, 3); len(hs) != 1 {
		t.Fatalf("context 3: hunks=%v, want 1", hs)
	}
	if got := formatUnified(editScript(nil, []string{"k=v"}), 3, "a", "b"); got != "--- a\n+++ b\n@@ -0,0 +1,1 @@\n+k=v" {
		t.Fatalf("unified=%q", got)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	ok := writeConf(t, dir, "ok.conf", "StartPollers=1\nStartPollers=2\n")
	bad := writeConf(t, dir, "bad.conf", "StartPollers=${X}\n")

	l := &Loader{Dialect: DialectServer, Env: Env{}}
	cfg, res := Validate(context.Background(), l, ok)
	if cfg == nil || !res.OK || len(res.Warnings) != 1 {
		t.Fatalf("result=%+v", res)
	}
	if got := FormatValidationText(res); got != "config ok (warnings: 1)" {
		t.Fatalf("text=%q", got)
	}

	cfg, res = Validate(context.Background(), l, bad)
	if cfg != nil || res.OK || res.Kind != KindUndefinedVariable {
		t.Fatalf("result=%+v", res)
	}
	if got := FormatValidationText(res); !strings.HasPrefix(got, "config invalid: cannot load configuration file") {
		t.Fatalf("text=%q", got)
	}
	js, err := FormatValidationJSON(res)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded ValidationResult
	if err := json.Unmarshal([]byte(js), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != KindUndefinedVariable || decoded.Dialect != "server" {
		t.Fatalf("decoded=%+v", decoded)
	}
}
