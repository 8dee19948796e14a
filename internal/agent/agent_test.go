package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nuetzliches/monitord/internal/config"
)

func TestParseItemKey(t *testing.T) {
	tests := []struct {
		key    string
		name   string
		params []string
	}{
		{key: "system.uptime", name: "system.uptime"},
		{key: "vfs.dir[/tmp,1]", name: "vfs.dir", params: []string{"/tmp", "1"}},
		{key: "k[]", name: "k", params: []string{""}},
		{key: `k["a,b",c]`, name: "k", params: []string{"a,b", "c"}},
		{key: `k["say \"hi\""]`, name: "k", params: []string{`say "hi"`}},
		{key: "k[a,,b]", name: "k", params: []string{"a", "", "b"}},
	}
	for _, tc := range tests {
		name, params, err := ParseItemKey(tc.key)
		if err != nil {
			t.Fatalf("ParseItemKey(%q): %v", tc.key, err)
		}
		if name != tc.name || strings.Join(params, "|") != strings.Join(tc.params, "|") || (params == nil) != (tc.params == nil) {
			t.Fatalf("ParseItemKey(%q)=%q %q, want %q %q", tc.key, name, params, tc.name, tc.params)
		}
	}

	for _, bad := range []string{"", "k[a", "bad key", `k["a]`, `k["a"b]`, "[x]"} {
		if _, _, err := ParseItemKey(bad); err == nil {
			t.Fatalf("ParseItemKey(%q): expected error", bad)
		}
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	dup := []config.UserParameter{{Key: "a", Command: "echo 1"}, {Key: "a[*]", Command: "echo 2"}}
	if _, err := NewRegistry(dup, false); err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("err=%v, want duplicate key", err)
	}
	bad := []config.UserParameter{{Key: "a b", Command: "echo 1"}}
	if _, err := NewRegistry(bad, false); err == nil {
		t.Fatalf("expected invalid key error")
	}
}

func TestRegistry_Command(t *testing.T) {
	r, err := NewRegistry([]config.UserParameter{
		{Key: "plain", Command: "echo plain"},
		{Key: "flex[*]", Command: "echo $1-$2 $9 $$ cost $5x"},
		{Key: "self[*]", Command: "printf '%s' $0"},
	}, false)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := r.Keys(); strings.Join(got, ",") != "flex[*],plain,self[*]" {
		t.Fatalf("keys=%v", got)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"plain", "echo plain"},
		{"flex[a,b]", "echo a-b  $$ cost x"},
		{"flex", "echo -  $$ cost x"},
		{"self[]", "printf '%s' printf '%s' $0"},
	}
	for _, tc := range tests {
		got, err := r.Command(tc.key)
		if err != nil {
			t.Fatalf("Command(%q): %v", tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("Command(%q)=%q, want %q", tc.key, got, tc.want)
		}
	}

	if _, err := r.Command("plain[x]"); !errors.Is(err, ErrNotFlexible) {
		t.Fatalf("err=%v, want ErrNotFlexible", err)
	}
	if _, err := r.Command("missing"); !errors.Is(err, ErrUnsupportedItem) {
		t.Fatalf("err=%v, want ErrUnsupportedItem", err)
	}
	if _, err := r.Command("flex[a;rm -rf /]"); !errors.Is(err, ErrUnsafeParameter) {
		t.Fatalf("err=%v, want ErrUnsafeParameter", err)
	}

	if err := r.Replace([]config.UserParameter{{Key: "flex[*]", Command: "echo $1"}}, true); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got, err := r.Command("flex[a;b]"); err != nil || got != "echo a;b" {
		t.Fatalf("unsafe allowed: %q %v", got, err)
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d, want 1", r.Len())
	}
	if err := r.Replace([]config.UserParameter{{Key: "", Command: "x"}}, false); err == nil {
		t.Fatalf("expected replace error")
	}
	if r.Len() != 1 {
		t.Fatalf("failed replace must keep entries")
	}
}

func TestExecutor_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	r, err := NewRegistry([]config.UserParameter{
		{Key: "hello", Command: "echo hello world; echo"},
		{Key: "args[*]", Command: "echo $1 $2"},
		{Key: "fail", Command: "echo broken >&2; exit 3"},
		{Key: "partial", Command: "echo 7; exit 1"},
		{Key: "slow", Command: "sleep 5"},
	}, false)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	e := &Executor{Registry: r, Timeout: 200 * time.Millisecond}
	ctx := context.Background()

	if got, err := e.Run(ctx, "hello"); err != nil || got != "hello world" {
		t.Fatalf("hello=%q err=%v", got, err)
	}
	if got, err := e.Run(ctx, "args[x,y]"); err != nil || got != "x y" {
		t.Fatalf("args=%q err=%v", got, err)
	}
	if _, err := e.Run(ctx, "fail"); err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("fail err=%v", err)
	}
	if got, err := e.Run(ctx, "partial"); err != nil || got != "7" {
		t.Fatalf("partial=%q err=%v", got, err)
	}
	if _, err := e.Run(ctx, "slow"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("slow err=%v, want ErrTimeout", err)
	}
}

func TestExecutor_RunsInDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := NewRegistry([]config.UserParameter{{Key: "marker", Command: "cat marker"}}, false)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	e := &Executor{Registry: r, Dir: dir}
	if got, err := e.Run(context.Background(), "marker"); err != nil || got != "here" {
		t.Fatalf("marker=%q err=%v", got, err)
	}
}
