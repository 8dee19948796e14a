package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

type editKind byte

const (
	editKeep editKind = ' '
	editDel  editKind = '-'
	editAdd  editKind = '+'
)

type edit struct {
	kind editKind
	text string
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// editScript returns a shortest edit script turning a into b. lcs[i][j] is
// the length of the longest common subsequence of a[i:] and b[j:].
func editScript(a, b []string) []edit {
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	out := make([]edit, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			out = append(out, edit{editKeep, a[i]})
			i++
			j++
		case j == len(b) || (i < len(a) && lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, edit{editDel, a[i]})
			i++
		default:
			out = append(out, edit{editAdd, b[j]})
			j++
		}
	}
	return out
}

// hunk is the half-open range [start, end) of an edit script.
type hunk struct{ start, end int }

// hunks surrounds every change with up to context unchanged edits. Hunks
// that touch or overlap are merged.
func hunks(script []edit, context int) []hunk {
	var out []hunk
	for i, e := range script {
		if e.kind == editKeep {
			continue
		}
		start := max(i-context, 0)
		end := min(i+context+1, len(script))
		if n := len(out); n > 0 && start <= out[n-1].end {
			out[n-1].end = end
			continue
		}
		out = append(out, hunk{start, end})
	}
	return out
}

func formatUnified(script []edit, context int, oldName, newName string) string {
	hs := hunks(script, context)
	if len(hs) == 0 {
		return ""
	}

	// oldAt[i] and newAt[i] are the 1-based line numbers at script position i.
	oldAt := make([]int, len(script)+1)
	newAt := make([]int, len(script)+1)
	oldAt[0], newAt[0] = 1, 1
	for i, e := range script {
		oldAt[i+1], newAt[i+1] = oldAt[i], newAt[i]
		if e.kind != editAdd {
			oldAt[i+1]++
		}
		if e.kind != editDel {
			newAt[i+1]++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range hs {
		fmt.Fprintf(&b, "@@ -%s +%s @@\n",
			hunkRange(oldAt[h.start], oldAt[h.end]-oldAt[h.start]),
			hunkRange(newAt[h.start], newAt[h.end]-newAt[h.start]))
		for _, e := range script[h.start:h.end] {
			b.WriteByte(byte(e.kind))
			b.WriteString(e.text)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// hunkRange renders "start,count"; an empty range names the line before it.
func hunkRange(start, count int) string {
	if count == 0 {
		start--
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Diff renders the resolved parameters of two configurations as a unified
// diff. contextLines defaults to 3 if <= 0. Returns "" when they match.
// Secrets are compared in clear and printed masked.
func Diff(oldCfg, newCfg *Config, contextLines int, oldName, newName string) string {
	if contextLines <= 0 {
		contextLines = 3
	}
	script := editScript(splitLines(canonicalText(oldCfg, true)), splitLines(canonicalText(newCfg, true)))
	for i := range script {
		script[i].text = redactLine(script[i].text)
	}
	return formatUnified(script, contextLines, oldName, newName)
}

// redactLine masks the value of a canonical Key=Value line for secrets.
func redactLine(line string) string {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return line
	}
	return key + "=" + displayValue(key, value, false)
}

// ChangedKeys lists the parameters whose resolved values differ between two
// configurations, sorted.
func ChangedKeys(oldCfg, newCfg *Config) []string {
	seen := map[string]bool{}
	var out []string
	mark := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	oldVals, newVals := oldCfg.Values(), newCfg.Values()
	for k, v := range oldVals {
		if nv, ok := newVals[k]; !ok || nv != v {
			mark(k)
		}
	}
	for k := range newVals {
		if _, ok := oldVals[k]; !ok {
			mark(k)
		}
	}
	for k, vals := range oldCfg.lists {
		if !slices.Equal(vals, newCfg.lists[k]) {
			mark(k)
		}
	}
	for k := range newCfg.lists {
		if _, ok := oldCfg.lists[k]; !ok {
			mark(k)
		}
	}
	sort.Strings(out)
	return out
}
