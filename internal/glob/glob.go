// Package glob implements pathname expansion (spec.md §4.5): directory
// walking against `?`,`*`,`[...]` patterns, extended-glob operators
// (`?() *() +() @() !()`), and the dotfile-hiding rule. Literal
// `?`,`*`,`[...]` matching and the directory walk are delegated to
// doublestar, which already implements POSIX bracket classes and
// recursive `**`; the extended-glob operators are layered on top via a
// small backtracking matcher ported from the teacher's state-machine
// style, since doublestar has no notion of them.
package glob

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Options controls matching behavior toggled by shell options.
type Options struct {
	ExtGlobEnabled bool // shopt -s/-u extglob (spec.md §4.4 step 7)
	FailGlob       bool // failglob: error instead of leaving the pattern literal
}

// HasMeta reports whether pattern contains any character that makes it a
// glob pattern rather than a literal path, so the expansion engine only
// invokes the walker when needed (spec.md §4.4 step 7).
func HasMeta(pattern string, opts Options) bool {
	if strings.ContainsAny(pattern, "*?[") {
		return true
	}
	if opts.ExtGlobEnabled && containsExtGlobOperator(pattern) {
		return true
	}
	return false
}

func containsExtGlobOperator(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		if strings.ContainsRune("?*+@!", rune(pattern[i])) && i+1 < len(pattern) && pattern[i+1] == '(' {
			return true
		}
	}
	return false
}

// Expand matches pattern (interpreted relative to dir) against the
// filesystem and returns the sorted list of matches. If nothing matches,
// it returns (nil, nil); the caller decides whether to fall back to the
// literal pattern or, under failglob, to error.
func Expand(dir, pattern string, opts Options) ([]string, error) {
	// Fast path: no extglob operators present, hand the whole pattern to
	// doublestar directly (it already implements *, ?, [...] and **).
	if !opts.ExtGlobEnabled || !containsExtGlobOperator(pattern) {
		return expandDoublestar(dir, pattern)
	}
	return expandWithExtGlob(dir, pattern, opts)
}

func expandDoublestar(dir, pattern string) ([]string, error) {
	full := filepath.Join(dir, pattern)
	rel, err := filepath.Rel(dir, full)
	if err != nil {
		rel = pattern
	}
	matches, err := doublestar.Glob(os.DirFS(dir), filepath.ToSlash(rel))
	if err != nil {
		return nil, err
	}
	matches = filterHidden(rel, matches)
	sort.Strings(matches)
	return matches, nil
}

// filterHidden applies spec.md §4.5's dotfile rule: a path component
// beginning with '.' is only matched if the corresponding pattern
// component's first literal character is also '.'. doublestar does not
// enforce this (it is a bash-ism, not a POSIX glob rule), so it is
// applied as a post-filter here.
func filterHidden(pattern string, matches []string) []string {
	patComponents := strings.Split(pattern, "/")
	out := matches[:0]
outer:
	for _, m := range matches {
		comps := strings.Split(m, "/")
		for i, c := range comps {
			if strings.HasPrefix(c, ".") {
				pc := ""
				if i < len(patComponents) {
					pc = patComponents[i]
				}
				if !strings.HasPrefix(pc, ".") {
					continue outer
				}
			}
		}
		out = append(out, m)
	}
	return out
}

// expandWithExtGlob walks the directory tree component by component,
// using the extglob NFA matcher for any component that contains an
// extglob operator and doublestar.Match for the rest.
func expandWithExtGlob(dir, pattern string, opts Options) ([]string, error) {
	comps := strings.Split(filepath.ToSlash(pattern), "/")
	results := []string{""}
	for _, comp := range comps {
		if comp == "" {
			continue
		}
		var next []string
		for _, prefix := range results {
			base := dir
			if prefix != "" {
				base = filepath.Join(dir, prefix)
			}
			entries, err := os.ReadDir(base)
			if err != nil {
				continue
			}
			matcher := compileComponent(comp)
			for _, ent := range entries {
				name := ent.Name()
				if strings.HasPrefix(name, ".") && !strings.HasPrefix(comp, ".") {
					continue
				}
				if matcher(name) {
					if prefix == "" {
						next = append(next, name)
					} else {
						next = append(next, prefix+"/"+name)
					}
				}
			}
		}
		results = next
		if len(results) == 0 {
			return nil, nil
		}
	}
	sort.Strings(results)
	return results, nil
}

// MatchString reports whether pattern matches s as a whole (not a
// directory walk): used by `case` pattern matching, which applies the
// same glob grammar to an in-memory string rather than the file system.
func MatchString(pattern, s string, opts Options) bool {
	return compileComponent(pattern)(s)
}

func compileComponent(comp string) func(string) bool {
	if containsExtGlobOperator(comp) {
		node, _ := parseExtGlob(comp)
		return func(s string) bool { return node.match(s) }
	}
	return func(s string) bool {
		ok, _ := doublestar.Match(comp, s)
		return ok
	}
}

// ---- extended-glob NFA ----
//
// The grammar handled here: a pattern is a sequence of literals, `?`,
// `*`, `[...]` bracket expressions, and extglob groups
// `OP(alt|alt|...)` where OP is one of ?*+@!. Matching is a simple
// backtracking matcher over the component string, mirroring the
// teacher's rune-by-rune state-machine approach (pkg/shell/parser.go)
// rather than building a literal automaton.

type egNode interface {
	// match reports whether node matches the entirety of s.
	match(s string) bool
}

type egSeq struct{ items []egItem }

func (n egSeq) match(s string) bool {
	return matchSeq(n.items, s)
}

type egItem interface {
	// tryMatch attempts to consume a prefix of s and calls k with each
	// possible remainder (backtracking matcher).
	tryMatch(s string, k func(rest string) bool) bool
}

func matchSeq(items []egItem, s string) bool {
	if len(items) == 0 {
		return s == ""
	}
	return items[0].tryMatch(s, func(rest string) bool {
		return matchSeq(items[1:], rest)
	})
}

type litItem struct{ r rune }

func (it litItem) tryMatch(s string, k func(string) bool) bool {
	rs := []rune(s)
	if len(rs) == 0 || rs[0] != it.r {
		return false
	}
	return k(string(rs[1:]))
}

type anyItem struct{}

func (anyItem) tryMatch(s string, k func(string) bool) bool {
	rs := []rune(s)
	if len(rs) == 0 {
		return false
	}
	return k(string(rs[1:]))
}

type starItem struct{}

func (starItem) tryMatch(s string, k func(string) bool) bool {
	rs := []rune(s)
	for i := 0; i <= len(rs); i++ {
		if k(string(rs[i:])) {
			return true
		}
	}
	return false
}

type bracketItem struct {
	negate bool
	chars  string
	ranges [][2]rune
}

func (it bracketItem) tryMatch(s string, k func(string) bool) bool {
	rs := []rune(s)
	if len(rs) == 0 {
		return false
	}
	c := rs[0]
	in := strings.ContainsRune(it.chars, c)
	if !in {
		for _, r := range it.ranges {
			if c >= r[0] && c <= r[1] {
				in = true
				break
			}
		}
	}
	if it.negate {
		in = !in
	}
	if !in {
		return false
	}
	return k(string(rs[1:]))
}

// extGroupItem implements one of ?() *() +() @() !() over a set of
// sub-patterns (egNode alternatives).
type extGroupItem struct {
	op   byte // '?','*','+','@','!'
	alts []egNode
}

func (it extGroupItem) tryMatch(s string, k func(string) bool) bool {
	switch it.op {
	case '@':
		for _, alt := range it.alts {
			if ok, rest := splitMatch(alt, s); ok {
				if k(rest) {
					return true
				}
			}
		}
		return false
	case '?':
		if k(s) {
			return true
		}
		for _, alt := range it.alts {
			if ok, rest := splitMatch(alt, s); ok {
				if k(rest) {
					return true
				}
			}
		}
		return false
	case '*':
		return it.matchStar(s, k, 0)
	case '+':
		return it.matchStar(s, k, 1)
	case '!':
		// Matches anything that is NOT matched by any alternative,
		// consuming a run of characters before the rest of the pattern.
		rs := []rune(s)
		for i := len(rs); i >= 0; i-- {
			candidate := string(rs[:i])
			matchedAny := false
			for _, alt := range it.alts {
				if alt.match(candidate) {
					matchedAny = true
					break
				}
			}
			if !matchedAny && k(string(rs[i:])) {
				return true
			}
		}
		return false
	}
	return false
}

func (it extGroupItem) matchStar(s string, k func(string) bool, min int) bool {
	var rec func(rest string, count int) bool
	rec = func(rest string, count int) bool {
		if count >= min && k(rest) {
			return true
		}
		for _, alt := range it.alts {
			if ok, remainder := splitMatch(alt, rest); ok && remainder != rest {
				if rec(remainder, count+1) {
					return true
				}
			}
		}
		return false
	}
	return rec(s, 0)
}

// splitMatch tries every prefix split of s against alt (treated as a
// sequence matched against a prefix, not the whole string).
func splitMatch(alt egNode, s string) (bool, string) {
	seq, ok := alt.(egSeq)
	if !ok {
		if alt.match(s) {
			return true, ""
		}
		return false, s
	}
	rs := []rune(s)
	for i := len(rs); i >= 0; i-- {
		if matchSeq(seq.items, string(rs[:i])) {
			return true, string(rs[i:])
		}
	}
	return false, s
}

type extGroupSeqItem struct{ g extGroupItem }

func (it extGroupSeqItem) tryMatch(s string, k func(string) bool) bool {
	return it.g.tryMatch(s, k)
}

// parseExtGlob compiles a component pattern into a matchable egNode.
func parseExtGlob(pattern string) (egNode, error) {
	items, _, err := parseItems([]rune(pattern), 0)
	if err != nil {
		return nil, err
	}
	return egSeq{items: items}, nil
}

func parseItems(r []rune, i int) ([]egItem, int, error) {
	var items []egItem
	for i < len(r) {
		switch {
		case r[i] == ')' || r[i] == '|':
			return items, i, nil
		case strings.ContainsRune("?*+@!", r[i]) && i+1 < len(r) && r[i+1] == '(':
			op := byte(r[i])
			alts, ni, err := parseAlternatives(r, i+2)
			if err != nil {
				return nil, 0, err
			}
			i = ni
			items = append(items, extGroupSeqItem{g: extGroupItem{op: op, alts: alts}})
		case r[i] == '?':
			items = append(items, anyItem{})
			i++
		case r[i] == '*':
			items = append(items, starItem{})
			i++
		case r[i] == '[':
			bi, ni, err := parseBracket(r, i)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, bi)
			i = ni
		case r[i] == '\\' && i+1 < len(r):
			items = append(items, litItem{r: r[i+1]})
			i += 2
		default:
			items = append(items, litItem{r: r[i]})
			i++
		}
	}
	return items, i, nil
}

func parseAlternatives(r []rune, i int) ([]egNode, int, error) {
	var alts []egNode
	for {
		items, ni, err := parseItems(r, i)
		if err != nil {
			return nil, 0, err
		}
		alts = append(alts, egSeq{items: items})
		i = ni
		if i < len(r) && r[i] == '|' {
			i++
			continue
		}
		if i < len(r) && r[i] == ')' {
			i++
		}
		return alts, i, nil
	}
}

// parseBracket handles `[...]` honoring `^` negation and the rule that a
// `]` immediately after `[` or `[^` is literal (spec.md §4.5).
func parseBracket(r []rune, i int) (bracketItem, int, error) {
	bi := bracketItem{}
	i++ // consume '['
	if i < len(r) && r[i] == '^' {
		bi.negate = true
		i++
	}
	first := true
	var sb strings.Builder
	for i < len(r) {
		if r[i] == ']' && !first {
			i++
			bi.chars = sb.String()
			return bi, i, nil
		}
		first = false
		if r[i] == '\\' && i+1 < len(r) {
			sb.WriteRune(r[i+1])
			i += 2
			continue
		}
		if i+2 < len(r) && r[i+1] == '-' && r[i+2] != ']' {
			bi.ranges = append(bi.ranges, [2]rune{r[i], r[i+2]})
			i += 3
			continue
		}
		sb.WriteRune(r[i])
		i++
	}
	bi.chars = sb.String()
	return bi, i, nil
}
