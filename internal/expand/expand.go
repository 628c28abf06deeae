// Package expand implements the ordered, fixed word-expansion pipeline
// of spec.md §4.4: tilde, parameter/arithmetic/command substitution,
// brace expansion, field splitting, pathname globbing, and quote
// removal. The pipeline order is never reordered; each step is its own
// function so the order is visible at the call site in Word.
package expand

import (
	"os/user"
	"strconv"
	"strings"

	"github.com/sush-shell/sush/internal/arith"
	"github.com/sush-shell/sush/internal/glob"
	"github.com/sush-shell/sush/internal/token"
)

// CommandRunner executes a command-substitution body in a subshell and
// captures its standard output. Implemented by pkg/shell, which has the
// executor; kept as an interface here so expand does not import the
// executor (which itself needs to expand words), avoiding a cycle.
type CommandRunner interface {
	RunCapture(src string) (string, error)
}

// Store is the subset of vars.Store the expansion engine needs.
type Store interface {
	Get(name string) (string, bool)
	IsSet(name string) bool
	Set(name, value string)
	IndexedElements(name string) []string
	Positional() []string
}

// Context bundles everything one expansion pass needs beyond the Word
// itself: the variable store, a command runner, the configured IFS, and
// the active glob options.
type Context struct {
	Store     Store
	Runner    CommandRunner
	IFS       string
	Glob      glob.Options
	Dir       string // working directory the globber walks from
	NoGlob    bool   // set -f: pathname expansion disabled, patterns stay literal
	Unset     func(name, msg string) error // invoked for ${var:?msg}; returns the error to propagate
	ExitStatus int
	LastBgPID int
	ShellPID  int
	ShellOpts string // $- rendering
}

// Field is one expanded field: its text and whether it came from a
// quoted context (so globbing/further splitting must skip it).
type Field struct {
	Text   string
	Quoted bool
}

// Word runs the full pipeline over segs and returns the resulting argv
// fields (spec.md §4.4). assignmentRHS disables splitting/globbing, as
// spec.md §4.4's closing paragraph requires for assignment values.
func Word(segs []token.Segment, ctx *Context, assignmentRHS bool) ([]string, error) {
	combos := expandBraces(segs)

	// Each brace alternative is a candidate word in its own right (spec.md
	// §4.4 step 0 runs before everything else and fans one word out into
	// several); only segments within the same alternative merge into a
	// single field, alternatives themselves never do.
	var fields []Field
	for _, combo := range combos {
		var comboFields []Field
		for i, seg := range combo {
			atWordStart := i == 0
			expanded, err := expandSegment(seg, ctx, atWordStart)
			if err != nil {
				return nil, err
			}
			comboFields = mergeFields(comboFields, expanded)
		}
		fields = append(fields, comboFields...)
	}

	if !assignmentRHS {
		fields = splitFields(fields, ctx.ifsOrDefault())
	}

	results := make([]string, 0, len(fields))
	if !assignmentRHS {
		for _, f := range fields {
			if f.Quoted || ctx.NoGlob || !glob.HasMeta(f.Text, ctx.Glob) {
				results = append(results, removeQuoteMarkers(f.Text))
				continue
			}
			matches, err := glob.Expand(ctx.dirOrDefault(), f.Text, ctx.Glob)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				if ctx.Glob.FailGlob {
					return nil, &ExpansionError{Msg: "no match: " + f.Text}
				}
				results = append(results, f.Text)
				continue
			}
			results = append(results, matches...)
		}
	} else {
		var sb strings.Builder
		for _, f := range fields {
			sb.WriteString(f.Text)
		}
		results = append(results, sb.String())
	}

	return results, nil
}

func (c *Context) ifsOrDefault() string {
	if c.IFS != "" {
		return c.IFS
	}
	if v, ok := c.Store.Get("IFS"); ok {
		return v
	}
	return " \t\n"
}

func (c *Context) dirOrDefault() string {
	if c.Dir != "" {
		return c.Dir
	}
	return "."
}

// ExpansionError is returned for spec.md §7.2's "bad substitution /
// ambiguous redirect / unset under :?" class of errors.
type ExpansionError struct{ Msg string }

func (e *ExpansionError) Error() string { return e.Msg }

// ---- per-segment expansion ----

func expandSegment(seg token.Segment, ctx *Context, atWordStart bool) ([]Field, error) {
	switch seg.Kind {
	case token.SegLiteral:
		return []Field{{Text: seg.Value, Quoted: seg.Quoted}}, nil

	case token.SegSingleQuoted:
		return []Field{{Text: seg.Value, Quoted: true}}, nil

	case token.SegEscaped:
		return []Field{{Text: seg.Value, Quoted: true}}, nil

	case token.SegDoubleQuoted:
		var parts []Field
		for i, p := range seg.Parts {
			sub, err := expandSegment(p, ctx, false && i == 0)
			if err != nil {
				return nil, err
			}
			for j := range sub {
				sub[j].Quoted = true
			}
			parts = joinQuotedParts(parts, sub)
		}
		if len(parts) == 0 {
			return []Field{{Text: "", Quoted: true}}, nil
		}
		return parts, nil

	case token.SegTildePrefix:
		return []Field{{Text: expandTilde(seg.Value, ctx), Quoted: false}}, nil

	case token.SegParamExpansion:
		return expandParam(seg.Value, ctx)

	case token.SegArithSubst:
		v, err := evalArithSubst(seg.Value, ctx)
		if err != nil {
			return nil, err
		}
		return []Field{{Text: v, Quoted: false}}, nil

	case token.SegCommandSubst:
		out, err := ctx.Runner.RunCapture(seg.Value)
		if err != nil {
			return nil, err
		}
		out = strings.TrimRight(out, "\n")
		return []Field{{Text: out, Quoted: seg.Quoted}}, nil

	default:
		return []Field{{Text: seg.Value, Quoted: seg.Quoted}}, nil
	}
}

// joinQuotedParts concatenates the last field of acc with the first
// field of next when both are simple continuations, preserving the
// special "$@"-splitting semantics: only an expansion that itself
// produces multiple fields (positional params under @) introduces a new
// field boundary.
func joinQuotedParts(acc, next []Field) []Field {
	if len(acc) == 0 {
		return next
	}
	if len(next) == 0 {
		return acc
	}
	merged := append([]Field{}, acc[:len(acc)-1]...)
	merged = append(merged, Field{Text: acc[len(acc)-1].Text + next[0].Text, Quoted: true})
	merged = append(merged, next[1:]...)
	return merged
}

func mergeFields(acc, next []Field) []Field {
	if len(acc) == 0 {
		return next
	}
	if len(next) == 0 {
		return acc
	}
	merged := append([]Field{}, acc[:len(acc)-1]...)
	merged = append(merged, Field{Text: acc[len(acc)-1].Text + next[0].Text, Quoted: acc[len(acc)-1].Quoted && next[0].Quoted})
	merged = append(merged, next[1:]...)
	return merged
}

// expandTilde implements spec.md §4.4 step 1.
func expandTilde(suffix string, ctx *Context) string {
	switch {
	case suffix == "":
		if h, ok := ctx.Store.Get("HOME"); ok {
			return h
		}
		return "~"
	case suffix == "+":
		if v, ok := ctx.Store.Get("PWD"); ok {
			return v
		}
		return "~+"
	case suffix == "-":
		if v, ok := ctx.Store.Get("OLDPWD"); ok {
			return v
		}
		return "~-"
	default:
		u, err := user.Lookup(suffix)
		if err != nil {
			return "~" + suffix
		}
		return u.HomeDir
	}
}

// evalArithSubst handles `$(( expr ))`, including the `[#B]`/`[##B]`
// output-base prefix forms from spec.md §4.6.
func evalArithSubst(body string, ctx *Context) (string, error) {
	trimmed := strings.TrimSpace(body)
	base := 0
	compact := false
	if strings.HasPrefix(trimmed, "[#") {
		end := strings.IndexByte(trimmed, ']')
		if end > 0 {
			tag := trimmed[2:end]
			compact = strings.HasPrefix(tag, "#")
			tag = strings.TrimPrefix(tag, "#")
			if n, err := strconv.Atoi(tag); err == nil {
				base = n
			}
			trimmed = strings.TrimSpace(trimmed[end+1:])
		}
	}
	v, err := arith.Eval(trimmed, storeAdapter{ctx.Store})
	if err != nil {
		return "", err
	}
	if base > 0 {
		if v.Kind != arith.KindInt {
			return "", &ExpansionError{Msg: "arith: output base requires an integer value"}
		}
		return arith.FormatBase(v.I, base, compact)
	}
	return v.String(), nil
}

type storeAdapter struct{ s Store }

func (a storeAdapter) Get(name string) (string, bool) { return a.s.Get(name) }
func (a storeAdapter) Set(name, value string)          { a.s.Set(name, value) }

// removeQuoteMarkers is the quote-removal step (spec.md §4.4 step 8). By
// the time a field reaches here, quote markers are already absent from
// the text (the lexer's double/single-quote handlers stripped them while
// building segments), so this is a no-op retained as the pipeline's
// explicit final stage for readability and to keep the eight steps
// traceable one-to-one with spec.md §4.4.
func removeQuoteMarkers(s string) string { return s }

// ---- field splitting (spec.md §4.4 step 6) ----

func splitFields(fields []Field, ifs string) []Field {
	var out []Field
	for _, f := range fields {
		if f.Quoted || ifs == "" {
			out = append(out, f)
			continue
		}
		for _, piece := range splitOnIFS(f.Text, ifs) {
			out = append(out, Field{Text: piece})
		}
	}
	// drop fields that became empty purely from splitting unquoted
	// expansions, but keep a single empty quoted field ("" -> one field)
	var cleaned []Field
	for _, f := range out {
		if f.Text == "" && !f.Quoted {
			continue
		}
		cleaned = append(cleaned, f)
	}
	return cleaned
}

func splitOnIFS(s, ifs string) []string {
	isSep := func(r rune) bool { return strings.ContainsRune(ifs, r) }
	var fields []string
	var cur strings.Builder
	inField := false
	for _, r := range s {
		if isSep(r) {
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
			continue
		}
		cur.WriteRune(r)
		inField = true
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields
}

// ---- brace expansion (spec.md §4.4 step 5) ----
//
// Brace expansion is purely textual and runs before segment expansion,
// so it operates on the raw literal runs of a word's segments, leaving
// non-literal segments (expansions) untouched by splitting them out of
// the brace machinery entirely: a `{a,b}` next to a `$x` only expands
// the literal part.

// expandBraces returns every alternative segment sequence a word's brace
// groups produce: one literal segment containing N comma/range
// alternatives turns one combo into N combos, each otherwise identical to
// the original segment sequence. A word with two brace groups yields the
// full cross product, matching bash's `a{1,2}b{x,y}` behavior.
func expandBraces(segs []token.Segment) [][]token.Segment {
	combos := [][]token.Segment{nil}
	for _, seg := range segs {
		alts, ok := []string(nil), false
		if seg.Kind == token.SegLiteral {
			alts, ok = braceAlternatives(seg.Value)
		}
		if !ok {
			for i := range combos {
				combos[i] = append(combos[i], seg)
			}
			continue
		}
		next := make([][]token.Segment, 0, len(combos)*len(alts))
		for _, combo := range combos {
			for _, a := range alts {
				nc := make([]token.Segment, len(combo), len(combo)+1)
				copy(nc, combo)
				nc = append(nc, token.Segment{Kind: token.SegLiteral, Value: a})
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

// braceAlternatives expands one literal string containing at most one
// top-level `{...}` group into its comma/range alternatives, returning
// ok=false if there is no balanced top-level brace to expand (spec.md
// §4.4: "an unmatched `{` leaves the word untouched").
func braceAlternatives(s string) ([]string, bool) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return nil, false
	}
	depth := 0
	closeIdx := -1
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				closeIdx = i
			}
		}
		if closeIdx >= 0 {
			break
		}
	}
	if closeIdx < 0 {
		return nil, false
	}
	prefix, body, suffix := s[:open], s[open+1:closeIdx], s[closeIdx+1:]

	if parts := splitTopLevelComma(body); len(parts) > 1 {
		var results []string
		for _, p := range parts {
			results = append(results, prefix+p+suffix)
		}
		return expandAllRecursively(results), true
	}

	if lo, hi, step, ok := parseRange(body); ok {
		var results []string
		if step == 0 {
			step = 1
		}
		if lo <= hi {
			for v := lo; v <= hi; v += step {
				results = append(results, prefix+strconv.Itoa(v)+suffix)
			}
		} else {
			if step > 0 {
				step = -step
			}
			for v := lo; v >= hi; v += step {
				results = append(results, prefix+strconv.Itoa(v)+suffix)
			}
		}
		return expandAllRecursively(results), true
	}

	return nil, false
}

func expandAllRecursively(in []string) []string {
	var out []string
	for _, s := range in {
		if more, ok := braceAlternatives(s); ok {
			out = append(out, more...)
		} else {
			out = append(out, s)
		}
	}
	return out
}

func splitTopLevelComma(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseRange(body string) (lo, hi, step int, ok bool) {
	parts := strings.Split(body, "..")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, false
	}
	lo, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, 0, false
	}
	if len(parts) == 3 {
		s, err := strconv.Atoi(parts[2])
		if err != nil {
			return 0, 0, 0, false
		}
		step = s
	}
	return lo, hi, step, true
}

// ---- parameter expansion (spec.md §4.4 step 2) ----

func expandParam(body string, ctx *Context) ([]Field, error) {
	name, op, word, hasOp := splitParamOp(body)

	switch name {
	case "?":
		return []Field{{Text: strconv.Itoa(ctx.ExitStatus)}}, nil
	case "$":
		return []Field{{Text: strconv.Itoa(ctx.ShellPID)}}, nil
	case "!":
		return []Field{{Text: strconv.Itoa(ctx.LastBgPID)}}, nil
	case "#":
		return []Field{{Text: strconv.Itoa(len(ctx.Store.Positional()))}}, nil
	case "-":
		return []Field{{Text: ctx.ShellOpts}}, nil
	case "@", "*":
		return expandPositionalAll(name, ctx), nil
	}

	if n, err := strconv.Atoi(name); err == nil {
		args := ctx.Store.Positional()
		if n == 0 {
			return []Field{{Text: "sush"}}, nil
		}
		if n-1 < len(args) {
			return []Field{{Text: args[n-1]}}, nil
		}
		return []Field{{Text: ""}}, nil
	}

	arrName, idx, isArray := splitArraySubscript(name)
	if isArray {
		if idx == "@" || idx == "*" {
			elems := ctx.Store.IndexedElements(arrName)
			if idx == "@" {
				fields := make([]Field, 0, len(elems))
				for _, e := range elems {
					fields = append(fields, Field{Text: e, Quoted: true})
				}
				if len(fields) == 0 {
					return nil, nil
				}
				return fields, nil
			}
			return []Field{{Text: strings.Join(elems, " "), Quoted: true}}, nil
		}
	}

	val, set := ctx.Store.Get(name)

	if !hasOp {
		if !set {
			return []Field{{Text: ""}}, nil
		}
		return []Field{{Text: val}}, nil
	}

	isNullOp := len(op) > 0 && op[0] == ':'
	bareOp := strings.TrimPrefix(op, ":")
	unsetOrNull := !set || (isNullOp && val == "")

	switch bareOp {
	case "-":
		if unsetOrNull {
			return expandWordField(word, ctx)
		}
		return []Field{{Text: val}}, nil
	case "=":
		if unsetOrNull {
			fields, err := expandWordField(word, ctx)
			if err != nil {
				return nil, err
			}
			var sb strings.Builder
			for _, f := range fields {
				sb.WriteString(f.Text)
			}
			ctx.Store.Set(name, sb.String())
			return []Field{{Text: sb.String()}}, nil
		}
		return []Field{{Text: val}}, nil
	case "?":
		if unsetOrNull {
			msg := word
			if fields, err := expandWordField(word, ctx); err == nil && len(fields) > 0 {
				msg = fields[0].Text
			}
			if ctx.Unset != nil {
				return nil, ctx.Unset(name, msg)
			}
			return nil, &ExpansionError{Msg: "sush: " + name + ": " + msg}
		}
		return []Field{{Text: val}}, nil
	case "+":
		if unsetOrNull {
			return []Field{{Text: ""}}, nil
		}
		return expandWordField(word, ctx)
	default:
		return nil, &ExpansionError{Msg: "sush: bad substitution: " + body}
	}
}

func expandPositionalAll(which string, ctx *Context) []Field {
	args := ctx.Store.Positional()
	if which == "@" {
		if len(args) == 0 {
			return nil
		}
		fields := make([]Field, len(args))
		for i, a := range args {
			fields[i] = Field{Text: a, Quoted: true}
		}
		return fields
	}
	ifs := ctx.ifsOrDefault()
	sep := " "
	if ifs != "" {
		sep = string(ifs[0])
	}
	return []Field{{Text: strings.Join(args, sep), Quoted: true}}
}

// expandWordField expands a raw default/alternate-value word body for the
// `:-`/`:=`/`:?`/`:+` forms with expandSimpleText (no re-lexing) and
// returns it as one unquoted field, which Word's field splitting still
// applies to.
func expandWordField(raw string, ctx *Context) ([]Field, error) {
	return []Field{{Text: expandSimpleText(raw, ctx)}}, nil
}

// expandSimpleText performs a minimal $var/${var} substitution over raw
// text for use inside default-value words, which themselves may
// reference other parameters (spec.md §4.4's `${A:="aaa"}` example).
func expandSimpleText(raw string, ctx *Context) string {
	var sb strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			sb.WriteByte(raw[i+1])
			i += 2
			continue
		}
		if raw[i] == '$' && i+1 < len(raw) {
			j := i + 1
			braced := false
			if raw[j] == '{' {
				braced = true
				j++
			}
			start := j
			for j < len(raw) && (isIdentRune(rune(raw[j]))) {
				j++
			}
			name := raw[start:j]
			if name != "" {
				if v, ok := ctx.Store.Get(name); ok {
					sb.WriteString(v)
				}
				if braced && j < len(raw) && raw[j] == '}' {
					j++
				}
				i = j
				continue
			}
		}
		sb.WriteByte(raw[i])
		i++
	}
	return sb.String()
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// splitParamOp splits a `${...}` body into name, operator, word, and
// whether an operator was present at all.
func splitParamOp(body string) (name, op, word string, hasOp bool) {
	ops := []string{":-", ":=", ":?", ":+", "-", "=", "?", "+"}
	best := -1
	bestOp := ""
	for _, o := range ops {
		if idx := strings.Index(body, o); idx >= 0 && (best == -1 || idx < best) {
			best = idx
			bestOp = o
		}
	}
	if best < 0 {
		return body, "", "", false
	}
	return body[:best], bestOp, body[best+len(bestOp):], true
}

func splitArraySubscript(name string) (arr, idx string, ok bool) {
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return "", "", false
	}
	return name[:open], name[open+1 : len(name)-1], true
}
