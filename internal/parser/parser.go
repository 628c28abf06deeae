// Package parser builds the command tree (internal/ast) from the token
// stream produced by internal/lexer, using recursive descent (spec.md
// §4.3).
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sush-shell/sush/internal/ast"
	"github.com/sush-shell/sush/internal/lexer"
	"github.com/sush-shell/sush/internal/token"
)

// SyntaxError reports a parse failure with the line/column of the
// offending token, matching spec.md §4.3's requirement and status 2.
type SyntaxError struct {
	Pos     token.Pos
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Message)
}

// ErrNeedMore is re-exported from the lexer so callers (the input
// feeder) can catch it without importing internal/lexer directly.
var ErrNeedMore = lexer.ErrNeedMore

// Parse tokenizes and parses src into a top-level List. If src ends with
// an unclosed construct, ErrNeedMore is returned so the feeder can
// request another line and retry with the concatenated text.
func Parse(src string) (*ast.List, error) {
	toks, err := lexer.New(src).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	list, err := p.parseProgram()
	if err != nil {
		// A missing closing keyword or bracket at the EOF token means the
		// input ended inside an open compound command. Other errors at EOF,
		// such as a dangling `|`, stay syntax errors.
		if se, ok := err.(*SyntaxError); ok && p.atEOF() && strings.HasPrefix(se.Message, "expected '") {
			return nil, ErrNeedMore
		}
		return nil, err
	}
	return list, nil
}

type parser struct {
	toks []token.Token
	pos  int
}

func (p *parser) cur() token.Token  { return p.toks[p.pos] }
func (p *parser) peekAt(n int) token.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool { return p.cur().Kind == token.EOF }

func (p *parser) errf(format string, args ...interface{}) error {
	return &SyntaxError{Pos: p.cur().Pos, Message: fmt.Sprintf(format, args...)}
}

// skipLinebreak consumes any run of newline tokens.
func (p *parser) skipLinebreak() {
	for p.cur().Kind == token.Newline {
		p.advance()
	}
}

func (p *parser) isSep() bool {
	t := p.cur()
	return t.Kind == token.Newline || (t.Kind == token.Operator && t.Text == ";")
}

func (p *parser) isOp(text string) bool {
	t := p.cur()
	return t.Kind == token.Operator && t.Text == text
}

func (p *parser) isReserved(text string) bool {
	t := p.cur()
	return t.Kind == token.Reserved && t.Text == text
}

// parseProgram = linebreak ( and_or (sep and_or)* sep? )?
func (p *parser) parseProgram() (*ast.List, error) {
	p.skipLinebreak()
	list := &ast.List{}
	for !p.atEOF() {
		andOr, background, err := p.parseAndOrStatement()
		if err != nil {
			return nil, err
		}
		if andOr != nil {
			list.Items = append(list.Items, ast.ListItem{AndOr: andOr, Background: background})
		}
		if p.isSep() {
			p.advance()
			p.skipLinebreak()
			continue
		}
		break
	}
	if !p.atEOF() {
		return nil, p.errf("unexpected token %q", p.cur().Text)
	}
	return list, nil
}

func (p *parser) parseAndOrStatement() (*ast.AndOr, bool, error) {
	andOr, err := p.parseAndOr()
	if err != nil {
		return nil, false, err
	}
	background := false
	if p.isOp("&") {
		p.advance()
		background = true
	}
	return andOr, background, nil
}

// and_or = pipeline (('&&'|'||') linebreak pipeline)*
func (p *parser) parseAndOr() (*ast.AndOr, error) {
	first, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	node := &ast.AndOr{First: first}
	for p.isOp("&&") || p.isOp("||") {
		op := ast.OpAnd
		if p.cur().Text == "||" {
			op = ast.OpOr
		}
		p.advance()
		p.skipLinebreak()
		next, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		node.Rest = append(node.Rest, ast.AndOrLink{Op: op, Pipeline: next})
	}
	return node, nil
}

// pipeline = '!'? command (('|'|'|&') linebreak command)*
func (p *parser) parsePipeline() (*ast.Pipeline, error) {
	pl := &ast.Pipeline{}
	if p.isReserved("!") {
		p.advance()
		pl.Negate = true
	}
	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	pl.Commands = append(pl.Commands, cmd)
	pl.StderrOut = append(pl.StderrOut, false)

	for p.isOp("|") || p.isOp("|&") {
		stderrMerge := p.cur().Text == "|&"
		pl.StderrOut[len(pl.StderrOut)-1] = stderrMerge
		p.advance()
		p.skipLinebreak()
		next, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		pl.Commands = append(pl.Commands, next)
		pl.StderrOut = append(pl.StderrOut, false)
	}
	return pl, nil
}

func (p *parser) parseCommand() (ast.Node, error) {
	t := p.cur()

	if t.Kind == token.Reserved {
		switch t.Text {
		case "{":
			return p.parseBraceGroup()
		case "if":
			return p.parseIf()
		case "while":
			return p.parseLoop(ast.LoopWhile)
		case "until":
			return p.parseLoop(ast.LoopUntil)
		case "for":
			return p.parseFor()
		case "case":
			return p.parseCase()
		case "function":
			return p.parseFunctionKeyword()
		}
	}

	if t.Kind == token.Operator && t.Text == "(" {
		return p.parseSubshellOrArith()
	}

	// function-def shorthand: NAME '(' ')' body
	if t.Kind == token.Word && p.peekAt(1).Kind == token.Operator && p.peekAt(1).Text == "(" &&
		p.peekAt(2).Kind == token.Operator && p.peekAt(2).Text == ")" {
		return p.parseFunctionShorthand()
	}

	return p.parseSimpleCommand()
}

func (p *parser) parseBraceGroup() (ast.Node, error) {
	pos := p.cur().Pos
	p.advance() // '{'
	p.skipLinebreak()
	body, err := p.parseCompoundBody(func() bool { return p.isReserved("}") })
	if err != nil {
		return nil, err
	}
	if !p.isReserved("}") {
		return nil, p.errf("expected '}'")
	}
	p.advance()
	redirs, err := p.parseTrailingRedirections()
	if err != nil {
		return nil, err
	}
	return &ast.BraceGroup{Base: ast.NewBase(pos), Body: body, Redirections: redirs}, nil
}

// parseTrailingRedirections consumes every redirection immediately
// following a compound command's closing token (`)`, `}`, `fi`, `done`,
// `esac`). spec.md §4.8 applies these to the whole compound body, not
// to whichever simple command happens to be last inside it.
func (p *parser) parseTrailingRedirections() ([]*ast.Redirection, error) {
	var redirs []*ast.Redirection
	for {
		r, ok, err := p.tryParseRedirection()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		redirs = append(redirs, r)
	}
	return redirs, nil
}

func (p *parser) parseSubshellOrArith() (ast.Node, error) {
	pos := p.cur().Pos
	if p.peekAt(1).Kind == token.Operator && p.peekAt(1).Text == "(" {
		// (( expr )) standalone arithmetic command
		p.advance()
		p.advance()
		expr, err := p.collectUntilDoubleClose()
		if err != nil {
			return nil, err
		}
		return &ast.ArithCommand{Base: ast.NewBase(pos), Expr: expr}, nil
	}
	p.advance() // '('
	p.skipLinebreak()
	body, err := p.parseCompoundBody(func() bool { return p.isOp(")") })
	if err != nil {
		return nil, err
	}
	if !p.isOp(")") {
		return nil, p.errf("expected ')'")
	}
	p.advance()
	redirs, err := p.parseTrailingRedirections()
	if err != nil {
		return nil, err
	}
	return &ast.Subshell{Base: ast.NewBase(pos), Body: body, Redirections: redirs}, nil
}

// collectUntilDoubleClose re-assembles raw text for a `(( ... ))` body by
// walking tokens back to source text; the arithmetic evaluator re-lexes
// this text on its own, since arithmetic has its own grammar distinct
// from word/operator tokens (spec.md §4.6).
func (p *parser) collectUntilDoubleClose() (string, error) {
	var sb strings.Builder
	depth := 1
	for {
		t := p.cur()
		if t.Kind == token.EOF {
			return "", p.errf("expected '))'")
		}
		if t.Kind == token.Operator && t.Text == "(" {
			depth++
			sb.WriteString("(")
			p.advance()
			continue
		}
		if t.Kind == token.Operator && t.Text == ")" {
			depth--
			p.advance()
			if depth == 0 {
				if p.isOp(")") {
					p.advance()
				}
				return sb.String(), nil
			}
			sb.WriteString(")")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(t.Text)
		p.advance()
	}
}

func (p *parser) parseIf() (ast.Node, error) {
	pos := p.cur().Pos
	node := &ast.If{Base: ast.NewBase(pos)}
	for {
		p.advance() // 'if' or 'elif'
		cond, err := p.parseCompoundBody(func() bool { return p.isReserved("then") })
		if err != nil {
			return nil, err
		}
		if !p.isReserved("then") {
			return nil, p.errf("expected 'then'")
		}
		p.advance()
		body, err := p.parseCompoundBody(func() bool {
			return p.isReserved("elif") || p.isReserved("else") || p.isReserved("fi")
		})
		if err != nil {
			return nil, err
		}
		node.Conds = append(node.Conds, cond)
		node.Bodies = append(node.Bodies, body)
		if p.isReserved("elif") {
			continue
		}
		break
	}
	if p.isReserved("else") {
		p.advance()
		elseBody, err := p.parseCompoundBody(func() bool { return p.isReserved("fi") })
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	if !p.isReserved("fi") {
		return nil, p.errf("expected 'fi'")
	}
	p.advance()
	redirs, err := p.parseTrailingRedirections()
	if err != nil {
		return nil, err
	}
	node.Redirections = redirs
	return node, nil
}

func (p *parser) parseLoop(kind ast.LoopKind) (ast.Node, error) {
	pos := p.cur().Pos
	p.advance() // while/until
	cond, err := p.parseCompoundBody(func() bool { return p.isReserved("do") })
	if err != nil {
		return nil, err
	}
	if !p.isReserved("do") {
		return nil, p.errf("expected 'do'")
	}
	p.advance()
	body, err := p.parseCompoundBody(func() bool { return p.isReserved("done") })
	if err != nil {
		return nil, err
	}
	if !p.isReserved("done") {
		return nil, p.errf("expected 'done'")
	}
	p.advance()
	redirs, err := p.parseTrailingRedirections()
	if err != nil {
		return nil, err
	}
	return &ast.ConditionalLoop{Base: ast.NewBase(pos), Kind: kind, Cond: cond, Body: body, Redirections: redirs}, nil
}

func (p *parser) parseFor() (ast.Node, error) {
	pos := p.cur().Pos
	p.advance() // 'for'

	// C-style: for (( init; cond; step ))
	if p.isOp("(") && p.peekAt(1).Kind == token.Operator && p.peekAt(1).Text == "(" {
		p.advance()
		p.advance()
		clauses, err := p.collectUntilDoubleClose()
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(clauses, ";", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		p.skipOptionalDoSep()
		if !p.isReserved("do") {
			return nil, p.errf("expected 'do'")
		}
		p.advance()
		body, err := p.parseCompoundBody(func() bool { return p.isReserved("done") })
		if err != nil {
			return nil, err
		}
		if !p.isReserved("done") {
			return nil, p.errf("expected 'done'")
		}
		p.advance()
		redirs, err := p.parseTrailingRedirections()
		if err != nil {
			return nil, err
		}
		return &ast.ForArith{
			Base: ast.NewBase(pos),
			Init: strings.TrimSpace(parts[0]), Cond: strings.TrimSpace(parts[1]), Step: strings.TrimSpace(parts[2]),
			Body:         body,
			Redirections: redirs,
		}, nil
	}

	if p.cur().Kind != token.Word {
		return nil, p.errf("expected name after 'for'")
	}
	name := p.cur().Text
	p.advance()
	p.skipLinebreak()

	var words []*ast.Word
	hasWords := false
	if p.isReserved("in") || (p.cur().Kind == token.Word && p.cur().Text == "in") {
		hasWords = true
		p.advance()
		for p.cur().Kind == token.Word {
			words = append(words, wordFromToken(p.cur()))
			p.advance()
		}
		if p.isSep() {
			p.advance()
			p.skipLinebreak()
		}
	} else if p.isSep() {
		p.advance()
		p.skipLinebreak()
	}

	if !p.isReserved("do") {
		return nil, p.errf("expected 'do'")
	}
	p.advance()
	body, err := p.parseCompoundBody(func() bool { return p.isReserved("done") })
	if err != nil {
		return nil, err
	}
	if !p.isReserved("done") {
		return nil, p.errf("expected 'done'")
	}
	p.advance()
	redirs, err := p.parseTrailingRedirections()
	if err != nil {
		return nil, err
	}

	node := &ast.ForIn{Base: ast.NewBase(pos), Name: name, Body: body, Redirections: redirs}
	if hasWords {
		node.Words = words
	}
	return node, nil
}

func (p *parser) skipOptionalDoSep() {
	if p.isSep() {
		p.advance()
		p.skipLinebreak()
	}
}

func (p *parser) parseCase() (ast.Node, error) {
	pos := p.cur().Pos
	p.advance() // 'case'
	if p.cur().Kind != token.Word {
		return nil, p.errf("expected word after 'case'")
	}
	subject := wordFromToken(p.cur())
	p.advance()
	p.skipLinebreak()
	if !p.isReserved("in") && !(p.cur().Kind == token.Word && p.cur().Text == "in") {
		return nil, p.errf("expected 'in'")
	}
	p.advance()
	p.skipLinebreak()

	node := &ast.Case{Base: ast.NewBase(pos), Subject: subject}

	for !p.isReserved("esac") && !p.atEOF() {
		if p.isOp("(") {
			p.advance()
		}
		var pats []*ast.Word
		for {
			if p.cur().Kind != token.Word && p.cur().Kind != token.Reserved {
				return nil, p.errf("expected pattern in case item")
			}
			pats = append(pats, wordFromToken(p.cur()))
			p.advance()
			if p.isOp("|") {
				p.advance()
				continue
			}
			break
		}
		if !p.isOp(")") {
			return nil, p.errf("expected ')' after case pattern")
		}
		p.advance()
		p.skipLinebreak()

		body, err := p.parseCompoundBody(func() bool {
			return p.isOp(";;") || p.isOp(";&") || p.isOp(";;&") || p.isReserved("esac")
		})
		if err != nil {
			return nil, err
		}

		term := ast.TermBreak
		if p.isOp(";;") {
			p.advance()
		} else if p.isOp(";&") {
			term = ast.TermFallthrough
			p.advance()
		} else if p.isOp(";;&") {
			term = ast.TermContinue
			p.advance()
		}
		p.skipLinebreak()

		node.Items = append(node.Items, ast.CaseItem{Patterns: pats, Body: body, Terminator: term})
	}

	if !p.isReserved("esac") {
		return nil, p.errf("expected 'esac'")
	}
	p.advance()
	redirs, err := p.parseTrailingRedirections()
	if err != nil {
		return nil, err
	}
	node.Redirections = redirs
	return node, nil
}

func (p *parser) parseFunctionKeyword() (ast.Node, error) {
	pos := p.cur().Pos
	p.advance() // 'function'
	if p.cur().Kind != token.Word {
		return nil, p.errf("expected function name")
	}
	name := p.cur().Text
	p.advance()
	if p.isOp("(") && p.peekAt(1).Kind == token.Operator && p.peekAt(1).Text == ")" {
		p.advance()
		p.advance()
	}
	p.skipLinebreak()
	body, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDef{Base: ast.NewBase(pos), Name: name, Body: body}, nil
}

func (p *parser) parseFunctionShorthand() (ast.Node, error) {
	pos := p.cur().Pos
	name := p.cur().Text
	p.advance() // name
	p.advance() // (
	p.advance() // )
	p.skipLinebreak()
	body, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDef{Base: ast.NewBase(pos), Name: name, Body: body}, nil
}

// parseCompoundBody parses a List of statements until stop() reports
// true, used for the bodies of if/while/for/case/brace/subshell.
func (p *parser) parseCompoundBody(stop func() bool) (ast.Node, error) {
	p.skipLinebreak()
	list := &ast.List{}
	for !stop() && !p.atEOF() {
		andOr, background, err := p.parseAndOrStatement()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, ast.ListItem{AndOr: andOr, Background: background})
		if p.isSep() {
			p.advance()
			p.skipLinebreak()
			continue
		}
		break
	}
	if !stop() && !p.atEOF() {
		return nil, p.errf("unexpected token %q", p.cur().Text)
	}
	return list, nil
}

// simple = (assignment|redirect)* word (word|assignment|redirect)*
// Only name=value words before the command word become ast.Assignments;
// after it they stay argument words (so `export A=1` passes "A=1").
func (p *parser) parseSimpleCommand() (ast.Node, error) {
	pos := p.cur().Pos
	cmd := &ast.SimpleCommand{Base: ast.NewBase(pos)}

	for {
		t := p.cur()

		if redir, ok, err := p.tryParseRedirection(); err != nil {
			return nil, err
		} else if ok {
			cmd.Redirections = append(cmd.Redirections, redir)
			continue
		}

		if t.Kind == token.Word {
			if assign, ok := tryParseAssignment(t); ok && len(cmd.Words) == 0 {
				p.advance()
				cmd.Assignments = append(cmd.Assignments, assign)
				continue
			}
			cmd.Words = append(cmd.Words, wordFromToken(t))
			p.advance()
			continue
		}

		break
	}

	if len(cmd.Words) == 0 && len(cmd.Assignments) == 0 && len(cmd.Redirections) == 0 {
		return nil, p.errf("unexpected token %q", p.cur().Text)
	}

	return cmd, nil
}

func (p *parser) tryParseRedirection() (*ast.Redirection, bool, error) {
	t := p.cur()

	srcFD := -1
	opText := ""
	var opTok token.Token

	if t.Kind == token.IONumber {
		n, err := strconv.Atoi(strings.TrimRight(t.Text, "<>"))
		if err == nil {
			srcFD = n
		}
		nt := p.peekAt(1)
		if nt.Kind != token.Operator || !isRedirectOp(nt.Text) {
			return nil, false, nil
		}
		p.advance()
		opTok = p.cur()
		opText = opTok.Text
		p.advance()
	} else if t.Kind == token.Operator && isRedirectOp(t.Text) {
		opTok = t
		opText = t.Text
		p.advance()
	} else {
		return nil, false, nil
	}

	if p.cur().Kind != token.Word {
		return nil, false, p.errf("expected word after redirection operator %q", opText)
	}
	tagTok := p.cur()
	target := wordFromToken(tagTok)
	p.advance()

	if opText == "<<" || opText == "<<-" {
		hd := &ast.HereDoc{Tag: tagTok.Text, StripTabs: opText == "<<-"}
		if tagTok.Word != nil {
			hd.Quoted = heredocWordQuoted(tagTok.Word)
			if tagTok.Word.HereDocBody != nil {
				hd.Body = *tagTok.Word.HereDocBody
			}
		}
		return &ast.Redirection{Base: ast.NewBase(opTok.Pos), SrcFD: srcFD, Operator: opText, HereDoc: hd}, true, nil
	}

	return &ast.Redirection{Base: ast.NewBase(opTok.Pos), SrcFD: srcFD, Operator: opText, Target: target}, true, nil
}

// heredocWordQuoted reports whether a here-doc delimiter word contains
// any quoting, which disables expansion within the collected body
// (spec.md §4.5).
func heredocWordQuoted(w *token.Word) bool {
	for _, seg := range w.Segments {
		if seg.Kind == token.SegSingleQuoted || seg.Kind == token.SegDoubleQuoted || seg.Kind == token.SegEscaped {
			return true
		}
	}
	return false
}

func isRedirectOp(op string) bool {
	switch op {
	case "<", ">", "<<", "<<-", "<<<", ">>", "<>", ">|", "&>", "&>>", "<&", ">&":
		return true
	}
	return false
}

func tryParseAssignment(t token.Token) (*ast.Assignment, bool) {
	if t.Word == nil || len(t.Word.Segments) == 0 {
		return nil, false
	}
	first := t.Word.Segments[0]
	if first.Kind != token.SegLiteral {
		return nil, false
	}
	name, rest, append_, ok := splitAssignment(first.Value)
	if !ok {
		return nil, false
	}
	valueSegs := append([]token.Segment{}, t.Word.Segments[1:]...)
	if rest != "" {
		valueSegs = append(splitAssignmentTildes(rest), valueSegs...)
	}
	return &ast.Assignment{
		Name:   name,
		Value:  &ast.Word{Segments: valueSegs, Raw: t.Word.Raw},
		Append: append_,
	}, true
}

// splitAssignment finds `name=` or `name+=` at the start of s, where name
// is a valid shell identifier, and returns the name, the remaining text
// after '=', whether it was a '+=' form, and whether a split was found.
func splitAssignment(s string) (name, rest string, isAppend bool, ok bool) {
	i := 0
	for i < len(s) && (isIdentByte(s[i], i == 0)) {
		i++
	}
	if i == 0 {
		return "", "", false, false
	}
	if i < len(s) && s[i] == '+' && i+1 < len(s) && s[i+1] == '=' {
		return s[:i], s[i+2:], true, true
	}
	if i < len(s) && s[i] == '=' {
		return s[:i], s[i+1:], false, true
	}
	return "", "", false, false
}

// splitAssignmentTildes re-scans an assignment RHS's leading literal run
// for tilde prefixes the lexer couldn't recognize in place (it only
// special-cases `~` at the very start of a word, before it has any idea
// the word is `name=value`). spec.md §4.4 step 1 also expands `~` right
// after the `=` and after each `:` in the value, the way bash expands
// every element of a colon-separated list such as `PATH=~/bin:~other`.
func splitAssignmentTildes(s string) []token.Segment {
	var segs []token.Segment
	var lit strings.Builder
	atTildePos := true
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, token.Segment{Kind: token.SegLiteral, Value: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); {
		c := s[i]
		if c == '~' && atTildePos {
			flush()
			j := i + 1
			for j < len(s) && s[j] != '/' && s[j] != ':' {
				j++
			}
			segs = append(segs, token.Segment{Kind: token.SegTildePrefix, Value: s[i+1 : j]})
			i = j
			atTildePos = false
			continue
		}
		lit.WriteByte(c)
		atTildePos = c == ':'
		i++
	}
	flush()
	return segs
}

func isIdentByte(b byte, first bool) bool {
	if b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_' {
		return true
	}
	if !first && b >= '0' && b <= '9' {
		return true
	}
	return false
}

func wordFromToken(t token.Token) *ast.Word {
	if t.Word == nil {
		return &ast.Word{Segments: []token.Segment{{Kind: token.SegLiteral, Value: t.Text}}, Raw: t.Text}
	}
	return &ast.Word{Segments: t.Word.Segments, Raw: t.Word.Raw}
}

