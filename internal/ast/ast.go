// Package ast defines the command-tree node types the parser builds and
// the executor walks. Nodes are plain tagged structs dispatched on Go's
// own type-switch rather than through per-node interface polymorphism,
// following spec.md §9's guidance to keep dispatch to a single match.
package ast

import "github.com/sush-shell/sush/internal/token"

// Node is implemented by every command-tree node. It carries only
// positional information; behavior is reached via type switches in the
// executor, not virtual methods, so adding an evaluation concern never
// requires touching every node type.
type Node interface {
	Pos() token.Pos
}

// Base carries the source position common to every node type and is
// embedded (not composed) so Pos() promotes automatically.
type Base struct{ P token.Pos }

func (b Base) Pos() token.Pos { return b.P }

// NewBase constructs a Base from a token.Pos; exported so other packages
// (the parser) can populate node positions without reaching into
// unexported fields.
func NewBase(p token.Pos) Base { return Base{P: p} }

// Word is a parsed argument-position word, kept as expansion segments so
// the expansion engine can run its ordered pipeline later without
// re-lexing anything.
type Word struct {
	Base
	Segments []token.Segment
	Raw      string
}

// Redirection is one parsed I/O redirection.
type Redirection struct {
	Base
	SrcFD    int    // -1 means "use the operator's implied default fd"
	Operator string // one of spec.md §3's redirection operators
	Target   *Word  // nil for here-doc forms, which use HereDoc instead
	HereDoc  *HereDoc
}

// HereDoc carries a here-document body materialized by the parser once
// the feeder has supplied lines up to the terminator.
type HereDoc struct {
	Tag        string
	StripTabs  bool // true for <<-
	Quoted     bool // true if the tag was quoted: body is not expanded
	Body       string
}

// Assignment is one `name=word` or `name[sub]=word` prefix/standalone
// assignment.
type Assignment struct {
	Base
	Name     string
	Index    *Word // non-nil for array element assignment name[index]=...
	Value    *Word
	Append   bool // true for name+=value
}

// SimpleCommand is a sequence of assignments/words plus redirections.
type SimpleCommand struct {
	Base
	Assignments  []*Assignment
	Words        []*Word
	Redirections []*Redirection
}

// Subshell is `( ... )`.
type Subshell struct {
	Base
	Body         Node
	Redirections []*Redirection
}

// BraceGroup is `{ ... }`.
type BraceGroup struct {
	Base
	Body         Node
	Redirections []*Redirection
}

// Pipeline is an ordered list of commands joined by `|`/`|&`, with an
// optional leading `!` negation.
type Pipeline struct {
	Base
	Negate    bool
	Commands  []Node
	StderrOut []bool // StderrOut[i] true means commands[i] used `|&` to the right
}

// AndOrOp distinguishes `&&` from `||` in an AndOr chain link.
type AndOrOp int

const (
	OpAnd AndOrOp = iota
	OpOr
)

// AndOr is a left-associative chain of pipelines joined by && / ||.
type AndOr struct {
	Base
	First *Pipeline
	Rest  []AndOrLink
}

// AndOrLink is one `op pipeline` continuation of an AndOr chain.
type AndOrLink struct {
	Op       AndOrOp
	Pipeline *Pipeline
}

// List is a sequence of and-or lists separated by `;` or run in the
// background with a trailing `&`.
type List struct {
	Base
	Items []ListItem
}

// ListItem is one statement of a List.
type ListItem struct {
	AndOr      *AndOr
	Background bool
}

// If implements if/elif/else/fi.
type If struct {
	Base
	Conds        []Node // condition bodies, one per if/elif branch
	Bodies       []Node // corresponding then-bodies
	Else         Node   // nil if no else clause
	Redirections []*Redirection
}

// LoopKind distinguishes while from until.
type LoopKind int

const (
	LoopWhile LoopKind = iota
	LoopUntil
)

// ConditionalLoop implements while/until.
type ConditionalLoop struct {
	Base
	Kind         LoopKind
	Cond         Node
	Body         Node
	Redirections []*Redirection
}

// ForIn implements `for name in words; do body; done` and the
// argument-less `for name; do ...; done` form (Words == nil means
// iterate "$@").
type ForIn struct {
	Base
	Name         string
	Words        []*Word
	Body         Node
	Redirections []*Redirection
}

// ForArith implements C-style `for ((init; cond; step)) do body done`.
// Any of the three clauses may be the empty string when omitted.
type ForArith struct {
	Base
	Init, Cond, Step string
	Body             Node
	Redirections     []*Redirection
}

// CaseTerminator distinguishes ;; from ;& from ;;&.
type CaseTerminator int

const (
	TermBreak      CaseTerminator = iota // ;;
	TermFallthrough                      // ;&
	TermContinue                         // ;;&
)

// CaseItem is one `pattern) body terminator` clause of a case statement.
type CaseItem struct {
	Patterns    []*Word
	Body        Node
	Terminator  CaseTerminator
}

// Case implements case/esac.
type Case struct {
	Base
	Subject      *Word
	Items        []CaseItem
	Redirections []*Redirection
}

// ArithCommand is the standalone `(( expr ))` compound command.
type ArithCommand struct {
	Base
	Expr string
}

// TestCommand is the dedicated `[[ ... ]]` test expression. Its internal
// grammar is out of this core's scope per spec.md §1; it is carried as
// raw, already-expanded-at-parse-time-boundaries text and handed to the
// external test evaluator collaborator.
type TestCommand struct {
	Base
	Raw string
}

// FuncDef is a function definition: `name() body` or `function name body`.
type FuncDef struct {
	Base
	Name string
	Body Node
}
