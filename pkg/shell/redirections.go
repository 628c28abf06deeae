package shell

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sush-shell/sush/internal/ast"
	"github.com/sush-shell/sush/internal/expand"
	"github.com/sush-shell/sush/internal/lexer"
)

// FileOpener abstracts file-system access for redirection so tests can
// substitute an in-memory implementation instead of touching disk,
// following the teacher's original separation of I/O from control flow.
type FileOpener interface {
	OpenRead(name string) (*os.File, error)
	OpenWrite(name string, flag int, perm os.FileMode) (*os.File, error)
}

// DefaultFileOpener implements FileOpener against the real file system.
type DefaultFileOpener struct{}

func (DefaultFileOpener) OpenRead(name string) (*os.File, error) { return os.Open(name) }

func (DefaultFileOpener) OpenWrite(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

// IOBindings is the shell's per-command file-descriptor table. Unlike
// the teacher's fixed Stdin/Stdout/Stderr trio, every fd is addressable
// by number so `exec 3>file`, `2>&1`, and `<&4`-style duplication (spec.md
// §4.5's redirection set) have somewhere to land.
type IOBindings struct {
	Files map[int]*os.File
}

// NewIOBindings returns the standard 0/1/2 bound to the process's own
// stdio, the base every top-level command starts from.
func NewIOBindings() IOBindings {
	return IOBindings{Files: map[int]*os.File{0: os.Stdin, 1: os.Stdout, 2: os.Stderr}}
}

// Clone makes a shallow copy of the fd table: new map, same *os.File
// values, so a child pipeline stage can rebind fd 0/1 without disturbing
// the parent's view once the child returns.
func (b IOBindings) Clone() IOBindings {
	nb := IOBindings{Files: make(map[int]*os.File, len(b.Files))}
	for k, v := range b.Files {
		nb.Files[k] = v
	}
	return nb
}

func (b IOBindings) Stdin() *os.File  { return b.Files[0] }
func (b IOBindings) Stdout() *os.File { return b.Files[1] }
func (b IOBindings) Stderr() *os.File { return b.Files[2] }

// RedirectionHandler implements one redirection operator's semantics:
// validate, open/duplicate, and install into bindings. New operators are
// added by registering another handler, never by editing ApplyAll
// (Strategy pattern, carried over from the teacher's redirections.go).
type RedirectionHandler interface {
	CanHandle(operator string) bool
	Apply(r *ast.Redirection, target string, bindings *IOBindings, opener FileOpener) (cleanup func(), err error)
}

// RedirectionManager routes each ast.Redirection to its handler and
// applies the whole set transactionally: if any step fails, everything
// opened so far is closed and the original bindings are returned
// unchanged (the teacher's rollback-on-failure behavior).
type RedirectionManager struct {
	handlers []RedirectionHandler
	opener   FileOpener
}

// NewRedirectionManager builds a manager with every operator sush
// supports registered.
func NewRedirectionManager(opener FileOpener) *RedirectionManager {
	m := &RedirectionManager{opener: opener}
	m.handlers = []RedirectionHandler{
		writeHandler{ops: []string{">", ">|"}, defaultFD: 1, flag: os.O_CREATE | os.O_WRONLY | os.O_TRUNC},
		writeHandler{ops: []string{">>"}, defaultFD: 1, flag: os.O_CREATE | os.O_WRONLY | os.O_APPEND},
		readHandler{ops: []string{"<"}, defaultFD: 0},
		readWriteHandler{ops: []string{"<>"}, defaultFD: 0},
		dupHandler{ops: []string{">&"}, writeSide: true},
		dupHandler{ops: []string{"<&"}, writeSide: false},
		bothHandler{ops: []string{"&>"}, flag: os.O_CREATE | os.O_WRONLY | os.O_TRUNC},
		bothHandler{ops: []string{"&>>"}, flag: os.O_CREATE | os.O_WRONLY | os.O_APPEND},
		hereDocHandler{},
		hereStringHandler{},
	}
	return m
}

func (m *RedirectionManager) handlerFor(op string) RedirectionHandler {
	for _, h := range m.handlers {
		if h.CanHandle(op) {
			return h
		}
	}
	return nil
}

// ApplyAll expands each redirection's target word (via ctx) and applies
// the full list against base, returning the resulting bindings and a
// cleanup func that closes every file this call opened.
func (m *RedirectionManager) ApplyAll(redirs []*ast.Redirection, base IOBindings, ctx *expand.Context) (IOBindings, func(), error) {
	bindings := base.Clone()
	var cleanups []func()
	rollback := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	for _, r := range redirs {
		var target string
		if r.Target != nil {
			fields, err := expand.Word(r.Target.Segments, ctx, true)
			if err != nil {
				rollback()
				return base, nil, err
			}
			if len(fields) > 0 {
				target = fields[0]
			}
		}

		if r.HereDoc != nil {
			body := r.HereDoc.Body
			if !r.HereDoc.Quoted {
				segs, err := lexer.LexHereDocBody(body)
				if err != nil {
					rollback()
					return base, nil, err
				}
				fields, err := expand.Word(segs, ctx, true)
				if err != nil {
					rollback()
					return base, nil, err
				}
				body = strings.Join(fields, "")
			}
			target = body
		}

		h := m.handlerFor(r.Operator)
		if h == nil {
			rollback()
			return base, nil, fmt.Errorf("sush: unsupported redirection operator %q", r.Operator)
		}
		cleanup, err := h.Apply(r, target, &bindings, m.opener)
		if err != nil {
			rollback()
			return base, nil, err
		}
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
	}

	return bindings, rollback, nil
}

func fdOrDefault(r *ast.Redirection, def int) int {
	if r.SrcFD >= 0 {
		return r.SrcFD
	}
	return def
}

type writeHandler struct {
	ops       []string
	defaultFD int
	flag      int
}

func (h writeHandler) CanHandle(op string) bool { return contains(h.ops, op) }

func (h writeHandler) Apply(r *ast.Redirection, target string, b *IOBindings, opener FileOpener) (func(), error) {
	f, err := opener.OpenWrite(target, h.flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("sush: %s: %w", target, err)
	}
	b.Files[fdOrDefault(r, h.defaultFD)] = f
	return func() { f.Close() }, nil
}

type readHandler struct {
	ops       []string
	defaultFD int
}

func (h readHandler) CanHandle(op string) bool { return contains(h.ops, op) }

func (h readHandler) Apply(r *ast.Redirection, target string, b *IOBindings, opener FileOpener) (func(), error) {
	f, err := opener.OpenRead(target)
	if err != nil {
		return nil, fmt.Errorf("sush: %s: %w", target, err)
	}
	b.Files[fdOrDefault(r, h.defaultFD)] = f
	return func() { f.Close() }, nil
}

type readWriteHandler struct {
	ops       []string
	defaultFD int
}

func (h readWriteHandler) CanHandle(op string) bool { return contains(h.ops, op) }

func (h readWriteHandler) Apply(r *ast.Redirection, target string, b *IOBindings, opener FileOpener) (func(), error) {
	f, err := opener.OpenWrite(target, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("sush: %s: %w", target, err)
	}
	b.Files[fdOrDefault(r, h.defaultFD)] = f
	return func() { f.Close() }, nil
}

type bothHandler struct {
	ops  []string
	flag int
}

func (h bothHandler) CanHandle(op string) bool { return contains(h.ops, op) }

func (h bothHandler) Apply(r *ast.Redirection, target string, b *IOBindings, opener FileOpener) (func(), error) {
	f, err := opener.OpenWrite(target, h.flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("sush: %s: %w", target, err)
	}
	b.Files[1] = f
	b.Files[2] = f
	return func() { f.Close() }, nil
}

// dupHandler implements `N>&M`/`N<&M` fd duplication and the `N>&-`/
// `N<&-` close form.
type dupHandler struct {
	ops       []string
	writeSide bool
}

func (h dupHandler) CanHandle(op string) bool { return contains(h.ops, op) }

func (h dupHandler) Apply(r *ast.Redirection, target string, b *IOBindings, opener FileOpener) (func(), error) {
	def := 1
	if !h.writeSide {
		def = 0
	}
	dst := fdOrDefault(r, def)

	target = strings.TrimSpace(target)
	if target == "-" {
		delete(b.Files, dst)
		return nil, nil
	}
	src, err := strconv.Atoi(target)
	if err != nil {
		return nil, fmt.Errorf("sush: bad file descriptor %q", target)
	}
	f, ok := b.Files[src]
	if !ok {
		return nil, fmt.Errorf("sush: %d: bad file descriptor", src)
	}
	b.Files[dst] = f
	return nil, nil
}

// hereDocHandler materializes a `<<`/`<<-` body, already expanded (unless
// its tag was quoted) by ApplyAll, as a throwaway pipe-backed fd 0.
type hereDocHandler struct{}

func (hereDocHandler) CanHandle(op string) bool { return op == "<<" || op == "<<-" }

func (h hereDocHandler) Apply(r *ast.Redirection, body string, b *IOBindings, _ FileOpener) (func(), error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	go func() {
		defer pw.Close()
		pw.WriteString(body)
	}()
	b.Files[fdOrDefault(r, 0)] = pr
	return func() { pr.Close() }, nil
}

// hereStringHandler implements `<<<word`: the expanded word plus a
// trailing newline becomes fd 0's entire content.
type hereStringHandler struct{}

func (hereStringHandler) CanHandle(op string) bool { return op == "<<<" }

func (h hereStringHandler) Apply(r *ast.Redirection, target string, b *IOBindings, _ FileOpener) (func(), error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	go func() {
		defer pw.Close()
		pw.WriteString(target)
		pw.WriteString("\n")
	}()
	b.Files[fdOrDefault(r, 0)] = pr
	return func() { pr.Close() }, nil
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
