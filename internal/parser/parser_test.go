package parser

import (
	"testing"

	"github.com/sush-shell/sush/internal/ast"
)

// simpleCommandWords walks a single-item, single-command List and
// returns the literal text of each word, panicking the test if the
// shape doesn't match — these tests only exercise simple commands.
func simpleCommandWords(t *testing.T, list *ast.List) []string {
	t.Helper()
	if len(list.Items) != 1 {
		t.Fatalf("got %d list items, want 1", len(list.Items))
	}
	andOr := list.Items[0].AndOr
	if len(andOr.Rest) != 0 {
		t.Fatalf("unexpected &&/|| chain: %+v", andOr.Rest)
	}
	pipeline := andOr.First
	if len(pipeline.Commands) != 1 {
		t.Fatalf("got %d pipeline commands, want 1", len(pipeline.Commands))
	}
	cmd, ok := pipeline.Commands[0].(*ast.SimpleCommand)
	if !ok {
		t.Fatalf("command is %T, want *ast.SimpleCommand", pipeline.Commands[0])
	}
	var words []string
	for _, w := range cmd.Words {
		words = append(words, w.Raw)
	}
	return words
}

func TestParseSimpleCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"bare command", "echo hello", []string{"echo", "hello"}},
		{"multiple args", "ls -la /home/user", []string{"ls", "-la", "/home/user"}},
		{"single quoted", `echo 'hello world'`, []string{"echo", "'hello world'"}},
		{"double quoted", `echo "hello world"`, []string{"echo", `"hello world"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			got := simpleCommandWords(t, list)
			if len(got) != len(tt.want) {
				t.Fatalf("words = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("word %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseAssignmentPrefix(t *testing.T) {
	list, err := Parse("FOO=bar echo hi")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := list.Items[0].AndOr.First.Commands[0].(*ast.SimpleCommand)
	if len(cmd.Assignments) != 1 {
		t.Fatalf("got %d assignments, want 1", len(cmd.Assignments))
	}
	if cmd.Assignments[0].Name != "FOO" {
		t.Errorf("assignment name = %q, want FOO", cmd.Assignments[0].Name)
	}
	if len(cmd.Words) != 2 || cmd.Words[0].Raw != "echo" {
		t.Errorf("words = %+v, want [echo hi]", cmd.Words)
	}
}

func TestParsePipeline(t *testing.T) {
	list, err := Parse("echo hi | cat | wc -l")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := list.Items[0].AndOr.First
	if len(p.Commands) != 3 {
		t.Fatalf("got %d pipeline stages, want 3", len(p.Commands))
	}
}

func TestParsePipelineNegation(t *testing.T) {
	list, err := Parse("! true")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := list.Items[0].AndOr.First
	if !p.Negate {
		t.Error("expected Negate to be true for a `!`-prefixed pipeline")
	}
}

func TestParseAndOrChain(t *testing.T) {
	list, err := Parse("true && echo a || echo b")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	andOr := list.Items[0].AndOr
	if len(andOr.Rest) != 2 {
		t.Fatalf("got %d chain links, want 2", len(andOr.Rest))
	}
	if andOr.Rest[0].Op != ast.OpAnd || andOr.Rest[1].Op != ast.OpOr {
		t.Errorf("ops = %v, %v, want And, Or", andOr.Rest[0].Op, andOr.Rest[1].Op)
	}
}

func TestParseListSeparators(t *testing.T) {
	list, err := Parse("echo a; echo b")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(list.Items))
	}
}

func TestParseBackgroundList(t *testing.T) {
	list, err := Parse("sleep 1 &")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !list.Items[0].Background {
		t.Error("expected Background to be true")
	}
}

func TestParseIfElse(t *testing.T) {
	list, err := Parse("if true; then echo yes; else echo no; fi")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd, ok := list.Items[0].AndOr.First.Commands[0].(*ast.If)
	if !ok {
		t.Fatalf("command is %T, want *ast.If", list.Items[0].AndOr.First.Commands[0])
	}
	if cmd.Else == nil {
		t.Error("expected Else branch to be parsed")
	}
}

func TestParseForIn(t *testing.T) {
	list, err := Parse("for x in a b c; do echo $x; done")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd, ok := list.Items[0].AndOr.First.Commands[0].(*ast.ForIn)
	if !ok {
		t.Fatalf("command is %T, want *ast.ForIn", list.Items[0].AndOr.First.Commands[0])
	}
	if cmd.Name != "x" || len(cmd.Words) != 3 {
		t.Errorf("ForIn = %+v", cmd)
	}
}

func TestParseForArith(t *testing.T) {
	list, err := Parse("for ((i=0; i<3; i++)); do echo $i; done")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := list.Items[0].AndOr.First.Commands[0].(*ast.ForArith); !ok {
		t.Fatalf("command is %T, want *ast.ForArith", list.Items[0].AndOr.First.Commands[0])
	}
}

func TestParseCase(t *testing.T) {
	list, err := Parse("case $x in foo) echo f ;; *) echo o ;; esac")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd, ok := list.Items[0].AndOr.First.Commands[0].(*ast.Case)
	if !ok {
		t.Fatalf("command is %T, want *ast.Case", list.Items[0].AndOr.First.Commands[0])
	}
	if len(cmd.Items) != 2 {
		t.Fatalf("got %d case items, want 2", len(cmd.Items))
	}
}

func TestParseFuncDef(t *testing.T) {
	list, err := Parse("greet() { echo hi; }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn, ok := list.Items[0].AndOr.First.Commands[0].(*ast.FuncDef)
	if !ok {
		t.Fatalf("command is %T, want *ast.FuncDef", list.Items[0].AndOr.First.Commands[0])
	}
	if fn.Name != "greet" {
		t.Errorf("func name = %q, want greet", fn.Name)
	}
}

func TestParseRedirection(t *testing.T) {
	list, err := Parse("echo hi > out.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := list.Items[0].AndOr.First.Commands[0].(*ast.SimpleCommand)
	if len(cmd.Redirections) != 1 {
		t.Fatalf("got %d redirections, want 1", len(cmd.Redirections))
	}
	r := cmd.Redirections[0]
	if r.Operator != ">" || r.Target == nil || r.Target.Raw != "out.txt" {
		t.Errorf("redirection = %+v", r)
	}
}

func TestParseHereDocPopulatesBody(t *testing.T) {
	list, err := Parse("cat <<EOF\nline one\nline two\nEOF\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := list.Items[0].AndOr.First.Commands[0].(*ast.SimpleCommand)
	if len(cmd.Redirections) != 1 {
		t.Fatalf("got %d redirections, want 1", len(cmd.Redirections))
	}
	hd := cmd.Redirections[0].HereDoc
	if hd == nil {
		t.Fatal("HereDoc is nil")
	}
	if hd.Tag != "EOF" {
		t.Errorf("tag = %q, want EOF", hd.Tag)
	}
	if hd.Body != "line one\nline two\n" {
		t.Errorf("body = %q", hd.Body)
	}
	if hd.Quoted {
		t.Error("unquoted tag should leave Quoted false")
	}
}

func TestParseHereDocQuotedTagDisablesExpansion(t *testing.T) {
	list, err := Parse("cat <<'EOF'\n$NAME\nEOF\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := list.Items[0].AndOr.First.Commands[0].(*ast.SimpleCommand)
	hd := cmd.Redirections[0].HereDoc
	if !hd.Quoted {
		t.Error("quoted tag should set Quoted true")
	}
	if hd.Body != "$NAME\n" {
		t.Errorf("body = %q, want literal $NAME preserved for later no-op expansion", hd.Body)
	}
}

func TestParseHereDocDashStripsTabsInSource(t *testing.T) {
	list, err := Parse("cat <<-EOF\n\t\tindented\nEOF\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cmd := list.Items[0].AndOr.First.Commands[0].(*ast.SimpleCommand)
	hd := cmd.Redirections[0].HereDoc
	if !hd.StripTabs {
		t.Error("<<- should set StripTabs true")
	}
	if hd.Body != "indented\n" {
		t.Errorf("body = %q, want leading tabs stripped", hd.Body)
	}
}

func TestParseSyntaxErrorOnDanglingOperator(t *testing.T) {
	_, err := Parse("echo hi |")
	if err == nil {
		t.Fatal("expected a syntax error for a dangling pipe")
	}
}

func TestParseErrNeedMoreForOpenConstruct(t *testing.T) {
	_, err := Parse("if true; then")
	if err != ErrNeedMore {
		t.Fatalf("err = %v, want ErrNeedMore for an unterminated if/then", err)
	}
}
