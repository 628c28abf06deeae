package lexer

import (
	"testing"

	"github.com/sush-shell/sush/internal/token"
)

func TestTokenizeBasicWords(t *testing.T) {
	toks, err := New("echo hello world\n").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var words []string
	for _, tk := range toks {
		if tk.Kind == token.Word {
			words = append(words, tk.Text)
		}
	}
	want := []string{"echo", "hello", "world"}
	if len(words) != len(want) {
		t.Fatalf("got words %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d = %q, want %q", i, words[i], want[i])
		}
	}
}

func TestTokenizeHereDocCollectsBody(t *testing.T) {
	toks, err := New("cat <<EOF\nline one\nline two\nEOF\n").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tag := findWordToken(t, toks, "EOF")
	if tag.Word.HereDocBody == nil {
		t.Fatal("HereDocBody not populated on delimiter word")
	}
	if got, want := *tag.Word.HereDocBody, "line one\nline two\n"; got != want {
		t.Errorf("HereDocBody = %q, want %q", got, want)
	}
}

func TestTokenizeHereDocDashStripsLeadingTabs(t *testing.T) {
	toks, err := New("cat <<-EOF\n\t\tindented\nEOF\n").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tag := findWordToken(t, toks, "EOF")
	if tag.Word.HereDocBody == nil {
		t.Fatal("HereDocBody not populated on delimiter word")
	}
	if got, want := *tag.Word.HereDocBody, "indented\n"; got != want {
		t.Errorf("HereDocBody = %q, want %q", got, want)
	}
}

func TestTokenizeHereDocMissingTerminatorNeedsMore(t *testing.T) {
	_, err := New("cat <<EOF\nline one\n").Tokenize()
	if err != ErrNeedMore {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}
}

func TestTokenizeUnterminatedDoubleQuoteNeedsMore(t *testing.T) {
	_, err := New(`echo "unterminated`).Tokenize()
	if err != ErrNeedMore {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}
}

func TestLexHereDocBodyExpandsVariables(t *testing.T) {
	segs, err := LexHereDocBody("hello $NAME\n")
	if err != nil {
		t.Fatalf("LexHereDocBody: %v", err)
	}
	var sawParam bool
	for _, seg := range segs {
		if seg.Kind == token.SegParamExpansion && seg.Value == "NAME" {
			sawParam = true
		}
	}
	if !sawParam {
		t.Errorf("segments %+v missing a NAME parameter expansion", segs)
	}
}

func TestLexHereDocBodyEscapesDollar(t *testing.T) {
	segs, err := LexHereDocBody(`\$NAME` + "\n")
	if err != nil {
		t.Fatalf("LexHereDocBody: %v", err)
	}
	for _, seg := range segs {
		if seg.Kind == token.SegParamExpansion {
			t.Fatalf("escaped $ must not expand, got segments %+v", segs)
		}
	}
}

func findWordToken(t *testing.T, toks []token.Token, text string) token.Token {
	t.Helper()
	for _, tk := range toks {
		if tk.Kind == token.Word && tk.Text == text {
			return tk
		}
	}
	t.Fatalf("no word token %q found in %v", text, toks)
	return token.Token{}
}
