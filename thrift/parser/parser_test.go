package parser

import (
	"encoding/json"
	"strings"
	"testing"
)

const sample = `namespace go example
include "shared.thrift"

// A user.
struct User {
  1: required i64 id,
  2: optional string name = "anon" (go.tag = "json")
  3: map<string, list<i32>> scores
}

enum Color {
  RED = 1,
  GREEN,
}

service Users extends shared.Base {
  User get(1: i64 id) throws (1: NotFound nf),
  oneway void ping()
}
`

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenKind
	}{
		{"", []TokenKind{TokenEOF}},
		{"struct", []TokenKind{TokenStruct, TokenEOF}},
		{"struct Foo {}", []TokenKind{TokenStruct, TokenIdent, TokenLBrace, TokenRBrace, TokenEOF}},
		{"shared.Base", []TokenKind{TokenIdent, TokenEOF}},
		{"123 -4 0x1F", []TokenKind{TokenIntLiteral, TokenIntLiteral, TokenIntLiteral, TokenEOF}},
		{"3.14 1e10", []TokenKind{TokenDoubleLiteral, TokenDoubleLiteral, TokenEOF}},
		{`"hello" 'x'`, []TokenKind{TokenStringLiteral, TokenStringLiteral, TokenEOF}},
		{`"unterminated`, []TokenKind{TokenError, TokenEOF}},
		{"// comment\nenum", []TokenKind{TokenEnum, TokenEOF}},
		{"# shell comment\nunion", []TokenKind{TokenUnion, TokenEOF}},
		{"/* block */ service", []TokenKind{TokenService, TokenEOF}},
		{"map<string,i32>", []TokenKind{TokenMap, TokenLT, TokenIdent, TokenComma, TokenIdent, TokenGT, TokenEOF}},
		{"1: i32 x = 5;", []TokenKind{TokenIntLiteral, TokenColon, TokenIdent, TokenIdent, TokenAssign, TokenIntLiteral, TokenSemicolon, TokenEOF}},
		{"@", []TokenKind{TokenError, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer([]byte(tt.input), "test.thrift")
			var got []TokenKind
			for {
				tok := lexer.NextToken()
				if tok.Kind != TokenWhitespace && tok.Kind != TokenComment && tok.Kind != TokenLineComment {
					got = append(got, tok.Kind)
				}
				if tok.Kind == TokenEOF {
					break
				}
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("token %d: got %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLexerPositions(t *testing.T) {
	lexer := NewLexer([]byte("a\n  b"), "test.thrift")
	lexer.NextToken()
	lexer.NextToken()
	tok := lexer.NextToken()
	if tok.Literal != "b" {
		t.Fatalf("Literal = %q, want %q", tok.Literal, "b")
	}
	if tok.Span.Start.Line != 2 || tok.Span.Start.Column != 3 {
		t.Errorf("Start = %v, want 2:3", tok.Span.Start)
	}
}

func TestParseDefinitions(t *testing.T) {
	doc := Parse(sample, WithFile("user.thrift"))

	if errs := doc.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors:\n%s", doc)
	}
	tests := []struct {
		kind NodeKind
		name string
	}{
		{KindNamespace, "go"},
		{KindInclude, ""},
		{KindStruct, "User"},
		{KindEnum, "Color"},
		{KindService, "Users"},
	}
	if len(doc.Children) != len(tests) {
		t.Fatalf("got %d definitions, want %d:\n%s", len(doc.Children), len(tests), doc)
	}
	for i, tt := range tests {
		n := doc.Children[i]
		if n.Kind != tt.kind {
			t.Errorf("definition %d: Kind = %v, want %v", i, n.Kind, tt.kind)
		}
		if got := n.Name(); got != tt.name {
			t.Errorf("definition %d: Name() = %q, want %q", i, got, tt.name)
		}
	}
}

func TestParseFields(t *testing.T) {
	doc := Parse(sample)
	fields := doc.Children[2].ChildrenOfKind(KindField)
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}

	name := fields[1]
	if got := name.FirstChildOfKind(KindFieldID).TokenLiteral(); got != "2" {
		t.Errorf("field id = %q, want %q", got, "2")
	}
	if got := name.FirstChildOfKind(KindRequiredness).TokenLiteral(); got != "optional" {
		t.Errorf("requiredness = %q, want %q", got, "optional")
	}
	if got := name.FirstChildOfKind(KindLiteral).TokenLiteral(); got != `"anon"` {
		t.Errorf("default = %q, want %q", got, `"anon"`)
	}
	if name.FirstChildOfKind(KindAnnotations) == nil {
		t.Error("annotations missing")
	}

	scores := fields[2].FirstChildOfKind(KindType)
	if scores.TokenLiteral() != "map" {
		t.Fatalf("type = %q, want map", scores.TokenLiteral())
	}
	args := scores.ChildrenOfKind(KindType)
	if len(args) != 2 || args[0].TokenLiteral() != "string" || args[1].TokenLiteral() != "list" {
		t.Errorf("map arguments = %v", args)
	}
	if elem := args[1].FirstChildOfKind(KindType); elem == nil || elem.TokenLiteral() != "i32" {
		t.Errorf("list element = %v, want i32", elem)
	}
}

func TestParseService(t *testing.T) {
	svc := Parse(sample).Children[4]

	if ext := svc.FirstChildOfKind(KindExtends); ext == nil || ext.Name() != "shared.Base" {
		t.Errorf("extends = %v, want shared.Base", ext)
	}
	fns := svc.ChildrenOfKind(KindFunction)
	if len(fns) != 2 {
		t.Fatalf("got %d functions, want 2", len(fns))
	}
	if fns[0].Name() != "get" || fns[0].FirstChildOfKind(KindThrows) == nil {
		t.Errorf("first function = %s", fns[0])
	}
	if fns[1].FirstChildOfKind(KindOneway) == nil || fns[1].FirstChildOfKind(KindType).TokenLiteral() != "void" {
		t.Errorf("second function = %s", fns[1])
	}
}

func TestParseRecovers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kinds   []NodeKind
		message string
	}{
		{
			"missing field name",
			"struct A {\n  1: i32\n}\nstruct B {\n  1: i32 x\n}\n",
			[]NodeKind{KindStruct, KindStruct},
			"expected field name",
		},
		{
			"unclosed struct",
			"struct A {\n  1: i32 x\nstruct B {}\n",
			[]NodeKind{KindStruct, KindStruct},
			"expected '}'",
		},
		{
			"garbage before definition",
			"garbage here\nstruct B {}\n",
			[]NodeKind{KindError, KindStruct},
			"expected definition",
		},
		{
			"missing constant value",
			"const i32 X = ;\nconst i32 Y = 2\n",
			[]NodeKind{KindConst, KindConst},
			"expected constant value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.input)
			if len(doc.Children) != len(tt.kinds) {
				t.Fatalf("got %d definitions, want %d:\n%s", len(doc.Children), len(tt.kinds), doc)
			}
			for i, kind := range tt.kinds {
				if doc.Children[i].Kind != kind {
					t.Errorf("definition %d: Kind = %v, want %v", i, doc.Children[i].Kind, kind)
				}
			}
			errs := doc.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1:\n%s", len(errs), doc)
			}
			if errs[0].Error.Message != tt.message {
				t.Errorf("error = %q, want %q", errs[0].Error.Message, tt.message)
			}
		})
	}
}

func TestSplitDefinitions(t *testing.T) {
	chunks := SplitDefinitions(sample)

	want := [][2]int{{0, 0}, {1, 3}, {4, 9}, {10, 14}, {15, 19}}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %+v", len(chunks), len(want), chunks)
	}
	var sb strings.Builder
	for i, c := range chunks {
		if c.StartLine != want[i][0] || c.EndLine != want[i][1] {
			t.Errorf("chunk %d = [%d,%d], want %v", i, c.StartLine, c.EndLine, want[i])
		}
		sb.WriteString(c.Text)
	}
	if sb.String() != sample {
		t.Error("chunk texts do not reassemble the document")
	}
}

func TestSplitDefinitionsKeepsSameLineDefinitionsTogether(t *testing.T) {
	chunks := SplitDefinitions("struct A {\n} struct B {}\nstruct C {}\n")
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[1].StartLine != 2 {
		t.Errorf("second chunk starts at %d, want 2", chunks[1].StartLine)
	}
	if SplitDefinitions("") != nil {
		t.Error("SplitDefinitions(\"\") is not nil")
	}
}

func TestParseRegionMatchesFullParse(t *testing.T) {
	full := Parse(sample)

	var regions []*Node
	for _, c := range SplitDefinitions(sample) {
		regions = append(regions, ParseRegion(c.Text, c.StartLine)...)
	}

	if len(regions) != len(full.Children) {
		t.Fatalf("got %d region nodes, want %d", len(regions), len(full.Children))
	}
	for i, n := range regions {
		want := full.Children[i].StringWithPositions()
		if got := n.StringWithPositions(); got != want {
			t.Errorf("node %d:\ngot:\n%s\nwant:\n%s", i, got, want)
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Parse("struct A {}"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got struct {
		Kind     string `json:"kind"`
		Children []struct {
			Kind string `json:"kind"`
			Name string `json:"name"`
		} `json:"children"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != "Document" || len(got.Children) != 1 || got.Children[0].Name != "A" {
		t.Errorf("decoded = %+v", got)
	}
}
