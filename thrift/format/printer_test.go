package format

import (
	"bytes"
	"testing"
)

func TestSource(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"reindents members",
			"struct A {\n1: i32 x,\n      2: list<i32> y\n}\n",
			"struct A {\n  1: i32 x,\n  2: list<i32> y\n}\n",
		},
		{
			"collapses blank lines",
			"\n\nenum B {\n  X,\n    }   \n\n\n\nconst i32 C = 1\n\n",
			"enum B {\n  X,\n}\n\nconst i32 C = 1\n",
		},
		{
			"nested parentheses",
			"service S {\nvoid f(\n1: i32 a,\n)\n}",
			"service S {\n  void f(\n    1: i32 a,\n  )\n}\n",
		},
		{
			"block comment interior untouched",
			"/*\n   * doc   \n */\nstruct A {\n    1: i32 x\n}\n",
			"/*\n   * doc\n */\nstruct A {\n  1: i32 x\n}\n",
		},
		{
			"braces inside strings ignored",
			"const string S = \"{\"\nstruct A {}\n",
			"const string S = \"{\"\nstruct A {}\n",
		},
		{
			"empty",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Source(tt.input); got != tt.want {
				t.Errorf("Source() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestSourceIsIdempotent(t *testing.T) {
	once := Source("struct A {\n\t1: i32 x\n  }\n")
	if twice := Source(once); twice != once {
		t.Errorf("second pass changed output:\n%q\n%q", once, twice)
	}
}

func TestPrinterOptions(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, WithIndent("\t"), WithMaxBlankLines(0))
	if err := p.Print([]byte("struct A {\n\n1: i32 x\n}\n")); err != nil {
		t.Fatalf("Print: %v", err)
	}
	want := "struct A {\n\t1: i32 x\n}\n"
	if got := buf.String(); got != want {
		t.Errorf("Print() = %q, want %q", got, want)
	}
}
