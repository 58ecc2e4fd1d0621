// Package format re-indents Thrift documents.
//
// Each line is indented by the nesting depth of braces, parentheses and
// brackets at its start; a line that opens with a closer is outdented one
// level. Runs of blank lines are collapsed, trailing whitespace is dropped
// and the interior of block comments is left alone.
package format

import (
	"io"
	"strings"

	"github.com/dhamidi/thriftls/thrift/parser"
)

const (
	DefaultIndent        = "  "
	DefaultMaxBlankLines = 1
)

type Option func(*Printer)

func WithIndent(indent string) Option {
	return func(p *Printer) {
		p.indentStr = indent
	}
}

func WithMaxBlankLines(n int) Option {
	return func(p *Printer) {
		p.maxBlankLines = n
	}
}

type Printer struct {
	w             io.Writer
	indentStr     string
	maxBlankLines int
}

func NewPrinter(w io.Writer, opts ...Option) *Printer {
	p := &Printer{
		w:             w,
		indentStr:     DefaultIndent,
		maxBlankLines: DefaultMaxBlankLines,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxBlankLines < 0 {
		p.maxBlankLines = 0
	}
	return p
}

// Source formats src with the given options.
func Source(src string, opts ...Option) string {
	var sb strings.Builder
	NewPrinter(&sb, opts...).Print([]byte(src))
	return sb.String()
}

func (p *Printer) Print(source []byte) error {
	lines := strings.Split(string(source), "\n")
	layout := p.layout(source, len(lines))

	var out []string
	blank := 0
	for i, line := range lines {
		if layout.verbatim[i] {
			out = append(out, strings.TrimRight(line, " \t\r"))
			blank = 0
			continue
		}
		text := strings.TrimSpace(line)
		if text == "" {
			blank++
			if len(out) == 0 || blank > p.maxBlankLines {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		depth := layout.depth[i]
		if layout.closes[i] && depth > 0 {
			depth--
		}
		out = append(out, strings.Repeat(p.indentStr, depth)+text)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil
	}

	_, err := io.WriteString(p.w, strings.Join(out, "\n")+"\n")
	return err
}

type layout struct {
	depth    []int
	closes   []bool
	verbatim []bool
}

func (p *Printer) layout(source []byte, n int) layout {
	l := layout{
		depth:    make([]int, n),
		closes:   make([]bool, n),
		verbatim: make([]bool, n),
	}
	seen := make([]bool, n)

	depth, next := 0, 0
	for _, tok := range parser.Tokenize(source, "") {
		start := tok.Span.Start.Line - 1
		for next <= start && next < n {
			l.depth[next] = depth
			next++
		}
		if tok.Kind == parser.TokenWhitespace || tok.Kind == parser.TokenEOF {
			continue
		}
		if start < n && !seen[start] {
			seen[start] = true
			l.closes[start] = isCloser(tok.Kind)
		}

		switch {
		case tok.Kind == parser.TokenComment:
			for line := start + 1; line < tok.Span.End.Line && line < n; line++ {
				l.verbatim[line] = true
			}
		case isOpener(tok.Kind):
			depth++
		case isCloser(tok.Kind):
			if depth > 0 {
				depth--
			}
		}
	}
	for ; next < n; next++ {
		l.depth[next] = depth
	}
	return l
}

func isOpener(kind parser.TokenKind) bool {
	return kind == parser.TokenLBrace || kind == parser.TokenLParen || kind == parser.TokenLBracket
}

func isCloser(kind parser.TokenKind) bool {
	return kind == parser.TokenRBrace || kind == parser.TokenRParen || kind == parser.TokenRBracket
}
