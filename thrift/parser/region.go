package parser

import "strings"

// Chunk is a run of whole lines holding one or more top-level definitions.
// Lines are 0-based and inclusive, as editors number them.
type Chunk struct {
	StartLine int
	EndLine   int
	Text      string
}

// SplitDefinitions cuts content into chunks at lines where a top-level
// header or definition keyword is the first token. Concatenating the chunk
// texts yields content again.
func SplitDefinitions(content string) []Chunk {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")

	starts := []int{0}
	depth := 0
	prevLine := -1
	l := NewLexer([]byte(content), "")
	for tok := l.NextToken(); tok.Kind != TokenEOF; tok = l.NextToken() {
		switch tok.Kind {
		case TokenWhitespace, TokenComment, TokenLineComment:
			continue
		case TokenLBrace, TokenLParen, TokenLBracket:
			depth++
		case TokenRBrace, TokenRParen, TokenRBracket:
			if depth > 0 {
				depth--
			}
		default:
			line := tok.Span.Start.Line - 1
			if depth == 0 && IsDefinitionKeyword(tok.Kind) && line != prevLine && line > starts[len(starts)-1] {
				starts = append(starts, line)
			}
		}
		prevLine = tok.Span.End.Line - 1
	}

	chunks := make([]Chunk, 0, len(starts))
	for i, start := range starts {
		end := len(lines) - 1
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		chunks = append(chunks, Chunk{
			StartLine: start,
			EndLine:   end,
			Text:      strings.Join(lines[start:end+1], ""),
		})
	}
	return chunks
}

// ParseRegion parses text that begins at 0-based line startLine of its
// document and returns its top-level nodes. Line and column positions are
// those of the enclosing document; offsets are relative to text.
func ParseRegion(text string, startLine int, opts ...Option) []*Node {
	opts = append(opts, WithStartLine(startLine+1))
	return Parse(text, opts...).Children
}
