package parser

type Lexer struct {
	input  []byte
	file   string
	pos    int
	line   int
	column int
}

func NewLexer(input []byte, file string) *Lexer {
	return newLexerAt(input, file, 1)
}

func newLexerAt(input []byte, file string, line int) *Lexer {
	if line < 1 {
		line = 1
	}
	return &Lexer{
		input:  input,
		file:   file,
		line:   line,
		column: 1,
	}
}

func (l *Lexer) Position() Position {
	return Position{
		File:   l.file,
		Offset: l.pos,
		Line:   l.line,
		Column: l.column,
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekN(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) advance() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) advanceN(n int) {
	for i := 0; i < n; i++ {
		l.advance()
	}
}

func (l *Lexer) token(kind TokenKind, start Position) Token {
	end := l.Position()
	return Token{
		Kind:    kind,
		Span:    Span{Start: start, End: end},
		Literal: string(l.input[start.Offset:end.Offset]),
	}
}

func (l *Lexer) NextToken() Token {
	start := l.Position()

	if l.pos >= len(l.input) {
		return Token{Kind: TokenEOF, Span: Span{Start: start, End: start}}
	}

	ch := l.peek()
	switch {
	case isSpace(ch):
		for isSpace(l.peek()) {
			l.advance()
		}
		return l.token(TokenWhitespace, start)
	case ch == '/' && l.peekN(1) == '/', ch == '#':
		for l.peek() != 0 && l.peek() != '\n' {
			l.advance()
		}
		return l.token(TokenLineComment, start)
	case ch == '/' && l.peekN(1) == '*':
		return l.scanBlockComment(start)
	case isLetter(ch):
		for isIdentChar(l.peek()) {
			l.advance()
		}
		tok := l.token(TokenIdent, start)
		tok.Kind = LookupKeyword(tok.Literal)
		return tok
	case isDigit(ch), (ch == '+' || ch == '-') && isDigit(l.peekN(1)):
		return l.scanNumber(start)
	case ch == '"' || ch == '\'':
		return l.scanString(start, ch)
	}

	l.advance()
	if kind, ok := punctuation[ch]; ok {
		return l.token(kind, start)
	}
	return l.token(TokenError, start)
}

var punctuation = map[byte]TokenKind{
	'{': TokenLBrace,
	'}': TokenRBrace,
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	'<': TokenLT,
	'>': TokenGT,
	',': TokenComma,
	';': TokenSemicolon,
	':': TokenColon,
	'=': TokenAssign,
	'*': TokenStar,
}

func (l *Lexer) scanBlockComment(start Position) Token {
	l.advanceN(2)
	for {
		if l.peek() == 0 {
			break
		}
		if l.peek() == '*' && l.peekN(1) == '/' {
			l.advanceN(2)
			break
		}
		l.advance()
	}
	return l.token(TokenComment, start)
}

func (l *Lexer) scanNumber(start Position) Token {
	if l.peek() == '+' || l.peek() == '-' {
		l.advance()
	}
	if l.peek() == '0' && (l.peekN(1) == 'x' || l.peekN(1) == 'X') {
		l.advanceN(2)
		for isHexDigit(l.peek()) {
			l.advance()
		}
		return l.token(TokenIntLiteral, start)
	}

	kind := TokenIntLiteral
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekN(1)) {
		kind = TokenDoubleLiteral
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		n := 1
		if l.peekN(1) == '+' || l.peekN(1) == '-' {
			n = 2
		}
		if isDigit(l.peekN(n)) {
			kind = TokenDoubleLiteral
			l.advanceN(n)
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	return l.token(kind, start)
}

func (l *Lexer) scanString(start Position, quote byte) Token {
	l.advance()
	for {
		ch := l.peek()
		switch {
		case ch == 0 || ch == '\n':
			return l.token(TokenError, start)
		case ch == '\\':
			l.advanceN(2)
		case ch == quote:
			l.advance()
			return l.token(TokenStringLiteral, start)
		default:
			l.advance()
		}
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F'
}

func isIdentChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '.'
}

// Tokenize returns all tokens of input, including whitespace and comments,
// ending with EOF.
func Tokenize(input []byte, file string) []Token {
	l := NewLexer(input, file)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens
		}
	}
}
