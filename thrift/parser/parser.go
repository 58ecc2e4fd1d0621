package parser

type Option func(*Parser)

func WithFile(path string) Option {
	return func(p *Parser) {
		p.file = path
	}
}

// WithStartLine sets the 1-based line number of the first input line.
func WithStartLine(line int) Option {
	return func(p *Parser) {
		p.startLine = line
	}
}

func WithComments() Option {
	return func(p *Parser) {
		p.includeComments = true
	}
}

type Parser struct {
	file            string
	startLine       int
	includeComments bool
	input           []byte
	tokens          []Token
	comments        []Token
	pos             int
}

func New(content string, opts ...Option) *Parser {
	p := &Parser{
		startLine: 1,
		input:     []byte(content),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses a whole document. It never returns nil; syntax errors are
// reported as Error nodes in the tree.
func Parse(content string, opts ...Option) *Node {
	return New(content, opts...).Parse()
}

func (p *Parser) Comments() []Token {
	return p.comments
}

func (p *Parser) Parse() *Node {
	p.tokens = nil
	p.comments = nil
	p.pos = 0
	p.tokenize()
	return p.parseDocument()
}

func (p *Parser) tokenize() {
	lexer := newLexerAt(p.input, p.file, p.startLine)
	for {
		tok := lexer.NextToken()
		if tok.Kind == TokenWhitespace {
			continue
		}
		if tok.Kind == TokenComment || tok.Kind == TokenLineComment {
			if p.includeComments {
				p.comments = append(p.comments, tok)
			}
			continue
		}
		p.tokens = append(p.tokens, tok)
		if tok.Kind == TokenEOF {
			break
		}
	}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekN(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(kind TokenKind) *Token {
	tok := p.peek()
	if tok.Kind == kind {
		p.advance()
		return &tok
	}
	return nil
}

func (p *Parser) check(kind TokenKind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) match(kinds ...TokenKind) bool {
	for _, kind := range kinds {
		if p.check(kind) {
			return true
		}
	}
	return false
}

// mustProgress returns a function that checks if the parser has advanced.
// Call it at the start of a loop iteration, then call the returned function
// at the end to break if no progress was made.
func (p *Parser) mustProgress() func() bool {
	saved := p.pos
	return func() bool {
		if p.pos == saved {
			if !p.check(TokenEOF) {
				p.advance()
			}
			return false
		}
		return true
	}
}

// atBodyEnd reports whether a member list has ended, either properly or
// because the next top-level definition has started.
func (p *Parser) atBodyEnd(closing TokenKind) bool {
	return p.check(closing) || p.check(TokenEOF) || IsDefinitionKeyword(p.peek().Kind)
}

func (p *Parser) startNode(kind NodeKind) *Node {
	return &Node{
		Kind: kind,
		Span: Span{Start: p.peek().Span.Start},
	}
}

func (p *Parser) finishNode(n *Node) *Node {
	if p.pos > 0 && p.pos <= len(p.tokens) {
		n.Span.End = p.tokens[p.pos-1].Span.End
	} else if len(p.tokens) > 0 {
		n.Span.End = p.tokens[len(p.tokens)-1].Span.End
	}
	if n.Span.End.Offset < n.Span.Start.Offset {
		n.Span.End = n.Span.Start
	}
	return n
}

func (p *Parser) leaf(kind NodeKind) *Node {
	tok := p.advance()
	return &Node{Kind: kind, Token: &tok, Span: tok.Span}
}

// errorNode reports an error at the current token and skips ahead to one of
// recoverTo or the next definition keyword.
func (p *Parser) errorNode(msg string, recoverTo []TokenKind, expected ...TokenKind) *Node {
	tok := p.peek()
	node := &Node{
		Kind: KindError,
		Span: tok.Span,
		Error: &Error{
			Message:  msg,
			Expected: expected,
			Got:      &tok,
		},
	}
	p.recoverTo(recoverTo)
	return node
}

// missing reports an expected token without consuming anything.
func (p *Parser) missing(msg string, expected ...TokenKind) *Node {
	return p.errorNode(msg, nil, expected...)
}

func (p *Parser) recoverTo(kinds []TokenKind) {
	if kinds == nil {
		return
	}
	for !p.check(TokenEOF) && !IsDefinitionKeyword(p.peek().Kind) {
		if p.match(kinds...) {
			return
		}
		p.advance()
	}
}

func (p *Parser) expectInto(n *Node, kind TokenKind, msg string) bool {
	if p.expect(kind) != nil {
		return true
	}
	n.AddChild(p.missing(msg, kind))
	return false
}

func (p *Parser) identifierInto(n *Node, msg string) {
	if p.check(TokenIdent) {
		n.AddChild(p.leaf(KindIdentifier))
		return
	}
	n.AddChild(p.missing(msg, TokenIdent))
}

func (p *Parser) skipListSeparator() {
	if p.match(TokenComma, TokenSemicolon) {
		p.advance()
	}
}

func (p *Parser) parseDocument() *Node {
	node := p.startNode(KindDocument)
	for !p.check(TokenEOF) {
		if p.match(TokenSemicolon, TokenComma) {
			p.advance()
			continue
		}
		node.AddChild(p.parseDefinition())
	}
	return p.finishNode(node)
}

// topLevelRecovery skips to the next definition keyword.
var topLevelRecovery = []TokenKind{}

func (p *Parser) parseDefinition() *Node {
	switch p.peek().Kind {
	case TokenInclude:
		return p.parseInclude(KindInclude)
	case TokenCppInclude:
		return p.parseInclude(KindCppInclude)
	case TokenNamespace:
		return p.parseNamespace()
	case TokenConst:
		return p.parseConst()
	case TokenTypedef:
		return p.parseTypedef()
	case TokenEnum:
		return p.parseEnum()
	case TokenSenum:
		return p.parseSenum()
	case TokenStruct:
		return p.parseStruct(KindStruct)
	case TokenUnion:
		return p.parseStruct(KindUnion)
	case TokenException:
		return p.parseStruct(KindException)
	case TokenService:
		return p.parseService()
	}
	return p.errorNode("expected definition", topLevelRecovery)
}

func (p *Parser) parseInclude(kind NodeKind) *Node {
	node := p.startNode(kind)
	p.advance()
	if p.check(TokenStringLiteral) {
		node.AddChild(p.leaf(KindLiteral))
	} else {
		node.AddChild(p.missing("expected file name", TokenStringLiteral))
	}
	return p.finishNode(node)
}

func (p *Parser) parseNamespace() *Node {
	node := p.startNode(KindNamespace)
	p.advance()
	if p.match(TokenIdent, TokenStar) {
		node.AddChild(p.leaf(KindIdentifier))
	} else {
		node.AddChild(p.missing("expected namespace scope", TokenIdent, TokenStar))
	}
	p.identifierInto(node, "expected namespace name")
	node.AddChild(p.parseAnnotations())
	return p.finishNode(node)
}

func (p *Parser) parseConst() *Node {
	node := p.startNode(KindConst)
	p.advance()
	if typ := p.parseType(); typ != nil {
		node.AddChild(typ)
	} else {
		node.AddChild(p.missing("expected constant type", TokenIdent))
	}
	p.identifierInto(node, "expected constant name")
	if p.expectInto(node, TokenAssign, "expected '='") {
		node.AddChild(p.parseConstValue())
	}
	p.skipListSeparator()
	return p.finishNode(node)
}

func (p *Parser) parseTypedef() *Node {
	node := p.startNode(KindTypedef)
	p.advance()
	if typ := p.parseType(); typ != nil {
		node.AddChild(typ)
	} else {
		node.AddChild(p.missing("expected type", TokenIdent))
	}
	p.identifierInto(node, "expected typedef name")
	node.AddChild(p.parseAnnotations())
	p.skipListSeparator()
	return p.finishNode(node)
}

func (p *Parser) parseEnum() *Node {
	node := p.startNode(KindEnum)
	p.advance()
	p.identifierInto(node, "expected enum name")
	if !p.expectInto(node, TokenLBrace, "expected '{'") {
		return p.finishNode(node)
	}
	for !p.atBodyEnd(TokenRBrace) {
		progressed := p.mustProgress()
		node.AddChild(p.parseEnumValue())
		if !progressed() {
			break
		}
	}
	p.expectInto(node, TokenRBrace, "expected '}'")
	node.AddChild(p.parseAnnotations())
	return p.finishNode(node)
}

func (p *Parser) parseEnumValue() *Node {
	if !p.check(TokenIdent) {
		return p.errorNode("expected enum value", []TokenKind{TokenComma, TokenSemicolon, TokenRBrace}, TokenIdent)
	}
	node := p.startNode(KindEnumValue)
	node.AddChild(p.leaf(KindIdentifier))
	if p.check(TokenAssign) {
		p.advance()
		if p.check(TokenIntLiteral) {
			node.AddChild(p.leaf(KindLiteral))
		} else {
			node.AddChild(p.missing("expected integer value", TokenIntLiteral))
		}
	}
	node.AddChild(p.parseAnnotations())
	p.skipListSeparator()
	return p.finishNode(node)
}

func (p *Parser) parseSenum() *Node {
	node := p.startNode(KindSenum)
	p.advance()
	p.identifierInto(node, "expected senum name")
	if !p.expectInto(node, TokenLBrace, "expected '{'") {
		return p.finishNode(node)
	}
	for !p.atBodyEnd(TokenRBrace) {
		progressed := p.mustProgress()
		if p.check(TokenStringLiteral) {
			node.AddChild(p.leaf(KindLiteral))
			p.skipListSeparator()
		} else {
			node.AddChild(p.errorNode("expected string", []TokenKind{TokenComma, TokenSemicolon, TokenRBrace}, TokenStringLiteral))
		}
		if !progressed() {
			break
		}
	}
	p.expectInto(node, TokenRBrace, "expected '}'")
	return p.finishNode(node)
}

func (p *Parser) parseStruct(kind NodeKind) *Node {
	node := p.startNode(kind)
	p.advance()
	p.identifierInto(node, "expected name")
	if p.check(TokenIdent) && p.peek().Literal == "xsd_all" {
		p.advance()
	}
	if !p.expectInto(node, TokenLBrace, "expected '{'") {
		return p.finishNode(node)
	}
	p.parseFields(node, TokenRBrace)
	p.expectInto(node, TokenRBrace, "expected '}'")
	node.AddChild(p.parseAnnotations())
	return p.finishNode(node)
}

func (p *Parser) parseFields(parent *Node, closing TokenKind) {
	for !p.atBodyEnd(closing) {
		progressed := p.mustProgress()
		parent.AddChild(p.parseField(closing))
		if !progressed() {
			break
		}
	}
}

func (p *Parser) parseField(closing TokenKind) *Node {
	node := p.startNode(KindField)
	if p.check(TokenIntLiteral) && p.peekN(1).Kind == TokenColon {
		node.AddChild(p.leaf(KindFieldID))
		p.advance()
	}
	if p.match(TokenRequired, TokenOptional) {
		node.AddChild(p.leaf(KindRequiredness))
	}
	typ := p.parseType()
	if typ == nil {
		return p.errorNode("expected field type", []TokenKind{TokenComma, TokenSemicolon, closing}, TokenIdent)
	}
	node.AddChild(typ)
	p.identifierInto(node, "expected field name")
	if p.check(TokenAssign) {
		p.advance()
		node.AddChild(p.parseConstValue())
	}
	node.AddChild(p.parseAnnotations())
	p.skipListSeparator()
	return p.finishNode(node)
}

func (p *Parser) parseService() *Node {
	node := p.startNode(KindService)
	p.advance()
	p.identifierInto(node, "expected service name")
	if p.check(TokenExtends) {
		ext := p.startNode(KindExtends)
		p.advance()
		p.identifierInto(ext, "expected base service")
		node.AddChild(p.finishNode(ext))
	}
	if !p.expectInto(node, TokenLBrace, "expected '{'") {
		return p.finishNode(node)
	}
	for !p.atBodyEnd(TokenRBrace) {
		progressed := p.mustProgress()
		node.AddChild(p.parseFunction())
		if !progressed() {
			break
		}
	}
	p.expectInto(node, TokenRBrace, "expected '}'")
	node.AddChild(p.parseAnnotations())
	return p.finishNode(node)
}

func (p *Parser) parseFunction() *Node {
	node := p.startNode(KindFunction)
	if p.check(TokenOneway) {
		node.AddChild(p.leaf(KindOneway))
	}
	if p.check(TokenVoid) {
		node.AddChild(p.leaf(KindType))
	} else if typ := p.parseType(); typ != nil {
		node.AddChild(typ)
	} else {
		return p.errorNode("expected function", []TokenKind{TokenComma, TokenSemicolon, TokenRBrace}, TokenIdent, TokenVoid)
	}
	p.identifierInto(node, "expected function name")
	if p.expectInto(node, TokenLParen, "expected '('") {
		p.parseFields(node, TokenRParen)
		p.expectInto(node, TokenRParen, "expected ')'")
	}
	if p.check(TokenThrows) {
		throws := p.startNode(KindThrows)
		p.advance()
		if p.expectInto(throws, TokenLParen, "expected '('") {
			p.parseFields(throws, TokenRParen)
			p.expectInto(throws, TokenRParen, "expected ')'")
		}
		node.AddChild(p.finishNode(throws))
	}
	node.AddChild(p.parseAnnotations())
	p.skipListSeparator()
	return p.finishNode(node)
}

// parseType returns nil without consuming input when no type starts here.
func (p *Parser) parseType() *Node {
	var node *Node
	switch p.peek().Kind {
	case TokenIdent:
		node = p.leaf(KindType)
	case TokenMap:
		node = p.startNode(KindType)
		tok := p.advance()
		node.Token = &tok
		if p.expectInto(node, TokenLT, "expected '<'") {
			p.typeArgInto(node)
			p.expectInto(node, TokenComma, "expected ','")
			p.typeArgInto(node)
			p.expectInto(node, TokenGT, "expected '>'")
		}
		node = p.finishNode(node)
	case TokenSet, TokenList:
		node = p.startNode(KindType)
		tok := p.advance()
		node.Token = &tok
		if p.expectInto(node, TokenLT, "expected '<'") {
			p.typeArgInto(node)
			p.expectInto(node, TokenGT, "expected '>'")
		}
		node = p.finishNode(node)
	default:
		return nil
	}
	node.AddChild(p.parseAnnotations())
	return node
}

func (p *Parser) typeArgInto(n *Node) {
	if arg := p.parseType(); arg != nil {
		n.AddChild(arg)
		return
	}
	n.AddChild(p.missing("expected type argument", TokenIdent))
}

func (p *Parser) parseConstValue() *Node {
	switch p.peek().Kind {
	case TokenIntLiteral, TokenDoubleLiteral, TokenStringLiteral:
		return p.leaf(KindLiteral)
	case TokenIdent:
		return p.leaf(KindIdentifier)
	case TokenLBracket:
		node := p.startNode(KindConstList)
		p.advance()
		for !p.atBodyEnd(TokenRBracket) {
			progressed := p.mustProgress()
			node.AddChild(p.parseConstValue())
			p.skipListSeparator()
			if !progressed() {
				break
			}
		}
		p.expectInto(node, TokenRBracket, "expected ']'")
		return p.finishNode(node)
	case TokenLBrace:
		node := p.startNode(KindConstMap)
		p.advance()
		for !p.atBodyEnd(TokenRBrace) {
			progressed := p.mustProgress()
			entry := p.startNode(KindConstMapEntry)
			entry.AddChild(p.parseConstValue())
			if p.expectInto(entry, TokenColon, "expected ':'") {
				entry.AddChild(p.parseConstValue())
			}
			p.skipListSeparator()
			node.AddChild(p.finishNode(entry))
			if !progressed() {
				break
			}
		}
		p.expectInto(node, TokenRBrace, "expected '}'")
		return p.finishNode(node)
	}
	return p.errorNode("expected constant value",
		[]TokenKind{TokenComma, TokenSemicolon, TokenRBrace, TokenRBracket, TokenRParen},
		TokenIntLiteral, TokenDoubleLiteral, TokenStringLiteral, TokenIdent)
}

// parseAnnotations returns nil when no annotation list starts here.
func (p *Parser) parseAnnotations() *Node {
	if !p.check(TokenLParen) {
		return nil
	}
	node := p.startNode(KindAnnotations)
	p.advance()
	for !p.atBodyEnd(TokenRParen) {
		progressed := p.mustProgress()
		if p.check(TokenIdent) {
			ann := p.startNode(KindAnnotation)
			ann.AddChild(p.leaf(KindIdentifier))
			if p.check(TokenAssign) {
				p.advance()
				if p.check(TokenStringLiteral) {
					ann.AddChild(p.leaf(KindLiteral))
				} else {
					ann.AddChild(p.missing("expected annotation value", TokenStringLiteral))
				}
			}
			p.skipListSeparator()
			node.AddChild(p.finishNode(ann))
		} else {
			node.AddChild(p.errorNode("expected annotation", []TokenKind{TokenComma, TokenSemicolon, TokenRParen}, TokenIdent))
		}
		if !progressed() {
			break
		}
	}
	p.expectInto(node, TokenRParen, "expected ')'")
	return p.finishNode(node)
}
