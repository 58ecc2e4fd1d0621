package parser

import "strconv"

// Position is a location in a document. Line and Column are 1-based.
type Position struct {
	File   string
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Column)
}

type Span struct {
	Start Position
	End   Position
}

type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenError
	TokenWhitespace
	TokenComment
	TokenLineComment

	// Literals
	TokenIdent
	TokenIntLiteral
	TokenDoubleLiteral
	TokenStringLiteral

	// Keywords
	TokenInclude
	TokenCppInclude
	TokenNamespace
	TokenConst
	TokenTypedef
	TokenEnum
	TokenSenum
	TokenStruct
	TokenUnion
	TokenException
	TokenService
	TokenExtends
	TokenRequired
	TokenOptional
	TokenOneway
	TokenVoid
	TokenThrows
	TokenMap
	TokenSet
	TokenList

	// Punctuation
	TokenLBrace
	TokenRBrace
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenLT
	TokenGT
	TokenComma
	TokenSemicolon
	TokenColon
	TokenAssign
	TokenStar
)

var tokenKindNames = map[TokenKind]string{
	TokenEOF:           "EOF",
	TokenError:         "Error",
	TokenWhitespace:    "Whitespace",
	TokenComment:       "Comment",
	TokenLineComment:   "LineComment",
	TokenIdent:         "Identifier",
	TokenIntLiteral:    "IntLiteral",
	TokenDoubleLiteral: "DoubleLiteral",
	TokenStringLiteral: "StringLiteral",
	TokenInclude:       "include",
	TokenCppInclude:    "cpp_include",
	TokenNamespace:     "namespace",
	TokenConst:         "const",
	TokenTypedef:       "typedef",
	TokenEnum:          "enum",
	TokenSenum:         "senum",
	TokenStruct:        "struct",
	TokenUnion:         "union",
	TokenException:     "exception",
	TokenService:       "service",
	TokenExtends:       "extends",
	TokenRequired:      "required",
	TokenOptional:      "optional",
	TokenOneway:        "oneway",
	TokenVoid:          "void",
	TokenThrows:        "throws",
	TokenMap:           "map",
	TokenSet:           "set",
	TokenList:          "list",
	TokenLBrace:        "{",
	TokenRBrace:        "}",
	TokenLParen:        "(",
	TokenRParen:        ")",
	TokenLBracket:      "[",
	TokenRBracket:      "]",
	TokenLT:            "<",
	TokenGT:            ">",
	TokenComma:         ",",
	TokenSemicolon:     ";",
	TokenColon:         ":",
	TokenAssign:        "=",
	TokenStar:          "*",
}

func (k TokenKind) String() string {
	if name, ok := tokenKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

type Token struct {
	Kind    TokenKind
	Span    Span
	Literal string
}

var keywords = map[string]TokenKind{
	"include":     TokenInclude,
	"cpp_include": TokenCppInclude,
	"namespace":   TokenNamespace,
	"const":       TokenConst,
	"typedef":     TokenTypedef,
	"enum":        TokenEnum,
	"senum":       TokenSenum,
	"struct":      TokenStruct,
	"union":       TokenUnion,
	"exception":   TokenException,
	"service":     TokenService,
	"extends":     TokenExtends,
	"required":    TokenRequired,
	"optional":    TokenOptional,
	"oneway":      TokenOneway,
	"void":        TokenVoid,
	"throws":      TokenThrows,
	"map":         TokenMap,
	"set":         TokenSet,
	"list":        TokenList,
}

func LookupKeyword(ident string) TokenKind {
	if kind, ok := keywords[ident]; ok {
		return kind
	}
	return TokenIdent
}

// IsDefinitionKeyword reports whether kind starts a top-level header or
// definition.
func IsDefinitionKeyword(kind TokenKind) bool {
	switch kind {
	case TokenInclude, TokenCppInclude, TokenNamespace,
		TokenConst, TokenTypedef, TokenEnum, TokenSenum,
		TokenStruct, TokenUnion, TokenException, TokenService:
		return true
	}
	return false
}
