package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / type name
	NUMBER     // integer, character or floating literal
	STRING     // string literal "..."

	// Keywords
	RETURN
	IF
	ELSE
	WHILE
	DO
	FOR
	SWITCH
	CASE
	DEFAULT
	BREAK
	CONTINUE
	GOTO
	TYPEDEF
	SIZEOF
	STRUCT
	UNION
	ENUM
	STATIC
	VOID
	BOOL
	CHAR
	SHORT
	INT
	LONG

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT       // .
	ARROW     // ->
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :
	QUESTION  // ?
	ELLIPSIS  // ...

	// Arithmetic and bitwise operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	AMP     // & (bitwise AND, or unary address-of)
	PIPE    // |
	CARET   // ^
	TILDE   // ~
	SHL     // <<
	SHR     // >>

	// Logical operators
	AND_AND // &&
	OR_OR   // ||
	NOT     // !

	// Increment / decrement
	PLUS_PLUS   // ++
	MINUS_MINUS // --

	// Assignment
	ASSIGN         // =
	PLUS_ASSIGN    // +=
	MINUS_ASSIGN   // -=
	STAR_ASSIGN    // *=
	SLASH_ASSIGN   // /=
	PERCENT_ASSIGN // %=
	SHL_ASSIGN     // <<=
	SHR_ASSIGN     // >>=

	// Comparison
	EQ      // ==
	NE      // !=
	LT      // <
	LE      // <=
	GT      // >
	GE      // >=
	numTokenTypes
)

var tokenNames = [...]string{
	EOF:            "EOF",
	IDENTIFIER:     "IDENTIFIER",
	NUMBER:         "NUMBER",
	STRING:         "STRING",
	RETURN:         "RETURN",
	IF:             "IF",
	ELSE:           "ELSE",
	WHILE:          "WHILE",
	DO:             "DO",
	FOR:            "FOR",
	SWITCH:         "SWITCH",
	CASE:           "CASE",
	DEFAULT:        "DEFAULT",
	BREAK:          "BREAK",
	CONTINUE:       "CONTINUE",
	GOTO:           "GOTO",
	TYPEDEF:        "TYPEDEF",
	SIZEOF:         "SIZEOF",
	STRUCT:         "STRUCT",
	UNION:          "UNION",
	ENUM:           "ENUM",
	STATIC:         "STATIC",
	VOID:           "VOID",
	BOOL:           "BOOL",
	CHAR:           "CHAR",
	SHORT:          "SHORT",
	INT:            "INT",
	LONG:           "LONG",
	LBRACE:         "LBRACE",
	RBRACE:         "RBRACE",
	LPAREN:         "LPAREN",
	RPAREN:         "RPAREN",
	LBRACKET:       "LBRACKET",
	RBRACKET:       "RBRACKET",
	DOT:            "DOT",
	ARROW:          "ARROW",
	SEMICOLON:      "SEMICOLON",
	COMMA:          "COMMA",
	COLON:          "COLON",
	QUESTION:       "QUESTION",
	ELLIPSIS:       "ELLIPSIS",
	PLUS:           "PLUS",
	MINUS:          "MINUS",
	STAR:           "STAR",
	SLASH:          "SLASH",
	PERCENT:        "PERCENT",
	AMP:            "AMP",
	PIPE:           "PIPE",
	CARET:          "CARET",
	TILDE:          "TILDE",
	SHL:            "SHL",
	SHR:            "SHR",
	AND_AND:        "AND_AND",
	OR_OR:          "OR_OR",
	NOT:            "NOT",
	PLUS_PLUS:      "PLUS_PLUS",
	MINUS_MINUS:    "MINUS_MINUS",
	ASSIGN:         "ASSIGN",
	PLUS_ASSIGN:    "PLUS_ASSIGN",
	MINUS_ASSIGN:   "MINUS_ASSIGN",
	STAR_ASSIGN:    "STAR_ASSIGN",
	SLASH_ASSIGN:   "SLASH_ASSIGN",
	PERCENT_ASSIGN: "PERCENT_ASSIGN",
	SHL_ASSIGN:     "SHL_ASSIGN",
	SHR_ASSIGN:     "SHR_ASSIGN",
	EQ:             "EQ",
	NE:             "NE",
	LT:             "LT",
	LE:             "LE",
	GT:             "GT",
	GE:             "GE",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) && tokenNames[tt] != "" {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// IsReserved reports whether tt is a keyword or punctuator rather than a
// literal, identifier or EOF.
func (tt TokenType) IsReserved() bool {
	return tt > STRING && tt < numTokenTypes
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
	Col    int    // 1-based column of the first character

	// NUMBER payload. Float literals keep the parsed value in FVal and the
	// truncated integer in Val.
	Val     int64
	FVal    float64
	IsFloat bool

	// STRING payload: decoded bytes including the terminating NUL.
	Str []byte
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d:%d", t.Type, t.Lexeme, t.Line, t.Col)
}
