package compiler

import (
	"strconv"
	"strings"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"return":   RETURN,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"switch":   SWITCH,
	"case":     CASE,
	"default":  DEFAULT,
	"break":    BREAK,
	"continue": CONTINUE,
	"goto":     GOTO,
	"typedef":  TYPEDEF,
	"sizeof":   SIZEOF,
	"struct":   STRUCT,
	"union":    UNION,
	"enum":     ENUM,
	"static":   STATIC,
	"void":     VOID,
	"_Bool":    BOOL,
	"bool":     BOOL,
	"char":     CHAR,
	"short":    SHORT,
	"int":      INT,
	"long":     LONG,
}

// punctuators is scanned in order, so every operator must appear before
// any of its prefixes (longest match wins).
var punctuators = []struct {
	text string
	typ  TokenType
}{
	{"<<=", SHL_ASSIGN},
	{">>=", SHR_ASSIGN},
	{"...", ELLIPSIS},
	{"==", EQ},
	{"!=", NE},
	{"<=", LE},
	{">=", GE},
	{"->", ARROW},
	{"&&", AND_AND},
	{"||", OR_OR},
	{"<<", SHL},
	{">>", SHR},
	{"+=", PLUS_ASSIGN},
	{"-=", MINUS_ASSIGN},
	{"*=", STAR_ASSIGN},
	{"/=", SLASH_ASSIGN},
	{"%=", PERCENT_ASSIGN},
	{"++", PLUS_PLUS},
	{"--", MINUS_MINUS},
	{"{", LBRACE},
	{"}", RBRACE},
	{"(", LPAREN},
	{")", RPAREN},
	{"[", LBRACKET},
	{"]", RBRACKET},
	{".", DOT},
	{";", SEMICOLON},
	{",", COMMA},
	{":", COLON},
	{"?", QUESTION},
	{"+", PLUS},
	{"-", MINUS},
	{"*", STAR},
	{"/", SLASH},
	{"%", PERCENT},
	{"&", AMP},
	{"|", PIPE},
	{"^", CARET},
	{"~", TILDE},
	{"!", NOT},
	{"<", LT},
	{">", GT},
	{"=", ASSIGN},
}

// escapes maps the character after a backslash to the byte it denotes.
var escapes = map[byte]byte{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'v':  '\v',
	'e':  27,
	'0':  0,
	'"':  '"',
	'\'': '\'',
	'\\': '\\',
	'?':  '?',
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src       string
	pos       int // index of the next byte to consume
	line      int // current 1-based source line
	lineStart int // index of the first byte of the current line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek2() byte {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one byte and returns it.
func (l *Lexer) advance() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.lineStart = l.pos
	}
	return c
}

func (l *Lexer) col() int { return l.pos - l.lineStart + 1 }

func (l *Lexer) errorf(text string, format string, args ...any) *CompileError {
	e := errorAt(StageLex, nil, format, args...)
	e.Text, e.Line, e.Col = text, l.line, l.col()
	return e
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }

// skipSpaceAndComments discards whitespace and both comment styles.
func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		switch {
		case isSpace(l.peek()):
			l.advance()
		case l.peek() == '/' && l.peek2() == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case l.peek() == '/' && l.peek2() == '*':
			startLine, startCol := l.line, l.col()
			l.pos += 2
			end := strings.Index(l.src[l.pos:], "*/")
			if end < 0 {
				e := l.errorf("/*", "unterminated block comment")
				e.Line, e.Col = startLine, startCol
				return e
			}
			for stop := l.pos + end + 2; l.pos < stop; {
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

// scanIdent collects a full identifier or keyword token.
func (l *Lexer) scanIdent() Token {
	tok := Token{Line: l.line, Col: l.col()}
	start := l.pos
	for l.pos < len(l.src) && isAlnum(l.peek()) {
		l.advance()
	}
	tok.Lexeme = l.src[start:l.pos]
	tok.Type = IDENTIFIER
	if kw, ok := keywords[tok.Lexeme]; ok {
		tok.Type = kw
	}
	return tok
}

// scanNumber collects an integer or floating literal. Prefixes 0x, 0b and a
// leading 0 select hex, binary and octal. A literal with '.', an exponent
// or an f suffix is a float.
func (l *Lexer) scanNumber() (Token, error) {
	tok := Token{Type: NUMBER, Line: l.line, Col: l.col()}
	start := l.pos
	hex := l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X')
	for l.pos < len(l.src) {
		c := l.peek()
		if isAlnum(c) || c == '.' {
			l.advance()
			continue
		}
		// exponent sign: 1e-3, 2E+8
		if !hex && (c == '+' || c == '-') {
			if prev := l.src[l.pos-1]; prev == 'e' || prev == 'E' {
				l.advance()
				continue
			}
		}
		break
	}
	tok.Lexeme = l.src[start:l.pos]

	text := tok.Lexeme
	isFloat := !hex && (strings.ContainsAny(text, ".eE") || strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F"))
	if isFloat {
		f, err := strconv.ParseFloat(strings.TrimRight(text, "fFlL"), 64)
		if err != nil {
			return Token{}, l.errorf(text, "invalid floating literal")
		}
		tok.IsFloat, tok.FVal, tok.Val = true, f, int64(f)
		return tok, nil
	}

	text = strings.TrimRight(text, "uUlL")
	// strconv treats "0b" and "0x" prefixes and a leading 0 as octal with base 0.
	u, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return Token{}, l.errorf(tok.Lexeme, "invalid integer literal")
	}
	tok.Val = int64(u)
	return tok, nil
}

// scanEscape decodes the escape sequence after a backslash, which has
// already been consumed.
func (l *Lexer) scanEscape() (byte, error) {
	c := l.peek()
	if c == 'x' {
		l.advance()
		var v byte
		n := 0
		for ; n < 2 && strings.IndexByte("0123456789abcdefABCDEF", l.peek()) >= 0; n++ {
			d, _ := strconv.ParseUint(string(l.advance()), 16, 8)
			v = v<<4 | byte(d)
		}
		if n == 0 {
			return 0, l.errorf(`\x`, "invalid hex escape sequence")
		}
		return v, nil
	}
	b, ok := escapes[c]
	if !ok {
		return 0, l.errorf(`\`+string(c), "unknown escape sequence")
	}
	l.advance()
	return b, nil
}

// scanChar collects a character literal 'c' as a NUMBER token.
func (l *Lexer) scanChar() (Token, error) {
	tok := Token{Type: NUMBER, Line: l.line, Col: l.col()}
	start := l.pos
	l.advance() // opening '

	var val byte
	switch c := l.peek(); c {
	case '\'':
		return Token{}, l.errorf("''", "empty character literal")
	case '\\':
		l.advance()
		b, err := l.scanEscape()
		if err != nil {
			return Token{}, err
		}
		val = b
	case 0, '\n':
		return Token{}, l.errorf("'", "unterminated character literal")
	default:
		val = l.advance()
	}
	if l.peek() != '\'' {
		return Token{}, l.errorf(l.src[start:l.pos], "unterminated character literal")
	}
	l.advance()
	tok.Lexeme = l.src[start:l.pos]
	tok.Val = int64(int8(val))
	return tok, nil
}

// scanString collects a string literal and decodes its payload.
func (l *Lexer) scanString() (Token, error) {
	tok := Token{Type: STRING, Line: l.line, Col: l.col()}
	start := l.pos
	l.advance() // opening "
	var buf []byte
	for {
		c := l.peek()
		if l.pos >= len(l.src) || c == '\n' {
			e := l.errorf(l.src[start:l.pos], "unterminated string literal")
			e.Line, e.Col = tok.Line, tok.Col
			return Token{}, e
		}
		if c == '"' {
			break
		}
		l.advance()
		if c == '\\' {
			b, err := l.scanEscape()
			if err != nil {
				return Token{}, err
			}
			buf = append(buf, b)
			continue
		}
		buf = append(buf, c)
	}
	l.advance() // closing "
	tok.Lexeme = l.src[start:l.pos]
	tok.Str = append(buf, 0)
	return tok, nil
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Line: l.line, Col: l.col()}, nil
	}

	c := l.peek()
	switch {
	case c == '"':
		return l.scanString()
	case c == '\'':
		return l.scanChar()
	case isDigit(c):
		return l.scanNumber()
	}

	for _, p := range punctuators {
		if strings.HasPrefix(l.src[l.pos:], p.text) {
			tok := Token{Type: p.typ, Lexeme: p.text, Line: l.line, Col: l.col()}
			l.pos += len(p.text)
			return tok, nil
		}
	}

	if isAlpha(c) {
		return l.scanIdent(), nil
	}
	return Token{}, l.errorf(string(c), "unexpected character %q", c)
}

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a *CompileError on the first illegal character, malformed
// literal or unterminated comment.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
