package shader

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"const":    CONST,
	"uniform":  UNIFORM,
	"in":       IN,
	"out":      OUT,
	"inout":    INOUT,
	"buffer":   BUFFER,
	"shared":   SHARED,
	"struct":   STRUCT,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"discard":  DISCARD,
	"true":     TRUE,
	"false":    FALSE,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based column
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, col: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	startLine := l.line
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return fmt.Errorf("unterminated block comment (opened on line %d)", startLine)
}

// scanIdent collects a full identifier, keyword, or built-in type name.
func (l *Lexer) scanIdent() Token {
	line, col := l.line, l.col
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	} else if _, ok := typeByName[lexeme]; ok {
		tt = TYPE
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line, Col: col}
}

// scanNumber collects an integer or float literal. Hex integers (0x...),
// u/U suffixes, decimal points and e/E exponents are supported.
func (l *Lexer) scanNumber() (Token, error) {
	line, col := l.line, l.col
	start := l.pos

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
		tt := INT_LIT
		if l.peek() == 'u' || l.peek() == 'U' {
			l.advance()
			tt = UINT_LIT
		}
		return Token{Type: tt, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col}, nil
	}

	for unicode.IsDigit(l.peek()) {
		l.advance()
	}

	isFloat := false
	if l.peek() == '.' {
		isFloat = true
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	if l.scanExponent() {
		isFloat = true
	}

	if isFloat {
		return Token{Type: FLOAT_LIT, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col}, nil
	}

	tt := INT_LIT
	if l.peek() == 'u' || l.peek() == 'U' {
		l.advance()
		tt = UINT_LIT
	}
	return Token{Type: tt, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col}, nil
}

// scanExponent consumes an e/E exponent with optional sign if one starts at
// the current position, reporting whether it did.
func (l *Lexer) scanExponent() bool {
	if l.peek() != 'e' && l.peek() != 'E' {
		return false
	}
	next := l.peek2()
	if next == '+' || next == '-' {
		if l.pos+2 >= len(l.src) || !unicode.IsDigit(l.src[l.pos+2]) {
			return false
		}
		l.advance()
		l.advance()
	} else if unicode.IsDigit(next) {
		l.advance()
	} else {
		return false
	}
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	return true
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// Lex scans the whole source and returns the token stream, ending with EOF.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token

	two := map[string]TokenType{
		"<<": SHL, ">>": SHR, "&&": AND_AND, "||": OR_OR, "^^": XOR_XOR,
		"++": PLUS_PLUS, "--": MINUS_MINUS,
		"+=": PLUS_ASSIGN, "-=": MINUS_ASSIGN, "*=": STAR_ASSIGN, "/=": SLASH_ASSIGN,
		"==": EQUALS, "!=": NOT_EQ, "<=": LESS_EQ, ">=": GREATER_EQ,
	}
	one := map[rune]TokenType{
		'{': LBRACE, '}': RBRACE, '(': LPAREN, ')': RPAREN, '[': LBRACKET, ']': RBRACKET,
		'.': DOT, ';': SEMICOLON, ',': COMMA, ':': COLON, '?': QUESTION,
		'+': PLUS, '-': MINUS, '*': STAR, '/': SLASH, '%': PERCENT,
		'&': AMP, '|': PIPE, '^': CARET, '~': TILDE, '!': NOT,
		'=': ASSIGN, '<': LESS, '>': GREATER,
	}

	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			break
		}
		r := l.peek()

		switch {
		case r == '/' && l.peek2() == '/':
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		case r == '/' && l.peek2() == '*':
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return nil, err
			}
			continue
		case unicode.IsLetter(r) || r == '_':
			tokens = append(tokens, l.scanIdent())
			continue
		case unicode.IsDigit(r):
			tok, err := l.scanNumber()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			continue
		case r == '.' && unicode.IsDigit(l.peek2()):
			// .5 style literal
			line, col := l.line, l.col
			start := l.pos
			l.advance()
			for unicode.IsDigit(l.peek()) {
				l.advance()
			}
			l.scanExponent()
			tokens = append(tokens, Token{Type: FLOAT_LIT, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col})
			continue
		}

		line, col := l.line, l.col
		if tt, ok := two[string(r)+string(l.peek2())]; ok {
			lx := string(r) + string(l.peek2())
			l.advance()
			l.advance()
			tokens = append(tokens, Token{Type: tt, Lexeme: lx, Line: line, Col: col})
			continue
		}
		if tt, ok := one[r]; ok {
			l.advance()
			tokens = append(tokens, Token{Type: tt, Lexeme: string(r), Line: line, Col: col})
			continue
		}
		return nil, fmt.Errorf("line %d: unexpected character %q", l.line, string(r))
	}

	tokens = append(tokens, Token{Type: EOF, Line: l.line, Col: l.col})
	return tokens, nil
}
