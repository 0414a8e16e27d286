package shader

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function / struct name
	INT_LIT    // decimal or hex integer literal
	UINT_LIT   // integer literal with a u/U suffix, e.g. 3u
	FLOAT_LIT  // literal with a decimal point or exponent, e.g. 1.0

	// TYPE covers every built-in type name (float, vec3, mat2x4, ...).
	// The lexeme carries the concrete name.
	TYPE

	// Keywords
	CONST    // "const"
	UNIFORM  // "uniform"
	IN       // "in"
	OUT      // "out"
	INOUT    // "inout"
	BUFFER   // "buffer"
	SHARED   // "shared"
	STRUCT   // "struct"
	IF       // "if"
	ELSE     // "else"
	WHILE    // "while"
	DO       // "do"
	FOR      // "for"
	RETURN   // "return"
	BREAK    // "break"
	CONTINUE // "continue"
	DISCARD  // "discard"
	TRUE     // "true"
	FALSE    // "false"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT       // .
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :
	QUESTION  // ?

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	AMP     // &
	PIPE    // |
	CARET   // ^
	TILDE   // ~
	NOT     // !
	SHL     // <<
	SHR     // >>
	AND_AND // &&
	OR_OR   // ||
	XOR_XOR // ^^

	PLUS_PLUS   // ++
	MINUS_MINUS // --

	// Assignment / comparison (order matters: ASSIGN before EQUALS)
	ASSIGN       // =
	PLUS_ASSIGN  // +=
	MINUS_ASSIGN // -=
	STAR_ASSIGN  // *=
	SLASH_ASSIGN // /=

	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

var tokenNames = map[TokenType]string{
	EOF: "EOF", IDENTIFIER: "identifier", INT_LIT: "integer", UINT_LIT: "unsigned integer",
	FLOAT_LIT: "float", TYPE: "type name",
	CONST: "const", UNIFORM: "uniform", IN: "in", OUT: "out", INOUT: "inout",
	BUFFER: "buffer", SHARED: "shared", STRUCT: "struct",
	IF: "if", ELSE: "else", WHILE: "while", DO: "do", FOR: "for",
	RETURN: "return", BREAK: "break", CONTINUE: "continue", DISCARD: "discard",
	TRUE: "true", FALSE: "false",
	LBRACE: "{", RBRACE: "}", LPAREN: "(", RPAREN: ")", LBRACKET: "[", RBRACKET: "]",
	DOT: ".", SEMICOLON: ";", COMMA: ",", COLON: ":", QUESTION: "?",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%",
	AMP: "&", PIPE: "|", CARET: "^", TILDE: "~", NOT: "!",
	SHL: "<<", SHR: ">>", AND_AND: "&&", OR_OR: "||", XOR_XOR: "^^",
	PLUS_PLUS: "++", MINUS_MINUS: "--",
	ASSIGN: "=", PLUS_ASSIGN: "+=", MINUS_ASSIGN: "-=", STAR_ASSIGN: "*=", SLASH_ASSIGN: "/=",
	EQUALS: "==", NOT_EQ: "!=", LESS: "<", GREATER: ">", LESS_EQ: "<=", GREATER_EQ: ">=",
}

func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexed element with its source position.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int // 1-based
	Col    int // 1-based
}

func (t Token) String() string {
	if t.Lexeme != "" && t.Lexeme != t.Type.String() {
		return fmt.Sprintf("%d:%d %s %q", t.Line, t.Col, t.Type, t.Lexeme)
	}
	return fmt.Sprintf("%d:%d %s", t.Line, t.Col, t.Type)
}
