package shader

import (
	"fmt"
	"strconv"
	"strings"

	"lumen/pkg/fixp"
)

// Parser consumes the flat token slice produced by the Lexer and builds an
// untyped AST.
//
// Grammar (expression precedence, loosest first):
//
//	expression     = ternary
//	ternary        = logical_or ("?" expression ":" ternary)?
//	logical_or     = logical_xor ("||" logical_xor)*
//	logical_xor    = logical_and ("^^" logical_and)*
//	logical_and    = bitwise_or ("&&" bitwise_or)*
//	bitwise_or     = bitwise_xor ("|" bitwise_xor)*
//	bitwise_xor    = bitwise_and ("^" bitwise_and)*
//	bitwise_and    = equality ("&" equality)*
//	equality       = relational (("=="|"!=") relational)*
//	relational     = shift (("<"|">"|"<="|">=") shift)*
//	shift          = additive (("<<"|">>") additive)*
//	additive       = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = unary (("*"|"/"|"%") unary)*
//	unary          = ("-"|"+"|"!"|"~"|"++"|"--") unary | postfix
//	postfix        = primary ("[" expression "]" | "." IDENT ("()")? | "++" | "--")*
//	primary        = literal | IDENT ("(" args ")")? | TYPE dims? "(" args ")" | "(" expression ")"
//
// Assignment is a statement form, not an expression. The parser performs no
// arithmetic: array size expressions are kept as AST for the analyzer.
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

// NewParser wraps a token stream. rawSource is kept for error snippets.
func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse builds the top-level declaration list for a compilation unit.
func Parse(tokens []Token, rawSource string) ([]Stmt, error) {
	p := NewParser(tokens, rawSource)
	var stmts []Stmt
	for p.peek().Type != EOF {
		s, err := p.parseTopLevel()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// fmtError wraps an error message with the source line where the token
// appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	return &Diag{
		Code:    ErrSyntax,
		Line:    tok.Line,
		Col:     tok.Col,
		Msg:     fmt.Sprintf(format, args...),
		Snippet: snippetOf(p.sourceLines, tok),
	}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise errors.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// accept consumes the current token iff it matches tt.
func (p *Parser) accept(tt TokenType) bool {
	if p.peek().Type == tt {
		p.pos++
		return true
	}
	return false
}

//  Top level

func (p *Parser) parseTopLevel() (Stmt, error) {
	if p.peek().Type == STRUCT {
		return p.parseStructDecl()
	}

	qual, isConst, err := p.parseStorageQualifiers()
	if err != nil {
		return nil, err
	}

	ref, err := p.parseTypeRef()
	if err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}

	if p.peek().Type == LPAREN {
		if qual != QualNone || isConst {
			return nil, p.fmtError(name, "storage qualifiers are not allowed on functions")
		}
		return p.parseFunctionRest(ref, name)
	}
	return p.parseVarDeclRest(ref, name, qual, isConst)
}

// parseStorageQualifiers consumes leading const/uniform/in/out/buffer/shared
// keywords. const may combine with a storage qualifier; everything else is
// exclusive.
func (p *Parser) parseStorageQualifiers() (StorageQual, bool, error) {
	qual := QualNone
	isConst := false
	for {
		switch p.peek().Type {
		case CONST:
			p.advance()
			isConst = true
		case UNIFORM, IN, OUT, BUFFER, SHARED:
			tok := p.advance()
			if qual != QualNone {
				return qual, isConst, p.fmtError(tok, "conflicting storage qualifiers")
			}
			switch tok.Type {
			case UNIFORM:
				qual = QualUniform
			case IN:
				qual = QualIn
			case OUT:
				qual = QualOut
			case BUFFER:
				qual = QualBuffer
			case SHARED:
				qual = QualShared
			}
		default:
			if isConst && qual == QualNone {
				qual = QualConst
			}
			return qual, isConst, nil
		}
	}
}

// parseTypeRef consumes a type name plus any array dimensions written on
// the type itself ("float[4]"). Dimensions written after the declarator
// name are appended by the caller.
func (p *Parser) parseTypeRef() (TypeRef, error) {
	tok := p.advance()
	if tok.Type != TYPE && tok.Type != IDENTIFIER {
		return TypeRef{}, p.fmtError(tok, "expected type, got %s (%q)", tok.Type, tok.Lexeme)
	}
	ref := TypeRef{Name: tok.Lexeme, Tok: tok}
	if err := p.parseArrayDims(&ref); err != nil {
		return TypeRef{}, err
	}
	return ref, nil
}

func (p *Parser) parseArrayDims(ref *TypeRef) error {
	for p.accept(LBRACKET) {
		if p.accept(RBRACKET) {
			ref.Dims = append(ref.Dims, nil)
			continue
		}
		dim, err := p.parseExpression()
		if err != nil {
			return err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return err
		}
		ref.Dims = append(ref.Dims, dim)
	}
	return nil
}

func (p *Parser) parseVarDeclRest(ref TypeRef, name Token, qual StorageQual, isConst bool) (Stmt, error) {
	if isConst && qual != QualConst && qual != QualNone {
		// const in/const out globals are a qualifier question for the
		// analyzer; keep the storage qualifier and drop the flag there.
		qual = QualConst
	}
	if err := p.parseArrayDims(&ref); err != nil {
		return nil, err
	}

	decl := &VarDecl{Name: name.Lexeme, Tok: name, Ref: ref, Qual: qual, Sym: NoSymbol}
	if p.accept(ASSIGN) {
		init, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		decl.Init = init
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseStructDecl() (Stmt, error) {
	p.advance() // struct
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}

	decl := &StructDecl{Name: name.Lexeme, Tok: name}
	for p.peek().Type != RBRACE {
		ref, err := p.parseTypeRef()
		if err != nil {
			return nil, err
		}
		fname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if err := p.parseArrayDims(&ref); err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		decl.Fields = append(decl.Fields, StructField{Name: fname.Lexeme, Tok: fname, Ref: ref})
	}
	p.advance() // }
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	if len(decl.Fields) == 0 {
		return nil, p.fmtError(name, "struct %q has no members", name.Lexeme)
	}
	return decl, nil
}

func (p *Parser) parseFunctionRest(ret TypeRef, name Token) (Stmt, error) {
	p.advance() // (

	fn := &FuncDecl{Name: name.Lexeme, Tok: name, Ret: ret}
	if !p.accept(RPAREN) {
		// "f(void)" is the empty parameter list.
		if p.peek().Type == TYPE && p.peek().Lexeme == "void" && p.peekAt(1).Type == RPAREN {
			p.advance()
			p.advance()
		} else {
			for {
				param, err := p.parseParam()
				if err != nil {
					return nil, err
				}
				fn.Params = append(fn.Params, param)
				if !p.accept(COMMA) {
					break
				}
			}
			if _, err := p.expect(RPAREN); err != nil {
				return nil, err
			}
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *Parser) parseParam() (ParamDecl, error) {
	var param ParamDecl
	for {
		switch p.peek().Type {
		case CONST:
			p.advance()
			param.IsConst = true
			continue
		case IN:
			p.advance()
			param.Qual = ParamIn
			continue
		case OUT:
			p.advance()
			param.Qual = ParamOut
			continue
		case INOUT:
			p.advance()
			param.Qual = ParamInOut
			continue
		}
		break
	}

	ref, err := p.parseTypeRef()
	if err != nil {
		return param, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return param, err
	}
	if err := p.parseArrayDims(&ref); err != nil {
		return param, err
	}
	param.Ref = ref
	param.Name = name.Lexeme
	param.Tok = name
	return param, nil
}

//  Statements

func (p *Parser) parseBlock() (*Block, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	blk := &Block{}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "unterminated block")
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, s)
	}
	p.advance() // }
	return blk, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case LBRACE:
		return p.parseBlock()
	case STRUCT:
		return p.parseStructDecl()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case DO:
		return p.parseDoWhile()
	case FOR:
		return p.parseFor()
	case RETURN:
		tok := p.advance()
		ret := &Return{Tok: tok}
		if p.peek().Type != SEMICOLON {
			x, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			ret.X = x
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return ret, nil
	case BREAK:
		tok := p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &Break{Tok: tok}, nil
	case CONTINUE:
		tok := p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &Continue{Tok: tok}, nil
	case DISCARD:
		tok := p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &Discard{Tok: tok}, nil
	}

	if p.startsDeclaration() {
		qual, isConst, err := p.parseStorageQualifiers()
		if err != nil {
			return nil, err
		}
		ref, err := p.parseTypeRef()
		if err != nil {
			return nil, err
		}
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		return p.parseVarDeclRest(ref, name, qual, isConst)
	}

	s, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return s, nil
}

// startsDeclaration decides whether the upcoming tokens begin a variable
// declaration rather than an expression. "vec3 v" is a declaration,
// "vec3(1.0)" is a constructor expression; for array-typed declarations the
// bracketed size has to be skipped to see the declarator name.
func (p *Parser) startsDeclaration() bool {
	switch p.peek().Type {
	case CONST, UNIFORM, IN, OUT, BUFFER, SHARED:
		return true
	case TYPE:
		return p.identAfterDims(1)
	case IDENTIFIER:
		// "Name ident" declares a struct-typed variable.
		return p.identAfterDims(1)
	}
	return false
}

// identAfterDims reports whether, after skipping balanced [...] groups
// starting at the given offset, the next token is an identifier.
func (p *Parser) identAfterDims(offset int) bool {
	for p.peekAt(offset).Type == LBRACKET {
		depth := 1
		offset++
		for depth > 0 {
			switch p.peekAt(offset).Type {
			case LBRACKET:
				depth++
			case RBRACKET:
				depth--
			case EOF:
				return false
			}
			offset++
		}
	}
	return p.peekAt(offset).Type == IDENTIFIER
}

// parseSimple parses an expression statement or an assignment, without the
// trailing semicolon (shared by statement position and for-loop clauses).
func (p *Parser) parseSimple() (Stmt, error) {
	lhs, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	switch p.peek().Type {
	case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN:
		op := p.advance().Type
		rhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &Assign{L: lhs, Op: op, R: rhs}, nil
	}
	return &ExprStmt{X: lhs}, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	p.advance() // if
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt := &If{Cond: cond, Then: then}
	if p.accept(ELSE) {
		els, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	p.advance() // while
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: body}, nil
}

func (p *Parser) parseDoWhile() (Stmt, error) {
	p.advance() // do
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE); err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &DoWhile{Body: body, Cond: cond}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	p.advance() // for
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	stmt := &For{}
	if !p.accept(SEMICOLON) {
		if p.startsDeclaration() {
			qual, isConst, err := p.parseStorageQualifiers()
			if err != nil {
				return nil, err
			}
			ref, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			init, err := p.parseVarDeclRest(ref, name, qual, isConst)
			if err != nil {
				return nil, err
			}
			stmt.Init = init
		} else {
			init, err := p.parseSimple()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
			stmt.Init = init
		}
	}

	if !p.accept(SEMICOLON) {
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		stmt.Cond = cond
	}

	if p.peek().Type != RPAREN {
		post, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		stmt.Post = post
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	return stmt, nil
}

//  Expressions

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseTernary()
}

func (p *Parser) parseTernary() (Expr, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if !p.accept(QUESTION) {
		return cond, nil
	}
	tok := cond.Info().Tok
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	t := &Ternary{Cond: cond, Then: then, Else: els}
	t.Tok = tok
	return t, nil
}

// binaryLevel builds one left-associative precedence level.
func (p *Parser) binaryLevel(next func() (Expr, error), logical bool, ops ...TokenType) (Expr, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}
	for {
		match := false
		for _, op := range ops {
			if p.peek().Type == op {
				match = true
				break
			}
		}
		if !match {
			return expr, nil
		}
		opTok := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		if logical {
			node := &Logical{Op: opTok.Type, L: expr, R: right}
			node.Tok = opTok
			expr = node
		} else {
			node := &Binary{Op: opTok.Type, L: expr, R: right}
			node.Tok = opTok
			expr = node
		}
	}
}

func (p *Parser) parseLogicalOr() (Expr, error) {
	return p.binaryLevel(p.parseLogicalXor, true, OR_OR)
}

func (p *Parser) parseLogicalXor() (Expr, error) {
	return p.binaryLevel(p.parseLogicalAnd, true, XOR_XOR)
}

func (p *Parser) parseLogicalAnd() (Expr, error) {
	return p.binaryLevel(p.parseBitwiseOr, true, AND_AND)
}

func (p *Parser) parseBitwiseOr() (Expr, error) {
	return p.binaryLevel(p.parseBitwiseXor, false, PIPE)
}

func (p *Parser) parseBitwiseXor() (Expr, error) {
	return p.binaryLevel(p.parseBitwiseAnd, false, CARET)
}

func (p *Parser) parseBitwiseAnd() (Expr, error) {
	return p.binaryLevel(p.parseEquality, false, AMP)
}

func (p *Parser) parseEquality() (Expr, error) {
	return p.binaryLevel(p.parseRelational, false, EQUALS, NOT_EQ)
}

func (p *Parser) parseRelational() (Expr, error) {
	return p.binaryLevel(p.parseShift, false, LESS, GREATER, LESS_EQ, GREATER_EQ)
}

func (p *Parser) parseShift() (Expr, error) {
	return p.binaryLevel(p.parseAdditive, false, SHL, SHR)
}

func (p *Parser) parseAdditive() (Expr, error) {
	return p.binaryLevel(p.parseMultiplicative, false, PLUS, MINUS)
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.binaryLevel(p.parseUnary, false, STAR, SLASH, PERCENT)
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.peek().Type {
	case MINUS, PLUS, NOT, TILDE, PLUS_PLUS, MINUS_MINUS:
		tok := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		node := &Unary{Op: tok.Type, X: x}
		node.Tok = tok
		return node, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case LBRACKET:
			tok := p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			node := &Index{X: expr, Index: idx}
			node.Tok = tok
			expr = node
		case DOT:
			p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			if name.Lexeme == "length" && p.peek().Type == LPAREN {
				p.advance()
				if _, err := p.expect(RPAREN); err != nil {
					return nil, err
				}
				node := &Length{X: expr}
				node.Tok = name
				expr = node
				continue
			}
			node := &Member{X: expr, Name: name.Lexeme, MemberIndex: -1}
			node.Tok = name
			expr = node
		case PLUS_PLUS, MINUS_MINUS:
			tok := p.advance()
			node := &Unary{Op: tok.Type, X: expr, Postfix: true}
			node.Tok = tok
			expr = node
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INT_LIT, UINT_LIT:
		p.advance()
		text := strings.TrimRight(tok.Lexeme, "uU")
		v, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return nil, p.fmtError(tok, "bad integer literal %q", tok.Lexeme)
		}
		node := &IntLit{Value: uint32(v), IsUint: tok.Type == UINT_LIT}
		node.Tok = tok
		return node, nil

	case FLOAT_LIT:
		p.advance()
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, p.fmtError(tok, "bad float literal %q", tok.Lexeme)
		}
		node := &FloatLit{Bits: fixp.FromFloat(f), Text: tok.Lexeme}
		node.Tok = tok
		return node, nil

	case TRUE, FALSE:
		p.advance()
		node := &BoolLit{Value: tok.Type == TRUE}
		node.Tok = tok
		return node, nil

	case TYPE:
		ref, err := p.parseTypeRef()
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		node := &Construct{Ref: ref, Args: args}
		node.Tok = tok
		return node, nil

	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			node := &Call{Name: tok.Lexeme, Args: args}
			node.Tok = tok
			return node, nil
		}
		node := &Ident{Name: tok.Lexeme, Sym: NoSymbol}
		node.Tok = tok
		return node, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}

	return nil, p.fmtError(tok, "unexpected %s (%q)", tok.Type, tok.Lexeme)
}

func (p *Parser) parseArgs() ([]Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var args []Expr
	if p.accept(RPAREN) {
		return args, nil
	}
	for {
		a, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.accept(COMMA) {
			break
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}
