package shader

import "testing"

func lexTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	toks, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex(%q): %v", src, err)
	}
	types := make([]TokenType, 0, len(toks))
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	return types
}

func TestLexBasics(t *testing.T) {
	tests := []struct {
		src  string
		want []TokenType
	}{
		{"float x;", []TokenType{TYPE, IDENTIFIER, SEMICOLON, EOF}},
		{"x = 1 + 2;", []TokenType{IDENTIFIER, ASSIGN, INT_LIT, PLUS, INT_LIT, SEMICOLON, EOF}},
		{"a && b || c ^^ d", []TokenType{IDENTIFIER, AND_AND, IDENTIFIER, OR_OR, IDENTIFIER, XOR_XOR, IDENTIFIER, EOF}},
		{"<< >> <= >= == != ++ --", []TokenType{SHL, SHR, LESS_EQ, GREATER_EQ, EQUALS, NOT_EQ, PLUS_PLUS, MINUS_MINUS, EOF}},
		{"+= -= *= /=", []TokenType{PLUS_ASSIGN, MINUS_ASSIGN, STAR_ASSIGN, SLASH_ASSIGN, EOF}},
		{"if (x) {} else {}", []TokenType{IF, LPAREN, IDENTIFIER, RPAREN, LBRACE, RBRACE, ELSE, LBRACE, RBRACE, EOF}},
		{"v.xyz", []TokenType{IDENTIFIER, DOT, IDENTIFIER, EOF}},
		{"c ? a : b", []TokenType{IDENTIFIER, QUESTION, IDENTIFIER, COLON, IDENTIFIER, EOF}},
	}
	for _, tt := range tests {
		got := lexTypes(t, tt.src)
		if len(got) != len(tt.want) {
			t.Errorf("%q: got %v, want %v", tt.src, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: token %d = %v, want %v", tt.src, i, got[i], tt.want[i])
			}
		}
	}
}

func TestLexLiterals(t *testing.T) {
	tests := []struct {
		src    string
		typ    TokenType
		lexeme string
	}{
		{"42", INT_LIT, "42"},
		{"0x1F", INT_LIT, "0x1F"},
		{"7u", UINT_LIT, "7u"},
		{"10U", UINT_LIT, "10U"},
		{"1.5", FLOAT_LIT, "1.5"},
		{".25", FLOAT_LIT, ".25"},
		{"3.", FLOAT_LIT, "3."},
		{"2.5e3", FLOAT_LIT, "2.5e3"},
		{"1e-2", FLOAT_LIT, "1e-2"},
		{"true", TRUE, "true"},
		{"false", FALSE, "false"},
	}
	for _, tt := range tests {
		toks, err := Lex(tt.src)
		if err != nil {
			t.Errorf("Lex(%q): %v", tt.src, err)
			continue
		}
		if toks[0].Type != tt.typ || toks[0].Lexeme != tt.lexeme {
			t.Errorf("Lex(%q) = %v %q, want %v %q", tt.src, toks[0].Type, toks[0].Lexeme, tt.typ, tt.lexeme)
		}
	}
}

func TestLexKeywordsAndTypes(t *testing.T) {
	for _, kw := range []string{"vec2", "vec3", "vec4", "ivec3", "uvec2", "bvec4", "mat2", "mat3", "mat4", "mat2x3", "int", "uint", "float", "bool", "void"} {
		toks, err := Lex(kw)
		if err != nil {
			t.Fatalf("Lex(%q): %v", kw, err)
		}
		if toks[0].Type != TYPE {
			t.Errorf("%q lexed as %v, want TYPE", kw, toks[0].Type)
		}
	}
	kinds := map[string]TokenType{
		"const": CONST, "uniform": UNIFORM, "in": IN, "out": OUT, "inout": INOUT,
		"struct": STRUCT, "while": WHILE, "do": DO, "for": FOR, "return": RETURN,
		"break": BREAK, "continue": CONTINUE, "discard": DISCARD,
	}
	for kw, want := range kinds {
		toks, err := Lex(kw)
		if err != nil {
			t.Fatalf("Lex(%q): %v", kw, err)
		}
		if toks[0].Type != want {
			t.Errorf("%q lexed as %v, want %v", kw, toks[0].Type, want)
		}
	}
}

func TestLexComments(t *testing.T) {
	src := `
// line comment
int x; /* block
comment */ int y;
`
	got := lexTypes(t, src)
	want := []TokenType{TYPE, IDENTIFIER, SEMICOLON, TYPE, IDENTIFIER, SEMICOLON, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexPositions(t *testing.T) {
	toks, err := Lex("int x;\n  x = 1;")
	if err != nil {
		t.Fatal(err)
	}
	// "x" on line 2 sits at column 3.
	var found bool
	for _, tok := range toks {
		if tok.Line == 2 && tok.Type == IDENTIFIER {
			found = true
			if tok.Col != 3 {
				t.Errorf("x on line 2 at col %d, want 3", tok.Col)
			}
		}
	}
	if !found {
		t.Fatal("identifier on line 2 not found")
	}
}

func TestLexErrors(t *testing.T) {
	for _, src := range []string{"@", "int x $ y", "\"text\"", "/* open"} {
		if _, err := Lex(src); err == nil {
			t.Errorf("Lex(%q): expected error", src)
		}
	}
}
