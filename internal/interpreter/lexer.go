package interpreter

import "strings"

type TokenType string

type Token struct {
	Type    TokenType
	Literal string
}

const (
	ILLEGAL = "ILLEGAL"
	EOF     = "EOF"

	WORD   = "WORD"   // begin, /data/brand_sql.txt
	STRING = "STRING" // "two words", 'it''s'
)

// Lexer splits one command line into whitespace separated words. Single or
// double quotes group words; a doubled quote inside a quoted string stands
// for the quote itself. Backslash escapes \n, \t, \\ and quotes anywhere.
type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.atEnd() {
		return Token{Type: EOF}
	}

	switch l.ch {
	case '\'', '"':
		literal, ok := l.readString(l.ch)
		if !ok {
			return Token{Type: ILLEGAL, Literal: literal}
		}
		return Token{Type: STRING, Literal: literal}
	default:
		return Token{Type: WORD, Literal: l.readWord()}
	}
}

// Tokens lexes the whole input. An unterminated quote yields a trailing
// ILLEGAL token.
func (l *Lexer) Tokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == EOF {
			return tokens
		}
		tokens = append(tokens, tok)
		if tok.Type == ILLEGAL {
			return tokens
		}
	}
}

func (l *Lexer) readWord() string {
	var sb strings.Builder
	for !l.atEnd() && !isWhitespace(l.ch) {
		if l.ch == '\\' {
			l.readEscape(&sb)
			continue
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
	return sb.String()
}

func (l *Lexer) readString(quote byte) (string, bool) {
	var sb strings.Builder
	l.readChar() // opening quote
	for {
		if l.atEnd() {
			return sb.String(), false
		}
		switch {
		case l.ch == quote && l.peekChar() == quote:
			sb.WriteByte(quote)
			l.readChar()
			l.readChar()
		case l.ch == quote:
			l.readChar()
			return sb.String(), true
		case l.ch == '\\':
			l.readEscape(&sb)
		default:
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
}

func (l *Lexer) readEscape(sb *strings.Builder) {
	next := l.peekChar()
	if l.readPosition >= len(l.input) {
		sb.WriteByte('\\')
		l.readChar()
		return
	}
	switch next {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case '\\', '\'', '"':
		sb.WriteByte(next)
	default:
		sb.WriteByte('\\')
		sb.WriteByte(next)
	}
	l.readChar()
	l.readChar()
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() && isWhitespace(l.ch) {
		l.readChar()
	}
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
