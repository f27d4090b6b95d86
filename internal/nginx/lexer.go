package nginx

import (
	"fmt"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokLBrace
	tokRBrace
	tokSemicolon
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of file"
	case tokLBrace:
		return `"{"`
	case tokRBrace:
		return `"}"`
	case tokSemicolon:
		return `";"`
	default:
		return "word"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  position
}

type position struct {
	line int
	col  int
}

type lexer struct {
	src  string
	i    int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) nextToken() (token, error) {
	for {
		if l.i >= len(l.src) {
			return token{kind: tokEOF, pos: l.pos()}, nil
		}

		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		if r == utf8.RuneError && size == 1 {
			return token{}, l.errorf("invalid utf-8")
		}

		if isSpace(r) {
			l.consumeRune(r, size)
			continue
		}

		pos := l.pos()
		switch r {
		case '#':
			for l.i < len(l.src) {
				r2, size2 := utf8.DecodeRuneInString(l.src[l.i:])
				if r2 == '\n' {
					break
				}
				l.consumeRune(r2, size2)
			}
			continue
		case '{':
			l.consumeRune(r, size)
			return token{kind: tokLBrace, text: "{", pos: pos}, nil
		case '}':
			l.consumeRune(r, size)
			return token{kind: tokRBrace, text: "}", pos: pos}, nil
		case ';':
			l.consumeRune(r, size)
			return token{kind: tokSemicolon, text: ";", pos: pos}, nil
		default:
			text, err := l.readWord()
			if err != nil {
				return token{}, err
			}
			return token{kind: tokWord, text: text, pos: pos}, nil
		}
	}
}

// readWord consumes one argument. Quoted spans are kept verbatim, quotes
// included, so values survive a round trip unchanged.
func (l *lexer) readWord() (string, error) {
	start := l.i
	for l.i < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		switch {
		case isSpace(r) || r == '{' || r == '}' || r == ';':
			return l.src[start:l.i], nil
		case r == '"' || r == '\'':
			if err := l.skipQuoted(r); err != nil {
				return "", err
			}
		case r == '$' && l.i+1 < len(l.src) && l.src[l.i+1] == '{':
			// ${var} is part of the word, not a block.
			for l.i < len(l.src) {
				r2, size2 := utf8.DecodeRuneInString(l.src[l.i:])
				l.consumeRune(r2, size2)
				if r2 == '}' {
					break
				}
			}
		default:
			l.consumeRune(r, size)
		}
	}
	return l.src[start:l.i], nil
}

func (l *lexer) skipQuoted(quote rune) error {
	startLine, startCol := l.line, l.col
	l.consumeRune(quote, 1)
	for {
		if l.i >= len(l.src) {
			return &ParseError{Line: startLine, Col: startCol, Message: "unterminated quoted string"}
		}
		r, size := utf8.DecodeRuneInString(l.src[l.i:])
		if r == utf8.RuneError && size == 1 {
			return l.errorf("invalid utf-8")
		}
		l.consumeRune(r, size)
		if r == '\\' && l.i < len(l.src) {
			er, esize := utf8.DecodeRuneInString(l.src[l.i:])
			l.consumeRune(er, esize)
			continue
		}
		if r == quote {
			return nil
		}
	}
}

func (l *lexer) consumeRune(r rune, size int) {
	l.i += size
	if r == '\n' {
		l.line++
		l.col = 1
		return
	}
	l.col++
}

func (l *lexer) pos() position {
	return position{line: l.line, col: l.col}
}

func (l *lexer) errorf(format string, args ...any) error {
	return &ParseError{Line: l.line, Col: l.col, Message: fmt.Sprintf(format, args...)}
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
