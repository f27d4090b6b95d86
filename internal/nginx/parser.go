package nginx

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// ParseError describes structurally invalid configuration text.
type ParseError struct {
	Line    int
	Col     int
	Message string
}

func (e *ParseError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type parser struct {
	lex     *lexer
	peeked  token
	hasPeek bool
}

// Parse reads configuration text into a Config. Comments are dropped.
func Parse(src []byte) (*Config, error) {
	p := &parser{lex: newLexer(string(normalizeInput(src)))}
	nodes, err := p.parseBody("", false)
	if err != nil {
		return nil, err
	}
	return &Config{Children: nodes}, nil
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nginx config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse nginx config %s: %w", path, err)
	}
	return cfg, nil
}

// parseBody reads statements until the closing brace of the enclosing block,
// or until EOF at the top level.
func (p *parser) parseBody(context string, nested bool) ([]Node, error) {
	nodes := []Node{}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			if nested {
				return nil, p.errAt(tok.pos, `unexpected end of file, expecting "}"`)
			}
			return nodes, nil
		case tokRBrace:
			_, _ = p.next()
			if !nested {
				return nil, p.errAt(tok.pos, `unexpected "}"`)
			}
			return nodes, nil
		}

		n, err := p.parseStatement(context)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

func (p *parser) parseStatement(context string) (Node, error) {
	first, _ := p.next()
	if first.kind != tokWord {
		return nil, p.errAt(first.pos, "unexpected %s", first.kind)
	}

	var args []string
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokWord:
			args = append(args, tok.text)
		case tokSemicolon:
			return &Directive{Key: first.text, Value: strings.Join(args, " "), Line: first.pos.line}, nil
		case tokLBrace:
			if first.text == "if" {
				return p.parseConditional(first, args)
			}
			if err := checkContext(first.text, context); err != nil {
				return nil, p.errAt(first.pos, "%s", err.Error())
			}
			children, err := p.parseBody(first.text, true)
			if err != nil {
				return nil, err
			}
			return &Block{Name: first.text, Value: strings.Join(args, " "), Children: children, Line: first.pos.line}, nil
		case tokEOF:
			return nil, p.errAt(tok.pos, `unexpected end of file, expecting ";" or "}"`)
		default:
			return nil, p.errAt(tok.pos, "unexpected %s after %q", tok.kind, first.text)
		}
	}
}

func (p *parser) parseConditional(first token, args []string) (Node, error) {
	if len(args) == 0 {
		return nil, p.errAt(first.pos, `"if" requires a condition`)
	}
	d := &Directive{Key: "if " + strings.Join(args, " "), Block: []*Directive{}, Line: first.pos.line}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokRBrace:
			_, _ = p.next()
			return d, nil
		case tokEOF:
			return nil, p.errAt(tok.pos, `unexpected end of file, expecting "}"`)
		}

		n, err := p.parseStatement("if")
		if err != nil {
			return nil, err
		}
		child, ok := n.(*Directive)
		if !ok || child.IsConditional() {
			return nil, p.errAt(tok.pos, "nested block inside %q is not supported", d.Key)
		}
		d.Block = append(d.Block, child)
	}
}

// checkContext rejects blocks placed where nginx never accepts them. Top-level
// location blocks stay legal because include snippets are parsed too.
func checkContext(name, context string) error {
	switch name {
	case "http", "events", "stream":
		if context != "" {
			return fmt.Errorf("%q block is only allowed at the top level", name)
		}
	case "server":
		if context != "" && context != "http" && context != "stream" && context != "upstream" {
			return fmt.Errorf("%q block is not allowed inside %q", name, context)
		}
	case "location":
		if context != "" && context != "server" && context != "location" {
			return fmt.Errorf("%q block is not allowed inside %q", name, context)
		}
	}
	if context == "if" {
		return fmt.Errorf("%q block inside a conditional is not supported", name)
	}
	return nil
}

func (p *parser) next() (token, error) {
	if p.hasPeek {
		p.hasPeek = false
		return p.peeked, nil
	}
	return p.lex.nextToken()
}

func (p *parser) peek() (token, error) {
	if p.hasPeek {
		return p.peeked, nil
	}
	tok, err := p.lex.nextToken()
	if err != nil {
		return token{}, err
	}
	p.peeked = tok
	p.hasPeek = true
	return tok, nil
}

func (p *parser) errAt(pos position, format string, args ...any) error {
	return &ParseError{Line: pos.line, Col: pos.col, Message: fmt.Sprintf(format, args...)}
}

// normalizeInput strips a UTF-8 BOM and folds CRLF/CR line endings to LF.
func normalizeInput(in []byte) []byte {
	in = bytes.TrimPrefix(in, []byte{0xEF, 0xBB, 0xBF})
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		b := in[i]
		if b == '\r' {
			if i+1 < len(in) && in[i+1] == '\n' {
				i++
			}
			out = append(out, '\n')
			continue
		}
		out = append(out, b)
	}
	return out
}
