package nginx

import (
	"fmt"
	"strings"
)

// ConditionMarker is the key prefix that identifies a conditional directive.
const ConditionMarker = "if ("

// Node is either a *Directive or a *Block.
type Node interface {
	node()
}

// Directive is a "key value;" statement. A conditional directive
// ("if (...) { ... }") keeps its condition in Key and its body in Block;
// Block is nil for every other directive.
type Directive struct {
	Key   string
	Value string
	Block []*Directive
	Line  int
}

// Block is a named container such as http, server or location.
type Block struct {
	Name     string
	Value    string
	Children []Node
	Line     int
}

// Config is the root of a parsed or constructed configuration file.
type Config struct {
	Children []Node
}

func (*Directive) node() {}
func (*Block) node()     {}

// IsConditional reports whether d carries a nested body.
func (d *Directive) IsConditional() bool {
	return d.Block != nil
}

// HasConditionKey reports whether the key matches the condition grammar,
// regardless of whether the body was already rendered into Value.
func HasConditionKey(key string) bool {
	return strings.HasPrefix(key, ConditionMarker) || key == "if"
}

// NewDirective returns a plain key/value directive. Serialize wraps a value
// holding ';', '{', '}' or a word-initial '#' outside quotes in double quotes
// without escaping, so such a value comes back from Parse with the added
// quotes and the tree is not Equal to the one constructed here.
func NewDirective(key, value string) *Directive {
	return &Directive{Key: key, Value: value}
}

// NewConditional returns "if <cond> { children }". Children must be plain
// directives; only one level of nesting is supported.
func NewConditional(cond string, children ...*Directive) (*Directive, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return nil, fmt.Errorf("conditional requires a condition")
	}
	body := make([]*Directive, 0, len(children))
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.IsConditional() {
			return nil, fmt.Errorf("nested conditional %q inside %q is not supported", c.Key, "if "+cond)
		}
		body = append(body, c)
	}
	return &Directive{Key: "if " + cond, Block: body}, nil
}

// NewBlock returns a block with the given children in order.
func NewBlock(name, value string, children ...Node) *Block {
	b := &Block{Name: name, Value: value}
	b.Append(children...)
	return b
}

// Append adds nodes to the end of the block, skipping nils.
func (b *Block) Append(nodes ...Node) {
	b.Children = appendNodes(b.Children, nodes)
}

// Append adds nodes to the end of the file, skipping nils.
func (c *Config) Append(nodes ...Node) {
	c.Children = appendNodes(c.Children, nodes)
}

// Filter returns the direct child blocks named name.
func (b *Block) Filter(name string) []*Block {
	return filterBlocks(b.Children, name)
}

// Filter returns the top-level blocks named name.
func (c *Config) Filter(name string) []*Block {
	return filterBlocks(c.Children, name)
}

// Directives returns the direct child directives of b, conditionals included.
func (b *Block) Directives() []*Directive {
	var out []*Directive
	for _, n := range b.Children {
		if d, ok := n.(*Directive); ok {
			out = append(out, d)
		}
	}
	return out
}

func appendNodes(dst []Node, nodes []Node) []Node {
	for _, n := range nodes {
		switch v := n.(type) {
		case nil:
			continue
		case *Directive:
			if v == nil {
				continue
			}
		case *Block:
			if v == nil {
				continue
			}
		}
		dst = append(dst, n)
	}
	return dst
}

func filterBlocks(nodes []Node, name string) []*Block {
	var out []*Block
	for _, n := range nodes {
		if b, ok := n.(*Block); ok && b.Name == name {
			out = append(out, b)
		}
	}
	return out
}

// Equal reports whether a and b have the same structure. Line numbers are
// ignored.
func Equal(a, b *Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return nodesEqual(a.Children, b.Children)
}

func nodesEqual(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		switch x := a[i].(type) {
		case *Directive:
			y, ok := b[i].(*Directive)
			if !ok || !directiveEqual(x, y) {
				return false
			}
		case *Block:
			y, ok := b[i].(*Block)
			if !ok || x.Name != y.Name || x.Value != y.Value || !nodesEqual(x.Children, y.Children) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func directiveEqual(a, b *Directive) bool {
	if a.Key != b.Key || a.Value != b.Value || a.IsConditional() != b.IsConditional() {
		return false
	}
	if len(a.Block) != len(b.Block) {
		return false
	}
	for i := range a.Block {
		if !directiveEqual(a.Block[i], b.Block[i]) {
			return false
		}
	}
	return true
}
