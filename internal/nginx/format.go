package nginx

import (
	"bytes"
	"fmt"
	"strings"
)

const indentUnit = "    "

// Serialize renders cfg as configuration text. It fails on trees this
// package cannot express: empty keys and conditionals nested in conditionals.
func Serialize(cfg *Config) ([]byte, error) {
	var b bytes.Buffer
	if cfg == nil {
		return b.Bytes(), nil
	}
	if err := writeNodes(&b, cfg.Children, 0); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func writeNodes(b *bytes.Buffer, nodes []Node, depth int) error {
	for i, n := range nodes {
		switch v := n.(type) {
		case *Directive:
			if err := writeDirective(b, v, depth); err != nil {
				return err
			}
		case *Block:
			// Separate consecutive top-level blocks the way hand-written files do.
			if _, prevBlock := prev(nodes, i).(*Block); depth == 0 && prevBlock {
				b.WriteByte('\n')
			}
			if err := writeBlock(b, v, depth); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported node type %T", n)
		}
	}
	return nil
}

func prev(nodes []Node, i int) Node {
	if i == 0 {
		return nil
	}
	return nodes[i-1]
}

func writeBlock(b *bytes.Buffer, blk *Block, depth int) error {
	if blk.Name == "" {
		return fmt.Errorf("block with empty name")
	}
	indent := strings.Repeat(indentUnit, depth)
	b.WriteString(indent)
	b.WriteString(blk.Name)
	if blk.Value != "" {
		b.WriteByte(' ')
		b.WriteString(blk.Value)
	}
	b.WriteString(" {\n")
	if err := writeNodes(b, blk.Children, depth+1); err != nil {
		return err
	}
	b.WriteString(indent)
	b.WriteString("}\n")
	return nil
}

func writeDirective(b *bytes.Buffer, d *Directive, depth int) error {
	if d.Key == "" {
		return fmt.Errorf("directive with empty key")
	}
	indent := strings.Repeat(indentUnit, depth)
	if !d.IsConditional() {
		b.WriteString(indent)
		b.WriteString(formatStatement(d.Key, d.Value))
		b.WriteByte('\n')
		return nil
	}

	b.WriteString(indent)
	b.WriteString(d.Key)
	b.WriteString(" {\n")
	for _, c := range d.Block {
		if c.IsConditional() {
			return fmt.Errorf("nested conditional %q inside %q is not supported", c.Key, d.Key)
		}
		if c.Key == "" {
			return fmt.Errorf("directive with empty key inside %q", d.Key)
		}
		b.WriteString(indent)
		b.WriteString(indentUnit)
		b.WriteString(formatStatement(c.Key, c.Value))
		b.WriteByte('\n')
	}
	b.WriteString(indent)
	b.WriteString("}\n")
	return nil
}

// formatStatement renders "key value;". A value with structural characters
// outside quotes is wrapped in double quotes as-is, without escaping.
func formatStatement(key, value string) string {
	if value == "" {
		return key + ";"
	}
	if needsQuoting(value) {
		return key + ` "` + value + `";`
	}
	return key + " " + value + ";"
}

// RenderStatement is formatStatement for callers that build rendered values.
func RenderStatement(d *Directive) string {
	return formatStatement(d.Key, d.Value)
}

func needsQuoting(v string) bool {
	var quote byte
	wordStart := true
	for i := 0; i < len(v); i++ {
		c := v[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '$':
			if i+1 < len(v) && v[i+1] == '{' {
				if end := strings.IndexByte(v[i:], '}'); end > 0 {
					i += end
				}
			}
		case ';', '{', '}':
			return true
		case '#':
			if wordStart {
				return true
			}
		}
		wordStart = c == ' ' || c == '\t' || c == '\n'
	}
	return false
}
