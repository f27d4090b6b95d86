package whitelist

import (
	"strings"

	"ngxwhitelist/internal/nginx"
)

// RootSelector is the location selector treated as the existing
// "allow everything" block.
const RootSelector = "/"

// ExtractRootDirectives collects, in traversal order, the contents of every
// "location / { ... }" block of every server in every http block.
// Conditionals are pre-rendered into a single opaque value so they can be
// re-emitted as one directive. A config without a root location yields nil.
func ExtractRootDirectives(cfg *nginx.Config) []nginx.Node {
	if cfg == nil {
		return nil
	}
	var out []nginx.Node
	for _, h := range cfg.Filter("http") {
		for _, srv := range h.Filter("server") {
			for _, loc := range srv.Filter("location") {
				if loc.Value != RootSelector {
					continue
				}
				for _, n := range loc.Children {
					out = append(out, preserve(n))
				}
			}
		}
	}
	return out
}

func preserve(n nginx.Node) nginx.Node {
	d, ok := n.(*nginx.Directive)
	if !ok {
		// Nested non-conditional blocks (limit_except and friends) are kept
		// as real blocks.
		return n
	}
	if d.IsConditional() {
		return RenderConditional(d)
	}
	return nginx.NewDirective(d.Key, d.Value)
}

// RenderConditional flattens a conditional's body into a plain directive
// whose value is the brace-delimited body, one "key value;" per line.
func RenderConditional(d *nginx.Directive) *nginx.Directive {
	if len(d.Block) == 0 {
		return nginx.NewDirective(d.Key, "{\n }")
	}
	var body strings.Builder
	for _, c := range d.Block {
		body.WriteString(nginx.RenderStatement(c))
		body.WriteByte('\n')
	}
	return nginx.NewDirective(d.Key, "{ "+body.String()+" }")
}
