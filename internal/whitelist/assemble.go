package whitelist

import (
	"strconv"

	"ngxwhitelist/internal/nginx"
)

const (
	// ExactRootSelector matches only the bare root path.
	ExactRootSelector = "= /"
	// DenySelector matches every path; it must be the last location.
	DenySelector = "~ /"
	// DefaultDenyStatus is returned for anything not whitelisted.
	DefaultDenyStatus = 404
)

// Trees holds the two generated files before serialization.
type Trees struct {
	Shared    *nginx.Config
	Whitelist *nginx.Config
}

// Assemble builds the shared-directives file from the preserved root
// directives and the whitelist file from the packed groups: one regex
// location per group, the exact root location, then the default-deny
// location. Every allowed location includes includePath instead of copying
// the shared directives.
func Assemble(shared []nginx.Node, groups []Group, includePath string, denyStatus int) Trees {
	if denyStatus == 0 {
		denyStatus = DefaultDenyStatus
	}

	sharedConf := &nginx.Config{}
	sharedConf.Append(shared...)

	wl := &nginx.Config{}
	for _, g := range groups {
		wl.Append(nginx.NewBlock("location", g.Selector(), includeDirective(includePath)))
	}
	wl.Append(nginx.NewBlock("location", ExactRootSelector, includeDirective(includePath)))
	wl.Append(nginx.NewBlock("location", DenySelector, nginx.NewDirective("return", strconv.Itoa(denyStatus))))

	return Trees{Shared: sharedConf, Whitelist: wl}
}

func includeDirective(path string) *nginx.Directive {
	return nginx.NewDirective("include", path)
}
