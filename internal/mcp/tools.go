package mcptools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/pipeline"
	"ngxwhitelist/internal/whitelist"
)

// Deps are the collaborators the tools run against.
type Deps struct {
	Pipeline *pipeline.Pipeline
	History  *history.Store
	Defaults whitelist.Options
	// DefaultSource supplies the nginx config when a call omits it.
	DefaultSource func() ([]byte, error)
	// AllowInstall lets the install argument take effect.
	AllowInstall bool
}

func RegisterTools(s *server.MCPServer, deps Deps) {
	h := &handlers{deps: deps}

	s.AddTool(
		mcp.NewTool("generate_whitelist",
			mcp.WithDescription("Generate an nginx whitelist from an nginx config and a list of allowed URL path patterns. Returns the include.whitelist and shared.conf contents. Nothing is installed unless install is true and the server permits it."),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("config", mcp.Description("nginx configuration text. Defaults to the configured NGINX_CONF_PATH file.")),
			mcp.WithArray("routes", mcp.Description("Allowed URL path patterns, e.g. /api/users"), mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
			mcp.WithBoolean("normalize", mcp.Description("Strip <param> placeholders, drop / and duplicates (default true)")),
			mcp.WithNumber("limit", mcp.Description("Maximum selector parameter length (default 4000)")),
			mcp.WithBoolean("install", mcp.Description("Install the artifacts and reload nginx")),
		),
		h.generateWhitelist,
	)

	s.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List recent whitelist generation runs with their outcome."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithNumber("limit", mcp.Description("Number of runs to return (default 20)")),
		),
		h.listRuns,
	)

	s.AddTool(
		mcp.NewTool("get_run",
			mcp.WithDescription("Get a single generation run by id."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("id", mcp.Description("Run id"), mcp.Required()),
		),
		h.getRun,
	)
}
