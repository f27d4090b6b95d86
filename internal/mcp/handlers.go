package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/pipeline"
	"ngxwhitelist/internal/routes"
)

type handlers struct {
	deps Deps
}

type generateResult struct {
	RunID     string   `json:"run_id"`
	Groups    int      `json:"groups"`
	Warnings  []string `json:"warnings,omitempty"`
	Installed bool     `json:"installed"`
	Reloaded  bool     `json:"reloaded"`
	Whitelist string   `json:"include_whitelist"`
	Shared    string   `json:"shared_conf"`
}

func (h *handlers) generateWhitelist(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	patterns, err := toStrings(args["routes"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid routes: %v", err)), nil
	}
	if normalize, ok := args["normalize"].(bool); !ok || normalize {
		patterns = routes.Normalize(patterns)
	}

	var source []byte
	if cfg, _ := args["config"].(string); cfg != "" {
		source = []byte(cfg)
	} else if h.deps.DefaultSource != nil {
		source, err = h.deps.DefaultSource()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read nginx config: %v", err)), nil
		}
	}

	opts := h.deps.Defaults
	if l, ok := args["limit"]; ok {
		if v, err := toInt(l); err == nil && v > 0 {
			opts.Limit = v
		}
	}

	install, _ := args["install"].(bool)
	if install && !h.deps.AllowInstall {
		return mcp.NewToolResultError("install is disabled for this server"), nil
	}

	out, err := h.deps.Pipeline.Run(ctx, pipeline.Request{
		Origin:   history.SourceMCP,
		Source:   source,
		Patterns: patterns,
		Options:  opts,
		Install:  install,
		Reload:   install,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := generateResult{
		RunID:     out.Run.ID,
		Groups:    len(out.Result.Groups),
		Installed: out.Run.Installed,
		Reloaded:  out.Run.Reloaded,
		Whitelist: string(out.Result.Whitelist),
		Shared:    string(out.Result.Shared),
	}
	for _, w := range out.Result.Warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}
	return jsonResult(res)
}

func (h *handlers) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	limit := 20
	if l, ok := args["limit"]; ok {
		if v, err := toInt(l); err == nil && v > 0 {
			limit = v
		}
	}

	runs, err := h.deps.History.Recent(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return jsonResult(runs)
}

func (h *handlers) getRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	run, err := h.deps.History.Get(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get run: %v", err)), nil
	}
	return jsonResult(run)
}

// helpers

func toStrings(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("routes is required")
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, want string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to a list of strings", v)
	}
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case string:
		return strconv.Atoi(val)
	case json.Number:
		n, err := val.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
